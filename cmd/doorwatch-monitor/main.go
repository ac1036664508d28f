// doorwatch-monitor is a terminal view of a Doorwatch server. It follows
// door, activity and dashboard updates over the push channel, falling
// back to polling when the channel cannot be established, and prints each
// update as one line.
//
// With --door and --action it also issues a single door-control command
// once the first door list has arrived.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/doorwatch/doorwatch-core/internal/envelope"
	"github.com/doorwatch/doorwatch-core/internal/facility"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/config"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/logging"
	"github.com/doorwatch/doorwatch-core/internal/syncclient"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	token      string
	doorID     string
	action     string
	duration   time.Duration
	verbose    bool
	sync       config.SyncClientConfig
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	defaults := config.Default().SyncClient
	opts := &options{}

	flagSet := pflag.NewFlagSet("doorwatch-monitor", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "load sync_client settings from this config file")
	flagSet.StringVarP(&opts.sync.ServerURL, "server", "s", defaults.ServerURL, "server base URL")
	flagSet.IntVar(&opts.sync.MaxReconnectAttempts, "max-reconnect", defaults.MaxReconnectAttempts, "push reconnect attempts before polling")
	flagSet.IntVar(&opts.sync.ReconnectBaseDelay, "reconnect-delay", defaults.ReconnectBaseDelay, "base reconnect delay in milliseconds")
	flagSet.IntVar(&opts.sync.PollInterval, "poll-interval", defaults.PollInterval, "polling interval in milliseconds")
	flagSet.StringVar(&opts.token, "token", os.Getenv("DOORWATCH_TOKEN"), "bearer token for HTTP commands")
	flagSet.StringVar(&opts.doorID, "door", "", "door ID for a one-shot door-control command")
	flagSet.StringVar(&opts.action, "action", "", "door action: open, close, lock or unlock")
	flagSet.DurationVar(&opts.duration, "duration", 0, "exit after this long (0 runs until interrupted)")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log client internals to stderr")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if opts.configPath != "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		// Explicit flags win over the file.
		fileSync := cfg.SyncClient
		flagSet.Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "server":
				fileSync.ServerURL = opts.sync.ServerURL
			case "max-reconnect":
				fileSync.MaxReconnectAttempts = opts.sync.MaxReconnectAttempts
			case "reconnect-delay":
				fileSync.ReconnectBaseDelay = opts.sync.ReconnectBaseDelay
			case "poll-interval":
				fileSync.PollInterval = opts.sync.PollInterval
			}
		})
		opts.sync = fileSync
	}

	if (opts.doorID == "") != (opts.action == "") {
		return nil, errors.New("--door and --action must be given together")
	}
	if opts.action != "" {
		if _, err := facility.DoorAction(opts.action).TargetStatus(); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	logger := logging.Discard()
	if opts.verbose {
		logger = logging.NewWithWriter(stderr, config.LoggingConfig{Level: "debug", Format: "text"}, "monitor")
	}

	clientOpts := []syncclient.Option{
		syncclient.WithFetcher(syncclient.NewHTTPFetcher(opts.sync.ServerURL, opts.token)),
	}
	client := syncclient.New(opts.sync, logger, clientOpts...)
	defer client.Disconnect()

	p := &printer{out: stdout}
	firstDoors := make(chan struct{})
	var once sync.Once

	client.Subscribe(syncclient.TopicConnection, func(v any) {
		p.println(formatConnection(v.(syncclient.ConnectionStatus)))
	})
	client.Subscribe(syncclient.TopicDoorStatus, func(v any) {
		p.println(formatDoors(v.([]facility.Door)))
		once.Do(func() { close(firstDoors) })
	})
	client.Subscribe(syncclient.TopicDashboardStats, func(v any) {
		p.println(formatStats(v.(facility.Stats)))
	})
	client.Subscribe(syncclient.TopicUserActivity, func(v any) {
		if line, ok := formatLatestActivity(v.([]facility.Activity)); ok {
			p.println(line)
		}
	})

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	if opts.doorID != "" {
		select {
		case <-firstDoors:
		case <-ctx.Done():
			return nil
		}
		err := client.SendCommand(envelope.CommandDoorControl, envelope.DoorControl{
			DoorID: opts.doorID,
			Action: facility.DoorAction(opts.action),
		})
		if err != nil {
			return fmt.Errorf("sending door-control: %w", err)
		}
		p.println(fmt.Sprintf("sent: %s door %s", opts.action, opts.doorID))
	}

	<-ctx.Done()
	return nil
}

// printer serialises lines from concurrent handlers.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line) //nolint:errcheck // terminal output
}

func formatConnection(s syncclient.ConnectionStatus) string {
	return fmt.Sprintf("connection: %s/%s", s.Type, s.Status)
}

func formatDoors(doors []facility.Door) string {
	parts := make([]string, 0, len(doors))
	for _, d := range doors {
		part := fmt.Sprintf("%s=%s", d.Name, d.Status)
		if !d.IsOnline {
			part += " (offline)"
		}
		parts = append(parts, part)
	}
	return "doors: " + strings.Join(parts, ", ")
}

func formatStats(s facility.Stats) string {
	return fmt.Sprintf("stats: %d doors (%d online, %d offline), %d users, %d recent",
		s.TotalDoors, s.OnlineDoors, s.OfflineDoors, s.TotalUsers, s.RecentActivityCount)
}

// formatLatestActivity describes the newest activity. It reports false for
// an empty list.
func formatLatestActivity(acts []facility.Activity) (string, bool) {
	if len(acts) == 0 {
		return "", false
	}
	a := acts[0]
	return fmt.Sprintf("activity: %s %s %s via %s at %s",
		a.UserName, a.Action, a.DoorName, a.Method, a.Timestamp.Format(time.TimeOnly)), true
}
