// Package syncclient is the client side of the Doorwatch push channel.
//
// A Service gives UI code one subscribe/unsubscribe surface over the
// doorStatus, userActivity, dashboardStats and connection topics. Behind it
// the service holds a WebSocket to the hub and, when that cannot be kept
// up, falls back to polling the Mutation API. Subscribers see the same
// notifications either way.
//
// Connection handling is an explicit state machine:
//
//	Disconnected --connect--> Connecting --opened--> Connected
//	Connecting --openFailed--> ReconnectWait | Polling
//	Connected --lost--> ReconnectWait | Polling
//	ReconnectWait --retryDue--> Connecting
//	any --disconnect--> Closed
//
// Retries back off linearly (base × attempt). Once the retry budget is
// spent the service polls until Disconnect; it does not try the push
// channel again. Successful opens reset the budget.
//
// Usage:
//
//	svc := syncclient.New(cfg.SyncClient, logger)
//	unsubscribe := svc.Subscribe(syncclient.TopicDoorStatus, func(v any) {
//	    doors := v.([]facility.Door)
//	    ...
//	})
//	defer unsubscribe()
//	svc.Connect()
//	defer svc.Disconnect()
package syncclient
