package facility

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/doorwatch/doorwatch-core/internal/infrastructure/clock"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z"

const doorColumns = "id, name, location, status, is_online, battery_level, last_update"

const activityColumns = "id, user_id, user_name, door_id, door_name, action, method, timestamp"

const userColumns = "id, name, email, role, password_hash, created_at, updated_at"

// SQLiteRepository implements Repository on the facility database.
type SQLiteRepository struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB, clk clock.Clock) *SQLiteRepository {
	if clk == nil {
		clk = clock.Real()
	}
	return &SQLiteRepository{db: db, clock: clk}
}

func (r *SQLiteRepository) now() string {
	return formatTime(r.clock.Now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written outside this package may use SQLite's default layout.
		t, _ = time.Parse("2006-01-02 15:04:05", s) //nolint:errcheck // zero time is acceptable
	}
	return t
}

// parseID converts a wire ID to a rowid. Unparseable IDs can never match.
func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil && n > 0
}

func formatID(n int64) string {
	return strconv.FormatInt(n, 10)
}

// ─── Doors ─────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoor(row rowScanner) (*Door, error) {
	var (
		d          Door
		id         int64
		online     int
		battery    sql.NullInt64
		lastUpdate string
	)
	if err := row.Scan(&id, &d.Name, &d.Location, &d.Status, &online, &battery, &lastUpdate); err != nil {
		return nil, err
	}
	d.ID = formatID(id)
	d.IsOnline = online != 0
	d.LastUpdate = parseTime(lastUpdate)
	if battery.Valid {
		level := int(battery.Int64)
		d.BatteryLevel = &level
	}
	return &d, nil
}

// ListDoors returns every door ordered by name.
func (r *SQLiteRepository) ListDoors(ctx context.Context) ([]Door, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+doorColumns+" FROM doors ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("listing doors: %w", err)
	}
	defer rows.Close()

	doors := []Door{}
	for rows.Next() {
		d, err := scanDoor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning door: %w", err)
		}
		doors = append(doors, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating doors: %w", err)
	}
	return doors, nil
}

// GetDoor returns a single door or ErrDoorNotFound.
func (r *SQLiteRepository) GetDoor(ctx context.Context, id string) (*Door, error) {
	rowID, ok := parseID(id)
	if !ok {
		return nil, ErrDoorNotFound
	}
	d, err := scanDoor(r.db.QueryRowContext(ctx, "SELECT "+doorColumns+" FROM doors WHERE id = ?", rowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDoorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting door %s: %w", id, err)
	}
	return d, nil
}

// CreateDoor inserts a door. A zero Status defaults to closed.
func (r *SQLiteRepository) CreateDoor(ctx context.Context, d *Door) error {
	if d.Status == "" {
		d.Status = StatusClosed
	}
	if err := d.Validate(); err != nil {
		return err
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO doors (name, location, status, is_online, battery_level, last_update, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Name, d.Location, string(d.Status), boolToInt(d.IsOnline), nullInt(d.BatteryLevel), now, now, now,
	)
	if err != nil {
		return fmt.Errorf("creating door: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading door id: %w", err)
	}
	d.ID = formatID(id)
	d.LastUpdate = parseTime(now)
	return nil
}

// UpdateDoor writes name, location, status, online flag and battery level.
func (r *SQLiteRepository) UpdateDoor(ctx context.Context, d *Door) error {
	if err := d.Validate(); err != nil {
		return err
	}
	rowID, ok := parseID(d.ID)
	if !ok {
		return ErrDoorNotFound
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE doors SET name = ?, location = ?, status = ?, is_online = ?, battery_level = ?, last_update = ?, updated_at = ?
		 WHERE id = ?`,
		d.Name, d.Location, string(d.Status), boolToInt(d.IsOnline), nullInt(d.BatteryLevel), now, now, rowID,
	)
	if err != nil {
		return fmt.Errorf("updating door %s: %w", d.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrDoorNotFound
	}
	d.LastUpdate = parseTime(now)
	return nil
}

// DeleteDoor removes a door. Its activities keep their door name.
func (r *SQLiteRepository) DeleteDoor(ctx context.Context, id string) error {
	rowID, ok := parseID(id)
	if !ok {
		return ErrDoorNotFound
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM doors WHERE id = ?", rowID)
	if err != nil {
		return fmt.Errorf("deleting door %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrDoorNotFound
	}
	return nil
}

// SetDoorStatus changes a door's status and stamps last_update.
func (r *SQLiteRepository) SetDoorStatus(ctx context.Context, id string, status DoorStatus) (*Door, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidDoor, string(status))
	}
	rowID, ok := parseID(id)
	if !ok {
		return nil, ErrDoorNotFound
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx,
		"UPDATE doors SET status = ?, last_update = ?, updated_at = ? WHERE id = ?",
		string(status), now, now, rowID,
	)
	if err != nil {
		return nil, fmt.Errorf("setting door %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return nil, ErrDoorNotFound
	}
	return r.GetDoor(ctx, id)
}

// ─── Activities ────────────────────────────────────────────────────

func scanActivity(row rowScanner) (*Activity, error) {
	var (
		a      Activity
		id     int64
		doorID sql.NullInt64
		ts     string
	)
	if err := row.Scan(&id, &a.UserID, &a.UserName, &doorID, &a.DoorName, &a.Action, &a.Method, &ts); err != nil {
		return nil, err
	}
	a.ID = formatID(id)
	if doorID.Valid {
		a.DoorID = formatID(doorID.Int64)
	}
	a.Timestamp = parseTime(ts)
	return &a, nil
}

// AppendActivity inserts an activity stamped with the current time.
func (r *SQLiteRepository) AppendActivity(ctx context.Context, a *Activity) error {
	if !a.Method.Valid() {
		return fmt.Errorf("%w: unknown method %q", ErrInvalidAction, string(a.Method))
	}
	switch a.Action {
	case ActivityEntry, ActivityExit, ActivityDenied:
	default:
		return fmt.Errorf("%w: unknown activity %q", ErrInvalidAction, string(a.Action))
	}

	var doorID any
	if rowID, ok := parseID(a.DoorID); ok {
		doorID = rowID
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO activities (user_id, user_name, door_id, door_name, action, method, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.UserName, doorID, a.DoorName, string(a.Action), string(a.Method), now,
	)
	if err != nil {
		return fmt.Errorf("appending activity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading activity id: %w", err)
	}
	a.ID = formatID(id)
	a.Timestamp = parseTime(now)
	return nil
}

// RecentActivities returns up to limit activities, newest first.
func (r *SQLiteRepository) RecentActivities(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 {
		return []Activity{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+activityColumns+" FROM activities ORDER BY timestamp DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	defer rows.Close()

	activities := []Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		activities = append(activities, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activities: %w", err)
	}
	return activities, nil
}

// ─── Stats ─────────────────────────────────────────────────────────

// Stats recomputes the dashboard aggregate in one statement so every field
// comes from the same snapshot.
func (r *SQLiteRepository) Stats(ctx context.Context) (Stats, error) {
	cutoff := formatTime(r.clock.Now().Add(-RecentActivityWindow))

	var s Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM doors),
			(SELECT COUNT(*) FROM doors WHERE is_online = 1),
			(SELECT COUNT(*) FROM doors WHERE is_online = 0),
			(SELECT COUNT(*) FROM activities WHERE timestamp > ?)`,
		cutoff,
	).Scan(&s.TotalUsers, &s.TotalDoors, &s.OnlineDoors, &s.OfflineDoors, &s.RecentActivityCount)
	if err != nil {
		return Stats{}, fmt.Errorf("computing stats: %w", err)
	}
	s.ActiveDoors = s.OnlineDoors
	return s, nil
}

// ─── Users ─────────────────────────────────────────────────────────

func scanUser(row rowScanner) (*User, error) {
	var (
		u       User
		id      int64
		created string
		updated string
	)
	if err := row.Scan(&id, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &created, &updated); err != nil {
		return nil, err
	}
	u.ID = formatID(id)
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return &u, nil
}

// ListUsers returns all users, newest first.
func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// GetUser returns a user or ErrUserNotFound.
func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*User, error) {
	rowID, ok := parseID(id)
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", rowID)
}

// GetUserByEmail looks a user up by login email, case-insensitively.
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ? COLLATE NOCASE", email)
}

func (r *SQLiteRepository) getUser(ctx context.Context, query string, arg any) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// CreateUser inserts a user. A zero Role defaults to user.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u *User) error {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if err := u.Validate(); err != nil {
		return err
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email, role, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.Name, u.Email, string(u.Role), u.PasswordHash, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}
	u.ID = formatID(id)
	u.CreatedAt = parseTime(now)
	u.UpdatedAt = u.CreatedAt
	return nil
}

// UpdateUser writes name, email and role.
func (r *SQLiteRepository) UpdateUser(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	rowID, ok := parseID(u.ID)
	if !ok {
		return ErrUserNotFound
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET name = ?, email = ?, role = ?, updated_at = ? WHERE id = ?",
		u.Name, u.Email, string(u.Role), now, rowID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("updating user %s: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrUserNotFound
	}
	u.UpdatedAt = parseTime(now)
	return nil
}

// UpdatePassword replaces a user's password hash.
func (r *SQLiteRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	rowID, ok := parseID(id)
	if !ok {
		return ErrUserNotFound
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?", passwordHash, r.now(), rowID)
	if err != nil {
		return fmt.Errorf("updating password for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user. Historical activities keep the user's name.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, id string) error {
	rowID, ok := parseID(id)
	if !ok {
		return ErrUserNotFound
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", rowID)
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrUserNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
