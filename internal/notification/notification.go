// Package notification stores alert notifications raised by rules.
package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status values.
const (
	StatusUnread = "UNREAD"
	StatusRead   = "READ"
)

// timeLayout has fixed-width fractions so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Domain errors.
var (
	// ErrInvalidNotification is returned when required fields are missing.
	ErrInvalidNotification = errors.New("notification: invalid")

	// ErrNotificationNotFound is returned when no notification matches
	// the id for that user.
	ErrNotificationNotFound = errors.New("notification: not found")
)

// Notification is one alert delivered to one user.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	RuleID    string         `json:"ruleId,omitempty"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Input carries the fields a caller supplies when raising a notification.
type Input struct {
	UserID  string
	RuleID  string
	Title   string
	Message string
	Data    map[string]any
}

// Repository persists notifications.
type Repository interface {
	Create(ctx context.Context, in Input) (*Notification, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create stores an unread notification and returns it with its id set.
func (r *SQLiteRepository) Create(ctx context.Context, in Input) (*Notification, error) {
	if in.UserID == "" || in.Title == "" {
		return nil, ErrInvalidNotification
	}
	data := in.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshalling notification data: %w", err)
	}

	n := &Notification{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		RuleID:    in.RuleID,
		Title:     in.Title,
		Message:   in.Message,
		Data:      data,
		Status:    StatusUnread,
		CreatedAt: r.now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, rule_id, title, message, data, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, nullableString(n.RuleID), n.Title, n.Message, string(dataJSON),
		n.Status, n.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("inserting notification: %w", err)
	}
	return n, nil
}

// ListUnread returns a user's unread notifications, newest first.
func (r *SQLiteRepository) ListUnread(ctx context.Context, userID string, limit int) ([]Notification, error) {
	return r.List(ctx, userID, StatusUnread, limit)
}

// List returns a user's notifications, newest first. An empty status
// returns every status.
func (r *SQLiteRepository) List(ctx context.Context, userID, status string, limit int) ([]Notification, error) {
	if status != "" && status != StatusUnread && status != StatusRead {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidNotification, status)
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(rule_id, ''), title, message, data, status, created_at
		FROM notifications
		WHERE user_id = ? AND (? = '' OR status = ?)
		ORDER BY created_at DESC
		LIMIT ?`, userID, status, status, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		var data, createdAt string
		if err := rows.Scan(&n.ID, &n.UserID, &n.RuleID, &n.Title, &n.Message, &data, &n.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return nil, fmt.Errorf("decoding notification data: %w", err)
		}
		n.CreatedAt, _ = time.Parse(timeLayout, createdAt) //nolint:errcheck // written by Create
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	return out, nil
}

// CountUnread returns how many unread notifications a user has.
func (r *SQLiteRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND status = ?`,
		userID, StatusUnread).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one of the user's notifications read. Marking an
// already read notification is not an error.
func (r *SQLiteRepository) MarkRead(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, read_at = COALESCE(read_at, ?)
		WHERE id = ? AND user_id = ?`,
		StatusRead, r.now().UTC().Format(timeLayout), id, userID)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read and
// returns how many changed.
func (r *SQLiteRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET status = ?, read_at = ?
		WHERE user_id = ? AND status = ?`,
		StatusRead, r.now().UTC().Format(timeLayout), userID, StatusUnread)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return n, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
