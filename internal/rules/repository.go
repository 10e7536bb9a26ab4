package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository stores notification rules.
type Repository interface {
	Source

	// GetByID retrieves a rule. Returns ErrRuleNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Rule, error)

	// ListByDevice returns every rule of a device, active or not, newest first.
	ListByDevice(ctx context.Context, deviceID string) ([]Rule, error)

	// Create validates and inserts a rule, assigning its ID.
	Create(ctx context.Context, r *Rule) error

	// Update validates and replaces a rule.
	Update(ctx context.Context, r *Rule) error

	// Delete removes a rule.
	Delete(ctx context.Context, id string) error
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

const selectRule = `
	SELECT id, device_id, name, description, rule_type, field, operator, value,
		expression, is_active, created_at, updated_at
	FROM notification_rules`

// ActiveForDevice returns the device's active rules in creation order.
func (r *SQLiteRepository) ActiveForDevice(ctx context.Context, deviceID string) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, selectRule+`
	WHERE device_id = ? AND is_active = 1
	ORDER BY created_at, id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying active rules: %w", err)
	}
	return scanRules(rows)
}

// GetByID retrieves a rule by id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx, selectRule+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule: %w", err)
	}
	return rule, nil
}

// ListByDevice returns all rules of a device.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, selectRule+`
	WHERE device_id = ?
	ORDER BY created_at DESC, id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	return scanRules(rows)
}

// Create inserts a new rule.
func (r *SQLiteRepository) Create(ctx context.Context, rule *Rule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := r.now().UTC().Truncate(time.Second)
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_rules (
			id, device_id, name, description, rule_type, field, operator, value,
			expression, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.DeviceID, rule.Name, rule.Description, string(rule.Type), rule.Field,
		nullable(string(rule.Operator)), rule.Value, nullable(rule.Expression), boolToInt(rule.IsActive),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of a rule. The device binding and
// creation time never change.
func (r *SQLiteRepository) Update(ctx context.Context, rule *Rule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	rule.UpdatedAt = r.now().UTC().Truncate(time.Second)

	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_rules SET
			name = ?, description = ?, rule_type = ?, field = ?, operator = ?, value = ?,
			expression = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name, rule.Description, string(rule.Type), rule.Field,
		nullable(string(rule.Operator)), rule.Value, nullable(rule.Expression), boolToInt(rule.IsActive),
		rule.UpdatedAt.Format(time.RFC3339), rule.ID)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	return requireOneRow(res)
}

// Delete removes a rule. Notifications it raised keep their text.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notification_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*Rule, error) {
	var (
		rule                 Rule
		ruleType             string
		operator, expression sql.NullString
		description          sql.NullString
		value                sql.NullFloat64
		isActive             int
		createdAt, updatedAt string
	)
	err := s.Scan(&rule.ID, &rule.DeviceID, &rule.Name, &description, &ruleType, &rule.Field,
		&operator, &value, &expression, &isActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rule.Type = Type(ruleType)
	rule.Operator = Operator(operator.String)
	rule.Expression = expression.String
	rule.IsActive = isActive != 0
	if description.Valid {
		d := description.String
		rule.Description = &d
	}
	if value.Valid {
		v := value.Float64
		rule.Value = &v
	}
	rule.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // schema format
	rule.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // schema format
	return &rule, nil
}

func scanRules(rows *sql.Rows) ([]Rule, error) {
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		out = append(out, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
