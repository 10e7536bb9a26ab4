package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the device lookups the pipeline needs.
type Repository interface {
	// FindByExternalID resolves a device by its topic identifier within
	// the project that owns siteID.
	// Returns ErrDeviceNotFound if nothing matches.
	FindByExternalID(ctx context.Context, externalID, siteID string) (*Device, error)

	// GetByID retrieves a device by primary key.
	GetByID(ctx context.Context, id string) (*Device, error)

	// ListByProject returns every device of a project, ordered by name.
	ListByProject(ctx context.Context, projectID string) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists on a duplicate (project, external id).
	Create(ctx context.Context, device *Device) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDevice = `
	SELECT d.id, d.project_id, p.site_id, d.external_id, d.name, d.device_type,
		d.is_online, d.last_seen_at, d.created_at, d.updated_at
	FROM devices d
	JOIN projects p ON p.id = d.project_id`

// FindByExternalID resolves a device scoped to a site.
func (r *SQLiteRepository) FindByExternalID(ctx context.Context, externalID, siteID string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDevice+`
	WHERE d.external_id = ? AND p.site_id = ?`, externalID, siteID)

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by external id: %w", err)
	}
	return device, nil
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDevice+`
	WHERE d.id = ?`, id)

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// ListByProject returns a project's devices.
func (r *SQLiteRepository) ListByProject(ctx context.Context, projectID string) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDevice+`
	WHERE d.project_id = ?
	ORDER BY d.name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (
			id, project_id, external_id, name, device_type,
			is_online, last_seen_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID,
		device.ProjectID,
		device.ExternalID,
		device.Name,
		device.DeviceType,
		boolToInt(device.IsOnline),
		nullableTime(device.LastSeenAt),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var online int
	var lastSeen sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&d.ID, &d.ProjectID, &d.SiteID, &d.ExternalID, &d.Name, &d.DeviceType,
		&online, &lastSeen, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.IsOnline = online != 0
	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			d.LastSeenAt = &t
		}
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by Create or schema default
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by Create or schema default
	return &d, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
