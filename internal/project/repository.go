package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Project is a customer installation bound to one site.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SiteID    string    `json:"siteId"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository defines project access queries.
type Repository interface {
	// GetBySiteID returns the project bound to siteID.
	GetBySiteID(ctx context.Context, siteID string) (*Project, error)

	// IsUserAuthorized reports whether userID owns or is a member of projectID.
	IsUserAuthorized(ctx context.Context, userID, projectID string) (bool, error)

	// AccessibleProjectIDs lists every project userID may access.
	AccessibleProjectIDs(ctx context.Context, userID string) ([]string, error)

	// AuthorizeSite returns the project bound to siteID if userID may
	// access it, ErrProjectNotFound if no project has that site, and
	// ErrAccessDenied otherwise.
	AuthorizeSite(ctx context.Context, userID, siteID string) (*Project, error)

	// Recipients returns the owner and members of projectID, without
	// duplicates, owner first.
	Recipients(ctx context.Context, projectID string) ([]string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetBySiteID returns the project for a site.
func (r *SQLiteRepository) GetBySiteID(ctx context.Context, siteID string) (*Project, error) {
	var p Project
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, site_id, owner_id, created_at FROM projects WHERE site_id = ?`, siteID).
		Scan(&p.ID, &p.Name, &p.SiteID, &p.OwnerID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("querying project by site: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // schema default format
	return &p, nil
}

// IsUserAuthorized checks ownership or membership.
func (r *SQLiteRepository) IsUserAuthorized(ctx context.Context, userID, projectID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM projects p
		WHERE p.id = ?
		  AND (p.owner_id = ? OR EXISTS (
			SELECT 1 FROM project_users pu WHERE pu.project_id = p.id AND pu.user_id = ?))`,
		projectID, userID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking project access: %w", err)
	}
	return n > 0, nil
}

// AccessibleProjectIDs lists owned and member projects, sorted by id.
func (r *SQLiteRepository) AccessibleProjectIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM projects WHERE owner_id = ?
		UNION
		SELECT project_id FROM project_users WHERE user_id = ?
		ORDER BY 1`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying accessible projects: %w", err)
	}
	return scanStrings(rows)
}

// AuthorizeSite resolves the site's project and checks access to it.
func (r *SQLiteRepository) AuthorizeSite(ctx context.Context, userID, siteID string) (*Project, error) {
	p, err := r.GetBySiteID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	ok, err := r.IsUserAuthorized(ctx, userID, p.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccessDenied
	}
	return p, nil
}

// Recipients lists the owner followed by members.
func (r *SQLiteRepository) Recipients(ctx context.Context, projectID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT owner_id, 0 AS ord FROM projects WHERE id = ?
		UNION
		SELECT user_id, 1 AS ord FROM project_users WHERE project_id = ?
		ORDER BY ord, 1`, projectID, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying project recipients: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var ids []string
	for rows.Next() {
		var id string
		var ord int
		if err := rows.Scan(&id, &ord); err != nil {
			return nil, fmt.Errorf("scanning recipient: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recipients: %w", err)
	}
	return ids, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}
