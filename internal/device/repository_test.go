package device

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/telemetry-core/internal/testutil"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db := testutil.OpenDB(t)
	testutil.SeedProject(t, db, "proj-a", "site-a", "owner-a")
	testutil.SeedProject(t, db, "proj-b", "site-b", "owner-b")
	testutil.SeedDevice(t, db, "dev-a1", "proj-a", "INV01", "inverter", true)
	testutil.SeedDevice(t, db, "dev-b1", "proj-b", "INV01", "inverter", false)
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_FindByExternalID(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		externalID string
		siteID     string
		wantID     string
		wantErr    error
	}{
		{"site a", "INV01", "site-a", "dev-a1", nil},
		{"same external id at site b", "INV01", "site-b", "dev-b1", nil},
		{"unknown site", "INV01", "site-c", "", ErrDeviceNotFound},
		{"unknown device", "METER9", "site-a", "", ErrDeviceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := repo.FindByExternalID(ctx, tt.externalID, tt.siteID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FindByExternalID() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && d.ID != tt.wantID {
				t.Errorf("FindByExternalID() id = %q, want %q", d.ID, tt.wantID)
			}
		})
	}
}

func TestSQLiteRepository_FindByExternalID_Fields(t *testing.T) {
	repo := setupRepo(t)

	d, err := repo.FindByExternalID(context.Background(), "INV01", "site-a")
	if err != nil {
		t.Fatalf("FindByExternalID() error = %v", err)
	}
	if d.ProjectID != "proj-a" || d.SiteID != "site-a" {
		t.Errorf("project/site = %q/%q, want proj-a/site-a", d.ProjectID, d.SiteID)
	}
	if !d.IsOnline {
		t.Error("IsOnline = false, want true")
	}
	if d.LastSeenAt == nil {
		t.Error("LastSeenAt = nil, want seeded timestamp")
	}
	if d.DeviceType != "inverter" {
		t.Errorf("DeviceType = %q", d.DeviceType)
	}
}

func TestSQLiteRepository_GetByID(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	d, err := repo.GetByID(ctx, "dev-b1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if d.IsOnline {
		t.Error("IsOnline = true, want false")
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_Create(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	d := &Device{ID: "dev-a2", ProjectID: "proj-a", ExternalID: "CHINT01", Name: "Main meter", DeviceType: "meter"}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	got, err := repo.FindByExternalID(ctx, "CHINT01", "site-a")
	if err != nil {
		t.Fatalf("FindByExternalID() error = %v", err)
	}
	if got.Name != "Main meter" {
		t.Errorf("Name = %q", got.Name)
	}

	dup := &Device{ID: "dev-a3", ProjectID: "proj-a", ExternalID: "CHINT01", Name: "Dup"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Create(duplicate) error = %v, want ErrDeviceExists", err)
	}

	if err := repo.Create(ctx, &Device{ID: "x"}); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("Create(invalid) error = %v, want ErrInvalidDevice", err)
	}
}

func TestSQLiteRepository_ListByProject(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	devices, err := repo.ListByProject(ctx, "proj-a")
	if err != nil {
		t.Fatalf("ListByProject() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "dev-a1" {
		t.Errorf("ListByProject() = %+v", devices)
	}

	devices, err = repo.ListByProject(ctx, "proj-none")
	if err != nil {
		t.Fatalf("ListByProject() error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("ListByProject(empty) = %d devices", len(devices))
	}
}
