package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/telemetry-core/internal/testutil"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db := testutil.OpenDB(t)
	testutil.SeedProject(t, db, "proj-a", "site-a", "alice")
	testutil.SeedDevice(t, db, "dev-1", "proj-a", "INV01", "inverter", true)
	testutil.SeedDevice(t, db, "dev-2", "proj-a", "METER1", "meter", true)

	repo := NewSQLiteRepository(db.DB)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return repo
}

func createRule(t *testing.T, repo *SQLiteRepository, r Rule) Rule {
	t.Helper()
	if err := repo.Create(context.Background(), &r); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return r
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := setupRepo(t)
	desc := "too hot"

	created := createRule(t, repo, Rule{
		DeviceID: "dev-1", Name: "Hot", Description: &desc, Type: TypeThreshold,
		Field: "temperature", Operator: OpGreater, Value: floatPtr(55), IsActive: true,
	})
	if created.ID == "" {
		t.Fatal("Create() did not assign an id")
	}

	got, err := repo.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Hot" || got.Type != TypeThreshold || got.Operator != OpGreater {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.Value == nil || *got.Value != 55 {
		t.Errorf("Value = %v, want 55", got.Value)
	}
	if got.Description == nil || *got.Description != desc {
		t.Errorf("Description = %v, want %q", got.Description, desc)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}
}

func TestSQLiteRepository_CreateInvalid(t *testing.T) {
	repo := setupRepo(t)

	err := repo.Create(context.Background(), &Rule{DeviceID: "dev-1", Name: "x", Type: TypeThreshold})
	if !errors.Is(err, ErrInvalidRule) {
		t.Errorf("Create() error = %v, want ErrInvalidRule", err)
	}
}

func TestSQLiteRepository_ActiveForDevice(t *testing.T) {
	repo := setupRepo(t)

	first := createRule(t, repo, Rule{DeviceID: "dev-1", Name: "a", Type: TypeDeviceStatus, IsActive: true})
	createRule(t, repo, Rule{DeviceID: "dev-1", Name: "b", Type: TypeDeviceStatus, IsActive: false})
	third := createRule(t, repo, Rule{DeviceID: "dev-1", Name: "c", Type: TypeChangeDetection, Field: "mode", IsActive: true})
	createRule(t, repo, Rule{DeviceID: "dev-2", Name: "d", Type: TypeDeviceStatus, IsActive: true})

	got, err := repo.ActiveForDevice(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("ActiveForDevice() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != third.ID {
		t.Errorf("ActiveForDevice() = %+v, want [%s %s]", got, first.ID, third.ID)
	}

	all, err := repo.ListByDevice(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != third.ID {
		t.Errorf("ListByDevice() returned %d rules, first %q", len(all), all[0].ID)
	}
}

func TestSQLiteRepository_Update(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	r := createRule(t, repo, Rule{
		DeviceID: "dev-1", Name: "Hot", Type: TypeThreshold,
		Field: "temperature", Operator: OpGreater, Value: floatPtr(55), IsActive: true,
	})
	r.Value = floatPtr(70)
	r.IsActive = false
	if err := repo.Update(ctx, &r); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if *got.Value != 70 || got.IsActive {
		t.Errorf("after update: value=%v active=%v", *got.Value, got.IsActive)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}

	missing := r
	missing.ID = "nope"
	if err := repo.Update(ctx, &missing); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrRuleNotFound", err)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	r := createRule(t, repo, Rule{DeviceID: "dev-1", Name: "a", Type: TypeDeviceStatus, IsActive: true})
	if err := repo.Delete(ctx, r.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, r.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetByID() after delete error = %v", err)
	}
	if err := repo.Delete(ctx, r.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("second Delete() error = %v, want ErrRuleNotFound", err)
	}
}
