package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// MockRepository is an in-memory Repository counting lookups.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device // keyed by site/external id
	lookups int
	err     error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]*Device)}
}

func (m *MockRepository) FindByExternalID(_ context.Context, externalID, siteID string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.devices[siteID+"/"+externalID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.ID == id {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) ListByProject(_ context.Context, projectID string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Device
	for _, d := range m.devices {
		if d.ProjectID == projectID {
			out = append(out, *d.DeepCopy())
		}
	}
	return out, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := d.SiteID + "/" + d.ExternalID
	if _, ok := m.devices[key]; ok {
		return ErrDeviceExists
	}
	m.devices[key] = d.DeepCopy()
	return nil
}

func (m *MockRepository) lookupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

func newTestRegistry(t *testing.T) (*Registry, *MockRepository, *time.Time) {
	t.Helper()
	repo := NewMockRepository()
	repo.Create(context.Background(), &Device{ID: "d1", ProjectID: "p1", SiteID: "s1", ExternalID: "INV01", Name: "Inverter"}) //nolint:errcheck // fresh mock

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reg := NewRegistry(repo, time.Minute)
	reg.now = func() time.Time { return now }
	return reg, repo, &now
}

func TestRegistry_CachesHits(t *testing.T) {
	reg, repo, _ := newTestRegistry(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := reg.FindByExternalID(ctx, "INV01", "s1")
		if err != nil {
			t.Fatalf("FindByExternalID() error = %v", err)
		}
		if d.ID != "d1" {
			t.Errorf("ID = %q, want d1", d.ID)
		}
	}
	if got := repo.lookupCount(); got != 1 {
		t.Errorf("repository lookups = %d, want 1", got)
	}

	stats := reg.GetStats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Cached != 1 {
		t.Errorf("GetStats() = %+v", stats)
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	d, _ := reg.FindByExternalID(ctx, "INV01", "s1") //nolint:errcheck // checked below
	d.Name = "mutated"

	again, err := reg.FindByExternalID(ctx, "INV01", "s1")
	if err != nil {
		t.Fatalf("FindByExternalID() error = %v", err)
	}
	if again.Name != "Inverter" {
		t.Errorf("cached device mutated through returned copy: %q", again.Name)
	}
}

func TestRegistry_Expiry(t *testing.T) {
	reg, repo, now := newTestRegistry(t)
	ctx := context.Background()

	reg.FindByExternalID(ctx, "INV01", "s1") //nolint:errcheck // warm cache
	*now = now.Add(2 * time.Minute)
	reg.FindByExternalID(ctx, "INV01", "s1") //nolint:errcheck // expired

	if got := repo.lookupCount(); got != 2 {
		t.Errorf("repository lookups = %d, want 2 after expiry", got)
	}
}

func TestRegistry_MissesNotCached(t *testing.T) {
	reg, repo, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.FindByExternalID(ctx, "NEW01", "s1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("FindByExternalID() error = %v, want ErrDeviceNotFound", err)
	}
	repo.Create(ctx, &Device{ID: "d2", ProjectID: "p1", SiteID: "s1", ExternalID: "NEW01", Name: "New"}) //nolint:errcheck // fresh id

	d, err := reg.FindByExternalID(ctx, "NEW01", "s1")
	if err != nil {
		t.Fatalf("FindByExternalID() after registration error = %v", err)
	}
	if d.ID != "d2" {
		t.Errorf("ID = %q, want d2", d.ID)
	}
}

func TestRegistry_InvalidateAndPurge(t *testing.T) {
	reg, repo, _ := newTestRegistry(t)
	ctx := context.Background()

	reg.FindByExternalID(ctx, "INV01", "s1") //nolint:errcheck // warm cache
	reg.Invalidate("s1", "INV01")
	reg.FindByExternalID(ctx, "INV01", "s1") //nolint:errcheck // reload
	reg.Purge()
	reg.FindByExternalID(ctx, "INV01", "s1") //nolint:errcheck // reload

	if got := repo.lookupCount(); got != 3 {
		t.Errorf("repository lookups = %d, want 3", got)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg, repo, _ := newTestRegistry(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		repo.Create(ctx, &Device{ID: fmt.Sprintf("c%d", i), SiteID: "s1", ExternalID: fmt.Sprintf("DEV%02d", i)}) //nolint:errcheck // unique ids
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ext := fmt.Sprintf("DEV%02d", (g+i)%10)
				if _, err := reg.FindByExternalID(ctx, ext, "s1"); err != nil {
					t.Errorf("FindByExternalID(%s) error = %v", ext, err)
					return
				}
				if i%25 == 0 {
					reg.Purge()
				}
			}
		}(g)
	}
	wg.Wait()
}
