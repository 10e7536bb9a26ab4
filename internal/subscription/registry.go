package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/telemetry-core/internal/project"
)

// Outcome messages.
const (
	MsgSubscribed        = "Subscribed successfully"
	MsgAlreadySubscribed = "Already subscribed"
	MsgUnsubscribed      = "Unsubscribed successfully"
)

// Logger is the logging interface used by the registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broker issues site-level subscriptions on the transport.
type Broker interface {
	SubscribeSite(siteID string) error
	UnsubscribeSite(siteID string) error
}

// Authorizer checks a user's access to the project bound to a site.
type Authorizer interface {
	AuthorizeSite(ctx context.Context, userID, siteID string) (*project.Project, error)
}

// Result reports the outcome of Subscribe or Unsubscribe.
type Result struct {
	SiteID       string `json:"siteId"`
	Subscribed   bool   `json:"subscribed"`
	Unsubscribed bool   `json:"unsubscribed,omitempty"`
	Message      string `json:"message"`
}

// SiteCount is one site's broker reference count.
type SiteCount struct {
	SiteID   string `json:"siteId"`
	RefCount int    `json:"refCount"`
}

// Registry is the per-process subscription registry. All mutating
// operations are serialised; the broker is called with the lock held so
// counts and broker state cannot diverge.
type Registry struct {
	broker Broker
	access Authorizer
	logger Logger

	mu        sync.Mutex
	userSites map[string]map[string]struct{}
	refCounts map[string]int
}

// NewRegistry creates a registry.
func NewRegistry(broker Broker, access Authorizer) *Registry {
	return &Registry{
		broker:    broker,
		access:    access,
		logger:    noopLogger{},
		userSites: make(map[string]map[string]struct{}),
		refCounts: make(map[string]int),
	}
}

// SetLogger sets the logger.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Subscribe makes userID follow siteID. It is idempotent per user.
func (r *Registry) Subscribe(ctx context.Context, userID, siteID string) (Result, error) {
	if siteID == "" {
		return Result{}, ErrInvalidSite
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.userSites[userID][siteID]; ok {
		return Result{SiteID: siteID, Subscribed: true, Message: MsgAlreadySubscribed}, nil
	}

	if _, err := r.access.AuthorizeSite(ctx, userID, siteID); err != nil {
		if errors.Is(err, project.ErrAccessDenied) || errors.Is(err, project.ErrProjectNotFound) {
			return Result{}, ErrAccessDenied
		}
		return Result{}, fmt.Errorf("checking site access: %w", err)
	}

	if r.refCounts[siteID] == 0 {
		if err := r.broker.SubscribeSite(siteID); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrBroker, err)
		}
		r.logger.Info("subscribed to site realtime topic", "site_id", siteID)
	}
	r.refCounts[siteID]++

	if r.userSites[userID] == nil {
		r.userSites[userID] = make(map[string]struct{})
	}
	r.userSites[userID][siteID] = struct{}{}

	r.logger.Info("user subscribed to realtime data", "user_id", userID, "site_id", siteID, "ref_count", r.refCounts[siteID])
	return Result{SiteID: siteID, Subscribed: true, Message: MsgSubscribed}, nil
}

// Unsubscribe stops userID following siteID.
func (r *Registry) Unsubscribe(userID, siteID string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.userSites[userID][siteID]; !ok {
		return Result{}, ErrNotSubscribed
	}
	r.removeLocked(userID, siteID)

	r.logger.Info("user unsubscribed from realtime data", "user_id", userID, "site_id", siteID)
	return Result{SiteID: siteID, Unsubscribed: true, Message: MsgUnsubscribed}, nil
}

// UnsubscribeAll drops every site userID follows. It returns the sites removed.
func (r *Registry) UnsubscribeAll(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sites := sortedKeys(r.userSites[userID])
	for _, siteID := range sites {
		r.removeLocked(userID, siteID)
	}
	delete(r.userSites, userID)

	if len(sites) > 0 {
		r.logger.Info("user unsubscribed from all realtime data", "user_id", userID, "sites", len(sites))
	}
	return sites
}

// removeLocked drops one membership and releases the broker
// subscription when the site's count reaches zero. A failed broker
// unsubscribe is logged only: the count is already zero, so the site is
// not restored on the next reconnect.
func (r *Registry) removeLocked(userID, siteID string) {
	delete(r.userSites[userID], siteID)
	if len(r.userSites[userID]) == 0 {
		delete(r.userSites, userID)
	}

	r.refCounts[siteID]--
	if r.refCounts[siteID] > 0 {
		return
	}
	delete(r.refCounts, siteID)
	if err := r.broker.UnsubscribeSite(siteID); err != nil {
		r.logger.Warn("broker unsubscribe failed", "site_id", siteID, "error", err)
		return
	}
	r.logger.Info("unsubscribed from site realtime topic", "site_id", siteID)
}

// ResubscribeAll reissues the broker subscription of every site with a
// positive count. It is called after each (re)connect of the realtime
// transport. Failures are logged per site and the first is returned.
func (r *Registry) ResubscribeAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	sites := sortedKeys(r.refCounts)
	for _, siteID := range sites {
		if err := r.broker.SubscribeSite(siteID); err != nil {
			r.logger.Error("resubscribe failed", "site_id", siteID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: site %s: %w", ErrBroker, siteID, err)
			}
		}
	}
	if len(sites) > 0 {
		r.logger.Info("realtime subscriptions restored", "sites", len(sites))
	}
	return firstErr
}

// UserSubscriptions returns the sites userID follows, sorted.
func (r *Registry) UserSubscriptions(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.userSites[userID])
}

// ActiveSubscriptions returns every site with a positive count, sorted.
func (r *Registry) ActiveSubscriptions() []SiteCount {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SiteCount, 0, len(r.refCounts))
	for _, siteID := range sortedKeys(r.refCounts) {
		out = append(out, SiteCount{SiteID: siteID, RefCount: r.refCounts[siteID]})
	}
	return out
}

// RefCount returns the broker reference count of siteID.
func (r *Registry) RefCount(siteID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refCounts[siteID]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
