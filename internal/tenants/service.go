package tenants

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reader is the lookup surface components depend on.
type Reader interface {
	GetByName(ctx context.Context, name string) (Tenant, error)
	GetByID(ctx context.Context, id string) (Tenant, error)
}

type cached struct {
	tenant   Tenant
	loadedAt time.Time
}

// Service wraps the store with a TTL cache. Webhook traffic resolves the
// tenant on every delivery, so lookups must not hit the database each time.
type Service struct {
	store  Reader
	logger *slog.Logger
	ttl    time.Duration

	mu     sync.RWMutex
	byName map[string]cached
	byID   map[string]cached
}

// NewService creates a cached tenant service.
func NewService(log *slog.Logger, store Reader, ttl time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "tenants")),
		ttl:    ttl,
		byName: make(map[string]cached),
		byID:   make(map[string]cached),
	}
}

// GetByName returns the tenant, from cache when fresh.
func (s *Service) GetByName(ctx context.Context, name string) (Tenant, error) {
	s.mu.RLock()
	entry, ok := s.byName[name]
	s.mu.RUnlock()
	if ok && time.Since(entry.loadedAt) < s.ttl {
		return entry.tenant, nil
	}
	tenant, err := s.store.GetByName(ctx, name)
	if err != nil {
		return Tenant{}, err
	}
	s.remember(tenant)
	return tenant, nil
}

// GetByID returns the tenant, from cache when fresh.
func (s *Service) GetByID(ctx context.Context, id string) (Tenant, error) {
	s.mu.RLock()
	entry, ok := s.byID[id]
	s.mu.RUnlock()
	if ok && time.Since(entry.loadedAt) < s.ttl {
		return entry.tenant, nil
	}
	tenant, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	s.remember(tenant)
	return tenant, nil
}

// Invalidate drops a tenant from the cache, e.g. after an admin update.
func (s *Service) Invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.byName[name]; ok {
		delete(s.byID, entry.tenant.ID)
	}
	delete(s.byName, name)
}

// ExpireStale evicts entries older than the TTL; run periodically.
func (s *Service) ExpireStale() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for name, entry := range s.byName {
		if time.Since(entry.loadedAt) >= s.ttl {
			delete(s.byName, name)
			delete(s.byID, entry.tenant.ID)
			evicted++
		}
	}
	return evicted
}

func (s *Service) remember(tenant Tenant) {
	entry := cached{tenant: tenant, loadedAt: time.Now()}
	s.mu.Lock()
	s.byName[tenant.Name] = entry
	s.byID[tenant.ID] = entry
	s.mu.Unlock()
}
