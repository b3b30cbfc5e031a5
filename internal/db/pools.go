package db

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reanhealth/botgateway/internal/tenants"
)

// TenantPools hands out per-tenant connection pools keyed by tenant id.
// Tenants without a DSN override share the default pool. Pools are created
// lazily on first access and reused across jobs; acquisition is safe for
// concurrent workers.
type TenantPools struct {
	def    *pgxpool.Pool
	logger *slog.Logger

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

// NewTenantPools creates the pool manager around the shared default pool.
func NewTenantPools(log *slog.Logger, def *pgxpool.Pool) *TenantPools {
	if log == nil {
		log = slog.Default()
	}
	return &TenantPools{
		def:    def,
		logger: log.With(slog.String("component", "tenant_pools")),
		pools:  make(map[string]*pgxpool.Pool),
	}
}

// Get returns the pool for the tenant, opening a dedicated one the first
// time a tenant with a DSN override is seen.
func (p *TenantPools) Get(ctx context.Context, tenant tenants.Tenant) (*pgxpool.Pool, error) {
	if tenant.DSN == "" {
		return p.def, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok := p.pools[tenant.ID]; ok {
		return pool, nil
	}
	pool, err := OpenDSN(ctx, tenant.DSN)
	if err != nil {
		return nil, err
	}
	p.logger.Info("opened dedicated tenant pool", slog.String("tenant_id", tenant.ID))
	p.pools[tenant.ID] = pool
	return pool, nil
}

// Close releases every dedicated tenant pool. The default pool is owned by
// the caller and left open.
func (p *TenantPools) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, pool := range p.pools {
		pool.Close()
		delete(p.pools, id)
	}
}
