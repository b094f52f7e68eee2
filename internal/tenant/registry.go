// Package tenant resolves authenticated callers to isolated per-tenant data
// handles. A handle returned for tenant X is bound to tenant X's database
// connection and can never observe another tenant's rows.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ensemblehq/chairfill/internal/database"
	"github.com/ensemblehq/chairfill/internal/store"
)

// ErrUnknownTenant indicates the tenant has no configured data store. This is
// a fatal configuration error for the operation: there is no fallback handle.
var ErrUnknownTenant = errors.New("unknown tenant")

type entry struct {
	db       *database.DB
	store    *store.Store
	lastUsed time.Time
}

// Registry is a connection-pool registry keyed by tenant identifier. Pools
// are opened lazily on first use and evicted after sitting idle.
type Registry struct {
	dsns        map[string]string
	idleTimeout time.Duration
	log         *zap.SugaredLogger

	mu      sync.Mutex
	entries map[string]*entry

	// Lifecycle management for the idle eviction loop
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry for the configured tenant DSNs.
func NewRegistry(dsns map[string]string, idleTimeout time.Duration, log *zap.SugaredLogger) *Registry {
	return &Registry{
		dsns:        dsns,
		idleTimeout: idleTimeout,
		log:         log,
		entries:     make(map[string]*entry),
	}
}

// Resolve returns the store handle for a tenant, opening and migrating its
// database on first use.
func (r *Registry) Resolve(ctx context.Context, tenantID string) (*store.Store, error) {
	dsn, ok := r.dsns[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[tenantID]; ok {
		e.lastUsed = time.Now()
		return e.store, nil
	}

	db, err := database.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database for tenant %s: %w", tenantID, err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database for tenant %s: %w", tenantID, err)
	}

	r.log.Infow("tenant store opened", "tenant", tenantID, "driver", db.Driver)
	e := &entry{db: db, store: store.New(db.DB), lastUsed: time.Now()}
	r.entries[tenantID] = e
	return e.store, nil
}

// Tenants returns all configured tenant identifiers. The sweep trigger uses
// this to iterate every tenant's data store.
func (r *Registry) Tenants() []string {
	ids := make([]string, 0, len(r.dsns))
	for id := range r.dsns {
		ids = append(ids, id)
	}
	return ids
}

// Start begins the idle eviction loop.
func (r *Registry) Start(parentCtx context.Context) {
	r.ctx, r.cancel = context.WithCancel(parentCtx)
	r.wg.Add(1)
	go r.evictionLoop()
}

// Stop stops the eviction loop and closes all open pools.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
		r.wg.Wait()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for tenantID, e := range r.entries {
		if err := e.db.Close(); err != nil {
			r.log.Warnw("failed to close tenant store", "tenant", tenantID, "error", err)
		}
		delete(r.entries, tenantID)
	}
}

// evictionLoop periodically closes pools that have been idle too long.
func (r *Registry) evictionLoop() {
	defer r.wg.Done()

	interval := r.idleTimeout / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle(time.Now())
		}
	}
}

func (r *Registry) evictIdle(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for tenantID, e := range r.entries {
		if now.Sub(e.lastUsed) < r.idleTimeout {
			continue
		}
		if err := e.db.Close(); err != nil {
			r.log.Warnw("failed to close idle tenant store", "tenant", tenantID, "error", err)
		}
		delete(r.entries, tenantID)
		r.log.Infow("evicted idle tenant store", "tenant", tenantID)
	}
}
