package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reanhealth/botgateway/internal/errs"
	"github.com/reanhealth/botgateway/internal/messaging"
)

// Store persists tenants in Postgres. Channel credentials are stored as a
// JSONB document keyed by channel kind.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a tenant store on the shared pool.
func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{pool: pool, logger: log.With(slog.String("store", "tenants"))}
}

// GetByName loads a tenant by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (Tenant, error) {
	return s.get(ctx, `SELECT id, name, dsn, channels, created_at, updated_at FROM tenants WHERE name = $1`, strings.TrimSpace(name))
}

// GetByID loads a tenant by id.
func (s *Store) GetByID(ctx context.Context, id string) (Tenant, error) {
	return s.get(ctx, `SELECT id, name, dsn, channels, created_at, updated_at FROM tenants WHERE id = $1`, id)
}

func (s *Store) get(ctx context.Context, query, arg string) (Tenant, error) {
	var (
		t        Tenant
		dsn      *string
		channels []byte
	)
	row := s.pool.QueryRow(ctx, query, arg)
	if err := row.Scan(&t.ID, &t.Name, &dsn, &channels, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, errs.New(errs.KindNotFound, "tenant %q not found", arg)
		}
		return Tenant{}, fmt.Errorf("query tenant: %w", err)
	}
	if dsn != nil {
		t.DSN = *dsn
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &t.Channels); err != nil {
			return Tenant{}, fmt.Errorf("decode tenant channels: %w", err)
		}
	}
	return t, nil
}

// Upsert creates or updates a tenant by name and returns the stored record.
func (s *Store) Upsert(ctx context.Context, req UpsertRequest) (Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Tenant{}, errs.New(errs.KindValidation, "tenant name is required")
	}
	if req.Channels == nil {
		req.Channels = map[messaging.ChannelKind]ChannelCredentials{}
	}
	channels, err := json.Marshal(req.Channels)
	if err != nil {
		return Tenant{}, fmt.Errorf("encode tenant channels: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, dsn, channels, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $5)
		ON CONFLICT (name) DO UPDATE
		SET dsn = NULLIF($3, ''), channels = $4, updated_at = $5`,
		uuid.NewString(), name, req.DSN, channels, now)
	if err != nil {
		return Tenant{}, fmt.Errorf("upsert tenant: %w", err)
	}
	return s.GetByName(ctx, name)
}
