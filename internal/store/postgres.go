package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eugenenazirov/config-overlay/internal/settings"
	"github.com/eugenenazirov/config-overlay/internal/store/migrations"
)

const pgUniqueViolation = "23505"

// pgQuerier is the subset of *pgxpool.Pool used by PostgresBackend.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend stores the document as a row of the admin_config table.
type PostgresBackend struct {
	db    pgQuerier
	close func()
}

// OpenPostgres connects to dsn, applies migrations and returns a backend.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	if err := migrations.RunMigrationsUp(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresBackend{db: pool, close: pool.Close}, nil
}

// NewPostgresBackend wraps an existing connection. Migrations are the caller's concern.
func NewPostgresBackend(db pgQuerier) *PostgresBackend {
	return &PostgresBackend{db: db}
}

const selectLatestSQL = `SELECT id, version, generation, overrides, updated_by, updated_at, created_at
FROM admin_config ORDER BY updated_at DESC, (id = 'admin-config') DESC LIMIT 1`

func (b *PostgresBackend) Latest(ctx context.Context) (Document, error) {
	var (
		doc       Document
		overrides []byte
		gen       int64
	)
	err := b.db.QueryRow(ctx, selectLatestSQL).Scan(
		&doc.ID, &doc.Version, &gen, &overrides, &doc.UpdatedBy, &doc.UpdatedAt, &doc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if gen > 0 {
		doc.Generation = uint64(gen)
	}

	doc.Overrides = settings.Tree{}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &doc.Overrides); err != nil {
			return Document{}, fmt.Errorf("%w: decode overrides: %v", ErrUnavailable, err)
		}
	}
	return doc, nil
}

const insertSQL = `INSERT INTO admin_config (id, version, generation, overrides, updated_by, updated_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (b *PostgresBackend) Insert(ctx context.Context, doc Document) error {
	args, err := pgArgs(doc)
	if err != nil {
		return err
	}
	_, err = b.db.Exec(ctx, insertSQL, args...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

const upsertSQL = insertSQL + `
ON CONFLICT (id) DO UPDATE SET
    version = EXCLUDED.version,
    generation = EXCLUDED.generation,
    overrides = EXCLUDED.overrides,
    updated_by = EXCLUDED.updated_by,
    updated_at = EXCLUDED.updated_at`

func (b *PostgresBackend) Save(ctx context.Context, doc Document) error {
	args, err := pgArgs(doc)
	if err != nil {
		return err
	}
	if _, err := b.db.Exec(ctx, upsertSQL, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *PostgresBackend) DeleteStale(ctx context.Context, keepID string) (int, error) {
	tag, err := b.db.Exec(ctx, `DELETE FROM admin_config WHERE id <> $1`, keepID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

func (b *PostgresBackend) Close() error {
	if b.close != nil {
		b.close()
	}
	return nil
}

func pgArgs(doc Document) ([]any, error) {
	overrides := doc.Overrides
	if overrides == nil {
		overrides = settings.Tree{}
	}
	payload, err := json.Marshal(overrides)
	if err != nil {
		return nil, fmt.Errorf("encode overrides: %w", err)
	}
	return []any{
		doc.ID,
		doc.Version,
		int64(doc.Generation),
		payload,
		doc.UpdatedBy,
		doc.UpdatedAt.UTC().Truncate(time.Microsecond),
		doc.CreatedAt.UTC().Truncate(time.Microsecond),
	}, nil
}
