package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/eugenenazirov/config-overlay/internal/settings"
)

const surrealTable = "admin_config"

// SurrealConfig holds SurrealDB connection settings.
type SurrealConfig struct {
	URL       string `yaml:"url"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
}

// surrealQuerier runs SurrealQL and returns one {status, result} map per statement.
type surrealQuerier interface {
	Query(ctx context.Context, query string, vars map[string]interface{}) ([]interface{}, error)
	Close() error
}

// SurrealClient is a thin connection wrapper around the SurrealDB SDK.
type SurrealClient struct {
	db *surrealdb.DB
}

// ConnectSurreal opens a connection, signs in and selects the namespace and database.
func ConnectSurreal(ctx context.Context, cfg SurrealConfig) (*SurrealClient, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrUnavailable, err)
	}

	if cfg.User != "" {
		_, err = db.SignIn(ctx, &surrealdb.Auth{
			Username: cfg.User,
			Password: cfg.Password,
		})
		if err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("%w: signin failed: %v", ErrUnavailable, err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("%w: use failed: %v", ErrUnavailable, err)
	}

	return &SurrealClient{db: db}, nil
}

// Ping checks the connection.
func (c *SurrealClient) Ping(ctx context.Context) error {
	if _, err := c.db.Version(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *SurrealClient) Query(ctx context.Context, query string, vars map[string]interface{}) ([]interface{}, error) {
	results, err := surrealdb.Query[interface{}](ctx, c.db, query, vars)
	if err != nil {
		return nil, err
	}
	if results == nil {
		return nil, nil
	}

	output := make([]interface{}, 0, len(*results))
	for _, r := range *results {
		if r.Status != "OK" {
			if r.Error != nil {
				return nil, errors.New(r.Error.Message)
			}
			return nil, fmt.Errorf("statement status %s", r.Status)
		}
		output = append(output, map[string]interface{}{
			"status": r.Status,
			"result": r.Result,
		})
	}
	return output, nil
}

func (c *SurrealClient) Close() error {
	return c.db.Close(context.Background())
}

// SurrealBackend stores the document as a record in the admin_config table.
type SurrealBackend struct {
	db surrealQuerier
}

// NewSurrealBackend returns a backend over an open connection.
func NewSurrealBackend(db surrealQuerier) *SurrealBackend {
	return &SurrealBackend{db: db}
}

func (b *SurrealBackend) Latest(ctx context.Context) (Document, error) {
	rows, err := b.query(ctx, selectLatestSurQL, map[string]interface{}{"id": DocumentID})
	if err != nil {
		return Document{}, err
	}
	if len(rows) == 0 {
		return Document{}, ErrNotFound
	}
	return decodeSurrealDocument(rows[0])
}

// Timestamps are stored as datetime so ordering is chronological; ties prefer the
// fixed-id document.
const (
	selectLatestSurQL = `SELECT *, doc_id = $id AS is_current FROM admin_config
ORDER BY updated_at DESC, is_current DESC LIMIT 1;`

	documentContentSurQL = `{
	doc_id: $id,
	version: $version,
	generation: $generation,
	overrides: $overrides,
	updated_by: $updated_by,
	updated_at: <datetime>$updated_at,
	created_at: <datetime>$created_at
}`
)

func (b *SurrealBackend) Insert(ctx context.Context, doc Document) error {
	_, err := b.query(ctx, "CREATE type::thing($tb, $id) CONTENT "+documentContentSurQL+";", surrealVars(doc))
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

func (b *SurrealBackend) Save(ctx context.Context, doc Document) error {
	_, err := b.query(ctx, "UPSERT type::thing($tb, $id) CONTENT "+documentContentSurQL+";", surrealVars(doc))
	return err
}

func (b *SurrealBackend) DeleteStale(ctx context.Context, keepID string) (int, error) {
	rows, err := b.query(ctx, "DELETE admin_config WHERE doc_id != $id RETURN BEFORE;", map[string]interface{}{
		"id": keepID,
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (b *SurrealBackend) Close() error {
	return b.db.Close()
}

// query runs a single statement and returns its result rows.
func (b *SurrealBackend) query(ctx context.Context, query string, vars map[string]interface{}) ([]interface{}, error) {
	results, err := b.db.Query(ctx, query, vars)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	resp, ok := results[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected response %T", ErrUnavailable, results[0])
	}
	switch rows := resp["result"].(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return rows, nil
	default:
		return []interface{}{rows}, nil
	}
}

func surrealVars(doc Document) map[string]interface{} {
	return map[string]interface{}{
		"tb":         surrealTable,
		"id":         doc.ID,
		"version":    doc.Version,
		"generation": doc.Generation,
		"overrides":  doc.Overrides.ToMap(),
		"updated_by": doc.UpdatedBy,
		"updated_at": doc.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"created_at": doc.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeSurrealDocument(raw interface{}) (Document, error) {
	fields, ok := stringKeyed(raw)
	if !ok {
		return Document{}, fmt.Errorf("%w: unexpected record %T", ErrUnavailable, raw)
	}

	// record ids, datetimes and the ordering flag have no Value representation
	plain := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch k {
		case "id", "is_current", "updated_at", "created_at":
		default:
			plain[k] = v
		}
	}
	val, err := settings.FromAny(plain)
	if err != nil {
		return Document{}, fmt.Errorf("%w: decode record: %v", ErrUnavailable, err)
	}
	rec, _ := val.AsObject()

	doc := Document{Overrides: settings.Tree{}}
	if s, ok := rec["doc_id"].AsString(); ok {
		doc.ID = s
	}
	if n, ok := rec["version"].AsInt(); ok {
		doc.Version = int(n)
	}
	if n, ok := rec["generation"].AsInt(); ok && n > 0 {
		doc.Generation = uint64(n)
	}
	if obj, ok := rec["overrides"].AsObject(); ok {
		doc.Overrides = obj
	}
	if s, ok := rec["updated_by"].AsString(); ok {
		doc.UpdatedBy = s
	}
	doc.UpdatedAt = parseSurrealTime(fields["updated_at"])
	doc.CreatedAt = parseSurrealTime(fields["created_at"])
	return doc, nil
}

func stringKeyed(raw interface{}) (map[string]interface{}, bool) {
	switch rec := raw.(type) {
	case map[string]interface{}:
		return rec, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(rec))
		for k, v := range rec {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = v
		}
		return out, true
	default:
		return nil, false
	}
}

func parseSurrealTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case models.CustomDateTime:
		return t.Time.UTC()
	case *models.CustomDateTime:
		if t != nil {
			return t.Time.UTC()
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique")
}
