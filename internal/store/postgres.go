package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/veille/internal/db"
	"github.com/sells-group/veille/internal/model"
)

const publicationsTable = "publications"

var publicationColumns = []string{
	"id", "url", "commune", "title", "description", "canton", "type", "published_at", "metadata", "created_at",
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS publications (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url          TEXT NOT NULL,
	commune      TEXT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	canton       TEXT NOT NULL,
	type         TEXT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	metadata     JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (url, commune)
);

CREATE INDEX IF NOT EXISTS idx_publications_canton ON publications(canton);
CREATE INDEX IF NOT EXISTS idx_publications_type ON publications(type);
CREATE INDEX IF NOT EXISTS idx_publications_published_at ON publications(published_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SavePublications bulk-inserts through a temp table and keeps the input
// publications whose keys came back from the insert.
func (s *PostgresStore) SavePublications(ctx context.Context, pubs []model.Publication) ([]model.Publication, error) {
	pubs = uniqueByKey(pubs)
	if len(pubs) == 0 {
		return nil, nil
	}

	created := s.clock().UTC()
	rows := make([][]any, len(pubs))
	for i, p := range pubs {
		meta, err := marshalMetadata(p.Metadata)
		if err != nil {
			return nil, err
		}
		rows[i] = []any{
			uuid.New().String(), p.URL, p.Commune, p.Title, p.Description,
			string(p.Canton), string(p.Type), p.PublishedAt.UTC(), meta, created,
		}
	}

	returned, err := db.InsertNew(ctx, s.pool, db.InsertConfig{
		Table:        publicationsTable,
		Columns:      publicationColumns,
		ConflictKeys: []string{"url", "commune"},
		Returning:    []string{"url", "commune"},
	}, rows)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: save publications")
	}

	isNew := make(map[string]bool, len(returned))
	for _, vals := range returned {
		if len(vals) != 2 {
			return nil, eris.Errorf("postgres: expected 2 returned columns, got %d", len(vals))
		}
		url, _ := vals[0].(string)
		commune, _ := vals[1].(string)
		isNew[url+"-"+commune] = true
	}
	inserted := make([]model.Publication, 0, len(returned))
	for _, p := range pubs {
		if isNew[p.Key()] {
			inserted = append(inserted, p)
		}
	}
	return inserted, nil
}

func (s *PostgresStore) ListPublications(ctx context.Context, filter PublicationFilter) ([]model.Publication, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Canton != "" {
		where = append(where, "canton = "+arg(string(filter.Canton)))
	}
	if filter.Type != "" {
		where = append(where, "type = "+arg(string(filter.Type)))
	}
	if !filter.Since.IsZero() {
		where = append(where, "published_at >= "+arg(filter.Since.UTC()))
	}

	query := "SELECT url, commune, title, description, canton, type, published_at, metadata FROM publications"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY published_at DESC, url LIMIT " + arg(filter.limit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list publications")
	}
	defer rows.Close()

	var out []model.Publication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate publications")
}

func scanPublication(row pgx.Row) (*model.Publication, error) {
	var (
		p       model.Publication
		canton  string
		pubType string
		meta    []byte
	)
	if err := row.Scan(&p.URL, &p.Commune, &p.Title, &p.Description, &canton, &pubType, &p.PublishedAt, &meta); err != nil {
		return nil, eris.Wrap(err, "postgres: scan publication")
	}
	p.Canton = model.Canton(canton)
	p.Type = model.PublicationType(pubType)
	m, err := unmarshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	p.Metadata = m
	return &p, nil
}

func (s *PostgresStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
