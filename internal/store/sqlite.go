package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/veille/internal/model"
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS publications (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	commune      TEXT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	canton       TEXT NOT NULL,
	type         TEXT NOT NULL,
	published_at TEXT NOT NULL,
	metadata     TEXT,
	created_at   TEXT NOT NULL,
	UNIQUE (url, commune)
);

CREATE INDEX IF NOT EXISTS idx_publications_canton ON publications(canton);
CREATE INDEX IF NOT EXISTS idx_publications_type ON publications(type);
CREATE INDEX IF NOT EXISTS idx_publications_published_at ON publications(published_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SavePublications(ctx context.Context, pubs []model.Publication) ([]model.Publication, error) {
	pubs = uniqueByKey(pubs)
	if len(pubs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO publications
		(id, url, commune, title, description, canton, type, published_at, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	created := s.now().UTC().Format(timeLayout)
	var inserted []model.Publication
	for _, p := range pubs {
		meta, err := marshalMetadata(p.Metadata)
		if err != nil {
			return nil, err
		}
		res, err := stmt.ExecContext(ctx,
			uuid.New().String(), p.URL, p.Commune, p.Title, p.Description,
			string(p.Canton), string(p.Type), p.PublishedAt.UTC().Format(timeLayout), metadataText(meta), created,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert publication %s", p.URL)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 1 {
			inserted = append(inserted, p)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListPublications(ctx context.Context, filter PublicationFilter) ([]model.Publication, error) {
	query := `SELECT url, commune, title, description, canton, type, published_at, metadata FROM publications`
	var (
		where []string
		args  []any
	)
	if filter.Canton != "" {
		where = append(where, "canton = ?")
		args = append(args, string(filter.Canton))
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		where = append(where, "published_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY published_at DESC, url LIMIT ?"
	args = append(args, filter.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list publications")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Publication
	for rows.Next() {
		var (
			p         model.Publication
			canton    string
			pubType   string
			published string
			meta      sql.NullString
		)
		if err := rows.Scan(&p.URL, &p.Commune, &p.Title, &p.Description, &canton, &pubType, &published, &meta); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan publication")
		}
		p.Canton = model.Canton(canton)
		p.Type = model.PublicationType(pubType)
		if p.PublishedAt, err = time.Parse(timeLayout, published); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse published_at %q", published)
		}
		if meta.Valid {
			if p.Metadata, err = unmarshalMetadata([]byte(meta.String)); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate publications")
}

func marshalMetadata(m model.Metadata) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal metadata")
	}
	return data, nil
}

// metadataText stores metadata as TEXT, or NULL when empty.
func metadataText(data []byte) any {
	if data == nil {
		return nil
	}
	return string(data)
}

func unmarshalMetadata(data []byte) (model.Metadata, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m model.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal metadata")
	}
	return m, nil
}
