package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dgallion1/notiondocs/internal/doctree"
	"github.com/dgallion1/notiondocs/internal/slug"
)

// SQLite stores pages and navigation in a SQLite database. Each batch is a
// single transaction that replaces the previous site.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the database at dbPath. Use
// ":memory:" for an in-memory database.
func NewSQLite(dbPath string) (*SQLite, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		// WAL lets readers see the last committed site while a build runs.
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLite{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		slug TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS navigation (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Begin(ctx context.Context) (Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pages"); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("clear pages: %w", err)
	}
	return &sqliteBatch{tx: tx}, nil
}

func (s *SQLite) Page(ctx context.Context, sl string) (StoredPage, error) {
	p := StoredPage{Slug: sl}
	err := s.db.QueryRowContext(ctx, "SELECT title, body FROM pages WHERE slug = ?", sl).Scan(&p.Title, &p.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredPage{}, ErrNotFound
	}
	if err != nil {
		return StoredPage{}, fmt.Errorf("query page %s: %w", sl, err)
	}
	return p, nil
}

func (s *SQLite) Pages(ctx context.Context) ([]StoredPage, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT slug, title, body FROM pages ORDER BY slug")
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []StoredPage
	for rows.Next() {
		var p StoredPage
		if err := rows.Scan(&p.Slug, &p.Title, &p.Body); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *SQLite) Navigation(ctx context.Context) ([]doctree.Section, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM navigation WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []doctree.Section{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query navigation: %w", err)
	}
	nav := []doctree.Section{}
	if err := json.Unmarshal([]byte(data), &nav); err != nil {
		return nil, fmt.Errorf("decode navigation: %w", err)
	}
	return nav, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteBatch struct {
	tx *sql.Tx
}

func (b *sqliteBatch) Save(ctx context.Context, title, body string) error {
	if !ShouldSave(title, body) {
		return nil
	}
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO pages (slug, title, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET title = excluded.title, body = excluded.body, updated_at = excluded.updated_at`,
		slug.Slugify(title), title, body, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}

func (b *sqliteBatch) SaveNavigation(ctx context.Context, nav []doctree.Section) error {
	if nav == nil {
		nav = []doctree.Section{}
	}
	data, err := json.Marshal(nav)
	if err != nil {
		return fmt.Errorf("encode navigation: %w", err)
	}
	_, err = b.tx.ExecContext(ctx, `
		INSERT INTO navigation (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert navigation: %w", err)
	}
	return nil
}

func (b *sqliteBatch) Commit(context.Context) error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *sqliteBatch) Rollback() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
