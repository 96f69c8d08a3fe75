package library

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/xerrors"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const (
	sqliteDriverName    string = "sqlite"
	sqliteBusyTimeoutMS int    = 10000
	schemaVersion       int    = 1
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS bookmarks (
		source_id TEXT NOT NULL,
		manga_id TEXT NOT NULL,
		title TEXT NOT NULL,
		cover_url TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		authors TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT '',
		added_at INTEGER NOT NULL,
		last_read_chapter_id TEXT NOT NULL DEFAULT '',
		last_read_page INTEGER NOT NULL DEFAULT 0,
		last_read_at INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (source_id, manga_id)
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS chapters (
		source_id TEXT NOT NULL,
		manga_id TEXT NOT NULL,
		chapter_id TEXT NOT NULL,
		chapter_index INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL DEFAULT 0,
		read INTEGER NOT NULL DEFAULT 0,
		last_page INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (source_id, manga_id, chapter_id),
		FOREIGN KEY (source_id, manga_id) REFERENCES bookmarks (source_id, manga_id) ON DELETE CASCADE
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		position INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookmark_categories (
		source_id TEXT NOT NULL,
		manga_id TEXT NOT NULL,
		category_id INTEGER NOT NULL,
		PRIMARY KEY (source_id, manga_id, category_id),
		FOREIGN KEY (source_id, manga_id) REFERENCES bookmarks (source_id, manga_id) ON DELETE CASCADE,
		FOREIGN KEY (category_id) REFERENCES categories (id) ON DELETE CASCADE
	) WITHOUT ROWID`,
	"CREATE INDEX IF NOT EXISTS idx_chapters_manga ON chapters (source_id, manga_id, chapter_index)",
	"CREATE INDEX IF NOT EXISTS idx_bookmark_categories_category ON bookmark_categories (category_id)",
}

// openSqlite opens the library database and applies pragmas
func openSqlite(ctx context.Context, path string) (*sql.DB, error) {
	if len(path) == 0 {
		return nil, xerrors.New("open sqlite: path is empty")
	}

	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, xerrors.Errorf("open sqlite: %w", err)
	}

	// one connection keeps pragmas and in-memory databases consistent
	db.SetMaxOpenConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("ping sqlite: %w", err)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
	`, sqliteBusyTimeoutMS))
	if err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("apply pragmas: %w", err)
	}

	return db, nil
}

// migrate creates tables if they do not exist
func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	if err != nil {
		return xerrors.Errorf("read user_version: %w", err)
	}

	if version == schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schemaStatements {
		_, err = tx.ExecContext(ctx, stmt)
		if err != nil {
			return xerrors.Errorf("schema statement %d: %w", i+1, err)
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	if err != nil {
		return xerrors.Errorf("write user_version: %w", err)
	}

	return tx.Commit()
}
