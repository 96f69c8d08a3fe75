package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service/remote"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Library keeps bookmarked manga, their chapters and read progress, and categories
type Library struct {
	path string
	db   *sql.DB
}

// OpenLibrary opens or creates a library database
func OpenLibrary(ctx context.Context, path string) (*Library, error) {
	logger := log.WithFields(log.Fields{
		"package":  "library",
		"function": "OpenLibrary",
	})

	db, err := openSqlite(ctx, path)
	if err != nil {
		return nil, err
	}

	err = migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Infof("Opened library %s", path)
	return &Library{
		path: path,
		db:   db,
	}, nil
}

// Release closes the database
func (library *Library) Release() error {
	return library.db.Close()
}

// GetPath returns the database path
func (library *Library) GetPath() string {
	return library.path
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// Has checks if the manga is bookmarked
func (library *Library) Has(ctx context.Context, sourceID string, mangaID string) (bool, error) {
	var count int
	err := library.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookmarks WHERE source_id = ? AND manga_id = ?", sourceID, mangaID).Scan(&count)
	if err != nil {
		return false, xerrors.Errorf("failed to query bookmark: %w", err)
	}
	return count > 0, nil
}

// Bookmark adds the manga to the library or refreshes its metadata, read progress is kept
func (library *Library) Bookmark(ctx context.Context, manga *remote.Manga) error {
	if manga == nil || len(manga.SourceID) == 0 || len(manga.ID) == 0 {
		return commons.NewInvalidArgumentErrorf("manga must have source and id")
	}

	authors, err := json.Marshal(manga.Authors)
	if err != nil {
		return xerrors.Errorf("failed to marshal authors: %w", err)
	}

	_, err = library.db.ExecContext(ctx, `
		INSERT INTO bookmarks (source_id, manga_id, title, cover_url, description, authors, status, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, manga_id) DO UPDATE SET
			title = excluded.title,
			cover_url = excluded.cover_url,
			description = excluded.description,
			authors = excluded.authors,
			status = excluded.status
	`, manga.SourceID, manga.ID, manga.Title, manga.CoverURL, manga.Description, string(authors), manga.Status, time.Now().UnixNano())
	if err != nil {
		return xerrors.Errorf("failed to bookmark %s: %w", manga.ToString(), err)
	}
	return nil
}

// RemoveBookmark removes the manga with its chapters and category links.
// Returns false if it was not bookmarked.
func (library *Library) RemoveBookmark(ctx context.Context, sourceID string, mangaID string) (bool, error) {
	result, err := library.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE source_id = ? AND manga_id = ?", sourceID, mangaID)
	if err != nil {
		return false, xerrors.Errorf("failed to remove bookmark: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, xerrors.Errorf("failed to remove bookmark: %w", err)
	}
	return affected > 0, nil
}

const bookmarkColumns = "b.source_id, b.manga_id, b.title, b.cover_url, b.description, b.authors, b.status, b.added_at, b.last_read_chapter_id, b.last_read_page, b.last_read_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBookmark(row rowScanner) (*Bookmark, error) {
	bookmark := &Bookmark{}
	var authors string
	var addedAt, lastReadAt int64

	err := row.Scan(&bookmark.SourceID, &bookmark.MangaID, &bookmark.Title, &bookmark.CoverURL, &bookmark.Description, &authors, &bookmark.Status, &addedAt, &bookmark.LastReadChapterID, &bookmark.LastReadPage, &lastReadAt)
	if err != nil {
		return nil, err
	}

	if len(authors) > 0 {
		if err := json.Unmarshal([]byte(authors), &bookmark.Authors); err != nil {
			return nil, xerrors.Errorf("failed to unmarshal authors: %w", err)
		}
	}

	bookmark.AddedAt = fromUnixNano(addedAt)
	bookmark.LastReadAt = fromUnixNano(lastReadAt)
	return bookmark, nil
}

func (library *Library) loadCategoryIDs(ctx context.Context, bookmark *Bookmark) error {
	rows, err := library.db.QueryContext(ctx, `
		SELECT bc.category_id FROM bookmark_categories bc
		JOIN categories c ON c.id = bc.category_id
		WHERE bc.source_id = ? AND bc.manga_id = ?
		ORDER BY c.position
	`, bookmark.SourceID, bookmark.MangaID)
	if err != nil {
		return xerrors.Errorf("failed to query bookmark categories: %w", err)
	}
	defer rows.Close()

	bookmark.CategoryIDs = []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return xerrors.Errorf("failed to scan bookmark category: %w", err)
		}
		bookmark.CategoryIDs = append(bookmark.CategoryIDs, id)
	}
	return rows.Err()
}

// Get returns a bookmark, MangaNotFoundError if the manga is not bookmarked
func (library *Library) Get(ctx context.Context, sourceID string, mangaID string) (*Bookmark, error) {
	row := library.db.QueryRowContext(ctx, "SELECT "+bookmarkColumns+" FROM bookmarks b WHERE b.source_id = ? AND b.manga_id = ?", sourceID, mangaID)
	bookmark, err := scanBookmark(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, commons.NewMangaNotFoundError(sourceID, mangaID)
		}
		return nil, xerrors.Errorf("failed to get bookmark: %w", err)
	}

	err = library.loadCategoryIDs(ctx, bookmark)
	if err != nil {
		return nil, err
	}
	return bookmark, nil
}

// List returns bookmarks of a category, or all bookmarks if categoryID is 0.
// Recently read ones come first.
func (library *Library) List(ctx context.Context, categoryID int64) ([]*Bookmark, error) {
	query := "SELECT " + bookmarkColumns + " FROM bookmarks b"
	args := []interface{}{}
	if categoryID != 0 {
		query += " JOIN bookmark_categories bc ON bc.source_id = b.source_id AND bc.manga_id = b.manga_id WHERE bc.category_id = ?"
		args = append(args, categoryID)
	}
	query += " ORDER BY b.last_read_at DESC, b.added_at DESC"

	rows, err := library.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Errorf("failed to list bookmarks: %w", err)
	}

	bookmarks := []*Bookmark{}
	for rows.Next() {
		bookmark, err := scanBookmark(rows)
		if err != nil {
			rows.Close()
			return nil, xerrors.Errorf("failed to scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, bookmark)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, xerrors.Errorf("failed to list bookmarks: %w", err)
	}

	// the connection is free again, load categories
	for _, bookmark := range bookmarks {
		if err := library.loadCategoryIDs(ctx, bookmark); err != nil {
			return nil, err
		}
	}
	return bookmarks, nil
}

func (library *Library) requireBookmark(ctx context.Context, sourceID string, mangaID string) error {
	has, err := library.Has(ctx, sourceID, mangaID)
	if err != nil {
		return err
	}

	if !has {
		return commons.NewMangaNotFoundError(sourceID, mangaID)
	}
	return nil
}

// UpdateChapters replaces the chapter list of a bookmark, read state of kept chapters survives
func (library *Library) UpdateChapters(ctx context.Context, sourceID string, mangaID string, chapters []remote.Chapter) error {
	err := library.requireBookmark(ctx, sourceID, mangaID)
	if err != nil {
		return err
	}

	tx, err := library.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]interface{}, 0, len(chapters)+2)
	ids = append(ids, sourceID, mangaID)

	for _, chapter := range chapters {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chapters (source_id, manga_id, chapter_id, chapter_index, title, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (source_id, manga_id, chapter_id) DO UPDATE SET
				chapter_index = excluded.chapter_index,
				title = excluded.title,
				updated_at = excluded.updated_at
		`, sourceID, mangaID, chapter.ID, chapter.Index, chapter.Title, toUnixNano(chapter.UpdatedAt))
		if err != nil {
			return xerrors.Errorf("failed to upsert chapter %s: %w", chapter.ID, err)
		}
		ids = append(ids, chapter.ID)
	}

	deleteQuery := "DELETE FROM chapters WHERE source_id = ? AND manga_id = ?"
	if len(chapters) > 0 {
		deleteQuery += " AND chapter_id NOT IN (?" + strings.Repeat(", ?", len(chapters)-1) + ")"
	}

	_, err = tx.ExecContext(ctx, deleteQuery, ids...)
	if err != nil {
		return xerrors.Errorf("failed to delete stale chapters: %w", err)
	}

	return tx.Commit()
}

// GetChapters returns stored chapters of a bookmark by index
func (library *Library) GetChapters(ctx context.Context, sourceID string, mangaID string) ([]StoredChapter, error) {
	rows, err := library.db.QueryContext(ctx, `
		SELECT chapter_id, chapter_index, title, updated_at, read, last_page FROM chapters
		WHERE source_id = ? AND manga_id = ?
		ORDER BY chapter_index
	`, sourceID, mangaID)
	if err != nil {
		return nil, xerrors.Errorf("failed to query chapters: %w", err)
	}
	defer rows.Close()

	chapters := []StoredChapter{}
	for rows.Next() {
		chapter := StoredChapter{}
		var updatedAt int64
		err := rows.Scan(&chapter.ChapterID, &chapter.Index, &chapter.Title, &updatedAt, &chapter.Read, &chapter.LastPage)
		if err != nil {
			return nil, xerrors.Errorf("failed to scan chapter: %w", err)
		}
		chapter.UpdatedAt = fromUnixNano(updatedAt)
		chapters = append(chapters, chapter)
	}
	return chapters, rows.Err()
}

// MarkChapterAsRead sets the read flag of a stored chapter
func (library *Library) MarkChapterAsRead(ctx context.Context, sourceID string, mangaID string, chapterID string, read bool) error {
	result, err := library.db.ExecContext(ctx, "UPDATE chapters SET read = ? WHERE source_id = ? AND manga_id = ? AND chapter_id = ?", read, sourceID, mangaID, chapterID)
	if err != nil {
		return xerrors.Errorf("failed to mark chapter: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return xerrors.Errorf("failed to mark chapter: %w", err)
	}

	if affected == 0 {
		return commons.NewChapterNotFoundError(sourceID, mangaID, chapterID)
	}
	return nil
}

// UpdateBookmarkReadInfo records the last read chapter and page of a bookmark
func (library *Library) UpdateBookmarkReadInfo(ctx context.Context, sourceID string, mangaID string, chapterID string, page int) error {
	tx, err := library.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE bookmarks SET last_read_chapter_id = ?, last_read_page = ?, last_read_at = ?
		WHERE source_id = ? AND manga_id = ?
	`, chapterID, page, time.Now().UnixNano(), sourceID, mangaID)
	if err != nil {
		return xerrors.Errorf("failed to update read info: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return xerrors.Errorf("failed to update read info: %w", err)
	}

	if affected == 0 {
		return commons.NewMangaNotFoundError(sourceID, mangaID)
	}

	// the chapter may not be stored yet
	_, err = tx.ExecContext(ctx, "UPDATE chapters SET last_page = ? WHERE source_id = ? AND manga_id = ? AND chapter_id = ?", page, sourceID, mangaID, chapterID)
	if err != nil {
		return xerrors.Errorf("failed to update chapter page: %w", err)
	}

	return tx.Commit()
}
