package library

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mirareader/mira-pool/commons"
	"golang.org/x/xerrors"
)

// ListCategories returns categories by position
func (library *Library) ListCategories(ctx context.Context) ([]Category, error) {
	return listCategories(ctx, library.db)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func listCategories(ctx context.Context, db queryer) ([]Category, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, name, position FROM categories ORDER BY position, id")
	if err != nil {
		return nil, xerrors.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		category := Category{}
		if err := rows.Scan(&category.ID, &category.Name, &category.Position); err != nil {
			return nil, xerrors.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// CreateCategory appends a category at the last position
func (library *Library) CreateCategory(ctx context.Context, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return nil, commons.NewInvalidArgumentErrorf("category name must not be empty")
	}

	tx, err := library.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&count)
	if err != nil {
		return nil, xerrors.Errorf("failed to count categories: %w", err)
	}

	result, err := tx.ExecContext(ctx, "INSERT INTO categories (name, position) VALUES (?, ?)", name, count)
	if err != nil {
		return nil, xerrors.Errorf("failed to create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, xerrors.Errorf("failed to create category: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, xerrors.Errorf("failed to create category: %w", err)
	}

	return &Category{
		ID:       id,
		Name:     name,
		Position: count,
	}, nil
}

// RenameCategory renames a category
func (library *Library) RenameCategory(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return commons.NewInvalidArgumentErrorf("category name must not be empty")
	}

	result, err := library.db.ExecContext(ctx, "UPDATE categories SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return xerrors.Errorf("failed to rename category: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return xerrors.Errorf("failed to rename category: %w", err)
	}

	if affected == 0 {
		return commons.NewCategoryNotFoundError(id)
	}
	return nil
}

// DeleteCategory deletes a category and closes the gap in positions
func (library *Library) DeleteCategory(ctx context.Context, id int64) error {
	tx, err := library.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return xerrors.Errorf("failed to delete category: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return xerrors.Errorf("failed to delete category: %w", err)
	}

	if affected == 0 {
		return commons.NewCategoryNotFoundError(id)
	}

	categories, err := listCategories(ctx, tx)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(categories))
	for _, category := range categories {
		ids = append(ids, category.ID)
	}

	err = writePositions(ctx, tx, ids)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// MoveCategory moves a category to newPosition, positions stay 0..n-1.
// newPosition is clamped to the valid range.
func (library *Library) MoveCategory(ctx context.Context, id int64, newPosition int) error {
	tx, err := library.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	categories, err := listCategories(ctx, tx)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(categories))
	found := false
	for _, category := range categories {
		if category.ID == id {
			found = true
			continue
		}
		ids = append(ids, category.ID)
	}

	if !found {
		return commons.NewCategoryNotFoundError(id)
	}

	if newPosition < 0 {
		newPosition = 0
	}
	if newPosition > len(ids) {
		newPosition = len(ids)
	}

	ids = append(ids, 0)
	copy(ids[newPosition+1:], ids[newPosition:])
	ids[newPosition] = id

	err = writePositions(ctx, tx, ids)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func writePositions(ctx context.Context, tx *sql.Tx, ids []int64) error {
	for position, id := range ids {
		_, err := tx.ExecContext(ctx, "UPDATE categories SET position = ? WHERE id = ?", position, id)
		if err != nil {
			return xerrors.Errorf("failed to update position of category %d: %w", id, err)
		}
	}
	return nil
}

// SetBookmarkCategories replaces the categories of a bookmark
func (library *Library) SetBookmarkCategories(ctx context.Context, sourceID string, mangaID string, categoryIDs []int64) error {
	err := library.requireBookmark(ctx, sourceID, mangaID)
	if err != nil {
		return err
	}

	tx, err := library.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "DELETE FROM bookmark_categories WHERE source_id = ? AND manga_id = ?", sourceID, mangaID)
	if err != nil {
		return xerrors.Errorf("failed to clear bookmark categories: %w", err)
	}

	for _, categoryID := range categoryIDs {
		var exists int
		err = tx.QueryRowContext(ctx, "SELECT 1 FROM categories WHERE id = ?", categoryID).Scan(&exists)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return commons.NewCategoryNotFoundError(categoryID)
			}
			return xerrors.Errorf("failed to query category: %w", err)
		}

		_, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO bookmark_categories (source_id, manga_id, category_id) VALUES (?, ?, ?)", sourceID, mangaID, categoryID)
		if err != nil {
			return xerrors.Errorf("failed to link category %d: %w", categoryID, err)
		}
	}

	return tx.Commit()
}
