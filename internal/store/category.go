package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// GetCategoryBySlug returns the category with the given slug, or ErrNotFound.
func (s *Store) GetCategoryBySlug(slug string) (Category, error) {
	row := s.db.QueryRow(`SELECT id, name, slug, position, created_at FROM categories WHERE slug = ?`, slug)
	return scanCategory(row)
}

// GetCategory returns the category by id, or ErrNotFound.
func (s *Store) GetCategory(id string) (Category, error) {
	row := s.db.QueryRow(`SELECT id, name, slug, position, created_at FROM categories WHERE id = ?`, id)
	return scanCategory(row)
}

// GetCategoryByPosition returns the category at the given dense position.
func (s *Store) GetCategoryByPosition(position int) (Category, error) {
	row := s.db.QueryRow(`SELECT id, name, slug, position, created_at FROM categories WHERE position = ?`, position)
	return scanCategory(row)
}

// ListCategories returns all categories ordered by position.
func (s *Store) ListCategories() ([]Category, error) {
	rows, err := s.db.Query(`SELECT id, name, slug, position, created_at FROM categories ORDER BY position`)
	if err != nil {
		return nil, wrapDBError("list categories", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, wrapDBError("list categories", err)
		}
		out = append(out, c)
	}
	return out, wrapDBError("list categories", rows.Err())
}

// CreateCategory inserts a new category at the end of the position order.
// name/slug uniqueness is enforced by the schema; violations surface as
// ErrConflict. Callers must pre-validate name length (spec §8 property 10).
func (s *Store) CreateCategory(name, slug string) (Category, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Category{}, wrapDBError("create category", err)
	}
	defer tx.Rollback()

	var maxPos sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(position) FROM categories`).Scan(&maxPos); err != nil {
		return Category{}, wrapDBError("create category", err)
	}
	position := 0
	if maxPos.Valid {
		position = int(maxPos.Int64) + 1
	}

	now := isoNow()
	c := Category{ID: newID(), Name: name, Slug: slug, Position: position}
	_, err = tx.Exec(`INSERT INTO categories (id, name, slug, position, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Slug, c.Position, now)
	if err != nil {
		return Category{}, wrapDBError("create category", err)
	}
	if err := tx.Commit(); err != nil {
		return Category{}, wrapDBError("create category", err)
	}
	c.CreatedAt, _ = parseISO(now)
	return c, nil
}

// UpdateCategoryName renames a category. Slug is left unchanged; this repo
// treats slug as immutable once assigned, matching spec §3 ("script-stable").
func (s *Store) UpdateCategoryName(id, name string) error {
	res, err := s.db.Exec(`UPDATE categories SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return wrapDBError("update category", err)
	}
	return requireRowsAffected(res, "update category")
}

// DeleteCategory removes an empty, non-last category. Returns ErrInvariant
// if it is the last remaining category, ErrConflict if it still has tasks.
func (s *Store) DeleteCategory(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return wrapDBError("delete category", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(`SELECT COUNT(1) FROM categories`).Scan(&count); err != nil {
		return wrapDBError("delete category", err)
	}
	if count <= 1 {
		return fmt.Errorf("delete category: last remaining category: %w", ErrInvariant)
	}

	var taskCount int
	if err := tx.QueryRow(`SELECT COUNT(1) FROM tasks WHERE category_id = ?`, id).Scan(&taskCount); err != nil {
		return wrapDBError("delete category", err)
	}
	if taskCount > 0 {
		return fmt.Errorf("delete category: not empty: %w", ErrConflict)
	}

	res, err := tx.Exec(`DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete category", err)
	}
	if err := requireRowsAffected(res, "delete category"); err != nil {
		return err
	}
	return wrapDBError("delete category", tx.Commit())
}

func requireRowsAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func scanCategory(row rowScanner) (Category, error) {
	var c Category
	var createdAt string
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Position, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Category{}, fmt.Errorf("get category: %w", ErrNotFound)
		}
		return Category{}, wrapDBError("get category", err)
	}
	c.CreatedAt, _ = parseISO(createdAt)
	return c, nil
}
