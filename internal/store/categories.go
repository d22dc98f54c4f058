package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"catalog-service/internal/models"
)

const categoryColumns = `id, name, slug, is_active, parent_id, tree_id, lft, rgt, depth, created_at, updated_at`

// GetCategory retrieves a category with its coordinates
func (t *pgTx) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	err := t.tx.GetContext(ctx, &c, "SELECT "+categoryColumns+" FROM categories WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(models.KindCategory, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertCategory writes a category with precomputed coordinates
func (t *pgTx) InsertCategory(ctx context.Context, c *models.Category) error {
	query := `
		INSERT INTO categories (name, slug, is_active, parent_id, tree_id, lft, rgt, depth)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return t.tx.QueryRowxContext(ctx, query,
		c.Name, c.Slug, c.IsActive, c.ParentID, c.TreeID, c.Lft, c.Rgt, c.Depth).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// NextTreeID allocates a fresh tree id from a sequence
func (t *pgTx) NextTreeID(ctx context.Context) (int64, error) {
	var id int64
	err := t.tx.GetContext(ctx, &id, "SELECT nextval('category_tree_id_seq')")
	return id, err
}

// LockTree serializes writers of one tree until the transaction ends
func (t *pgTx) LockTree(ctx context.Context, treeID int64) error {
	_, err := t.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", treeID)
	return err
}

// CategoriesWithin retrieves the nodes strictly inside (lft, rgt)
func (t *pgTx) CategoriesWithin(ctx context.Context, treeID int64, lft, rgt int) ([]models.Category, error) {
	var cats []models.Category
	err := t.tx.SelectContext(ctx, &cats,
		"SELECT "+categoryColumns+" FROM categories WHERE tree_id = $1 AND lft > $2 AND rgt < $3 ORDER BY lft",
		treeID, lft, rgt)
	return cats, err
}

// CategoriesEnclosing retrieves the nodes whose range encloses (lft, rgt), root first
func (t *pgTx) CategoriesEnclosing(ctx context.Context, treeID int64, lft, rgt int) ([]models.Category, error) {
	var cats []models.Category
	err := t.tx.SelectContext(ctx, &cats,
		"SELECT "+categoryColumns+" FROM categories WHERE tree_id = $1 AND lft < $2 AND rgt > $3 ORDER BY lft",
		treeID, lft, rgt)
	return cats, err
}

// CategoriesInTree retrieves every node of a tree
func (t *pgTx) CategoriesInTree(ctx context.Context, treeID int64) ([]models.Category, error) {
	var cats []models.Category
	err := t.tx.SelectContext(ctx, &cats,
		"SELECT "+categoryColumns+" FROM categories WHERE tree_id = $1 ORDER BY lft", treeID)
	return cats, err
}

// ShiftCoordinates moves every boundary at or after from by delta
func (t *pgTx) ShiftCoordinates(ctx context.Context, treeID int64, from, delta int) error {
	query := `
		UPDATE categories SET
			lft = CASE WHEN lft >= $2 THEN lft + $3 ELSE lft END,
			rgt = CASE WHEN rgt >= $2 THEN rgt + $3 ELSE rgt END,
			updated_at = NOW()
		WHERE tree_id = $1 AND (lft >= $2 OR rgt >= $2)`

	_, err := t.tx.ExecContext(ctx, query, treeID, from, delta)
	return err
}

// RelocateSubtree moves [lft, rgt] of treeID into toTreeID by a constant offset
func (t *pgTx) RelocateSubtree(ctx context.Context, treeID int64, lft, rgt int, toTreeID int64, offset, depthDelta int) error {
	query := `
		UPDATE categories SET
			tree_id = $4,
			lft = lft + $5,
			rgt = rgt + $5,
			depth = depth + $6,
			updated_at = NOW()
		WHERE tree_id = $1 AND lft >= $2 AND rgt <= $3`

	_, err := t.tx.ExecContext(ctx, query, treeID, lft, rgt, toTreeID, offset, depthDelta)
	return err
}

// SetCategoryParent updates the parent reference
func (t *pgTx) SetCategoryParent(ctx context.Context, id int64, parentID *int64) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE categories SET parent_id = $1, updated_at = NOW() WHERE id = $2", parentID, id)
	if err != nil {
		return err
	}
	return expectRow(res, models.KindCategory, id)
}

func expectRow(res sql.Result, kind models.EntityKind, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return models.NotFound(kind, id)
	}
	return nil
}
