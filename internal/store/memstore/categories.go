package memstore

import (
	"context"
	"fmt"
	"sort"

	"catalog-service/internal/models"
	"catalog-service/internal/store"
)

func (t *tx) GetCategory(_ context.Context, id int64) (*models.Category, error) {
	c, ok := t.st.categories[id]
	if !ok {
		return nil, models.NotFound(models.KindCategory, id)
	}
	c.ParentID = copyID(c.ParentID)
	return &c, nil
}

func (t *tx) InsertCategory(_ context.Context, c *models.Category) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.slugTaken(models.KindCategory, c.Slug, 0) {
		return fmt.Errorf("category slug %q: %w", c.Slug, store.ErrConflict)
	}
	c.ID = t.st.nextID()
	c.CreatedAt, c.UpdatedAt = t.now, t.now
	row := *c
	row.ParentID = copyID(c.ParentID)
	t.st.categories[c.ID] = row
	return nil
}

func (t *tx) NextTreeID(context.Context) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	t.st.lastTreeID++
	return t.st.lastTreeID, nil
}

// LockTree is a no-op: write transactions are already serialized
func (t *tx) LockTree(context.Context, int64) error {
	return t.writable()
}

func (t *tx) CategoriesWithin(_ context.Context, treeID int64, lft, rgt int) ([]models.Category, error) {
	return t.selectCategories(func(c *models.Category) bool {
		return c.TreeID == treeID && c.Lft > lft && c.Rgt < rgt
	}), nil
}

func (t *tx) CategoriesEnclosing(_ context.Context, treeID int64, lft, rgt int) ([]models.Category, error) {
	return t.selectCategories(func(c *models.Category) bool {
		return c.TreeID == treeID && c.Lft < lft && c.Rgt > rgt
	}), nil
}

func (t *tx) CategoriesInTree(_ context.Context, treeID int64) ([]models.Category, error) {
	return t.selectCategories(func(c *models.Category) bool {
		return c.TreeID == treeID
	}), nil
}

func (t *tx) ShiftCoordinates(_ context.Context, treeID int64, from, delta int) error {
	if err := t.writable(); err != nil {
		return err
	}
	for id, c := range t.st.categories {
		if c.TreeID != treeID || c.Rgt < from {
			continue
		}
		if c.Lft >= from {
			c.Lft += delta
		}
		c.Rgt += delta
		c.UpdatedAt = t.now
		t.st.categories[id] = c
	}
	return nil
}

func (t *tx) RelocateSubtree(_ context.Context, treeID int64, lft, rgt int, toTreeID int64, offset, depthDelta int) error {
	if err := t.writable(); err != nil {
		return err
	}
	for id, c := range t.st.categories {
		if c.TreeID != treeID || c.Lft < lft || c.Rgt > rgt {
			continue
		}
		c.TreeID = toTreeID
		c.Lft += offset
		c.Rgt += offset
		c.Depth += depthDelta
		c.UpdatedAt = t.now
		t.st.categories[id] = c
	}
	return nil
}

func (t *tx) SetCategoryParent(_ context.Context, id int64, parentID *int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	c, ok := t.st.categories[id]
	if !ok {
		return models.NotFound(models.KindCategory, id)
	}
	c.ParentID = copyID(parentID)
	c.UpdatedAt = t.now
	t.st.categories[id] = c
	return nil
}

func (t *tx) selectCategories(match func(c *models.Category) bool) []models.Category {
	var out []models.Category
	for _, c := range t.st.categories {
		if match(&c) {
			c.ParentID = copyID(c.ParentID)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lft < out[j].Lft })
	return out
}
