package service

import (
	"context"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/store"
	"catalog-service/internal/tree"
	"catalog-service/internal/util"
	"catalog-service/internal/validation"

	"go.uber.org/zap"
)

// CreateCategory inserts an active category under parentID, or as a new root when parentID is nil
func (s *CatalogService) CreateCategory(ctx context.Context, name string, parentID *int64) (*models.Category, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateCategory")
	start := time.Now()

	var created models.Category
	err := s.store.RunInTx(ctx, "create_category", func(tx store.Tx) error {
		subject := &validation.Subject{Kind: models.KindCategory, Name: name, IsActive: true}
		if err := s.namePipeline(tx, subject).Validate(ctx, subject); err != nil {
			return err
		}

		c := &models.Category{Name: subject.Name, Slug: subject.Slug, IsActive: true}
		if err := tree.New(tx).Insert(ctx, c, parentID); err != nil {
			return err
		}
		created = *c
		return nil
	})
	util.TreeMutationLatency.WithLabelValues("insert").Observe(time.Since(start).Seconds())
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("create_category", err, zap.String("name", name))
		return nil, err
	}

	util.TreeMutationsTotal.WithLabelValues("insert").Inc()
	util.EntitiesCreatedTotal.WithLabelValues(string(models.KindCategory)).Inc()
	s.logger.Info("Category created",
		zap.Int64("category_id", created.ID),
		zap.String("slug", created.Slug),
		zap.Int64("tree_id", created.TreeID))

	s.publish(ctx, &models.CategoryCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeCategoryCreated),
		CategoryID: created.ID,
		ParentID:   created.ParentID,
		TreeID:     created.TreeID,
		Slug:       created.Slug,
	})
	return &created, nil
}

// MoveCategory re-parents the subtree rooted at categoryID. A nil newParentID
// detaches it into its own tree. Moving to the current parent changes nothing.
func (s *CatalogService) MoveCategory(ctx context.Context, categoryID int64, newParentID *int64) (*models.Category, error) {
	ctx, span := util.StartEntitySpan(ctx, "CatalogService.MoveCategory", string(models.KindCategory), categoryID)
	start := time.Now()

	var before, after models.Category
	err := s.store.RunInTx(ctx, "move_category", func(tx store.Tx) error {
		old, err := tx.GetCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		moved, err := tree.New(tx).Move(ctx, categoryID, newParentID)
		if err != nil {
			return err
		}
		before, after = *old, *moved
		return nil
	})
	util.TreeMutationLatency.WithLabelValues("move").Observe(time.Since(start).Seconds())
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("move_category", err, zap.Int64("category_id", categoryID))
		return nil, err
	}

	if before.TreeID == after.TreeID && before.Lft == after.Lft && tree.SameParent(before.ParentID, after.ParentID) {
		return &after, nil
	}

	util.TreeMutationsTotal.WithLabelValues("move").Inc()
	s.logger.Info("Category moved",
		zap.Int64("category_id", after.ID),
		zap.Int64("old_tree_id", before.TreeID),
		zap.Int64("new_tree_id", after.TreeID))

	s.publish(ctx, &models.CategoryMovedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeCategoryMoved),
		CategoryID:  after.ID,
		OldParentID: before.ParentID,
		NewParentID: after.ParentID,
		OldTreeID:   before.TreeID,
		NewTreeID:   after.TreeID,
	})
	return &after, nil
}

// DeactivateCategory deactivates a category that has no active children.
// The tree is locked so no child can be inserted or moved in meanwhile.
func (s *CatalogService) DeactivateCategory(ctx context.Context, categoryID int64) error {
	ctx, span := util.StartEntitySpan(ctx, "CatalogService.DeactivateCategory", string(models.KindCategory), categoryID)

	changed := false
	err := s.store.RunInTx(ctx, "deactivate_category", func(tx store.Tx) error {
		changed = false
		c, err := tree.New(tx).Lock(ctx, categoryID)
		if err != nil {
			return err
		}
		if !c.IsActive {
			return nil
		}
		if err := s.guard.CanDeactivate(ctx, models.KindCategory, categoryID, tx.CountActiveDependents); err != nil {
			return err
		}
		changed = true
		return tx.SetActive(ctx, models.KindCategory, categoryID, false)
	})
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("deactivate_category", err, zap.Int64("category_id", categoryID))
		return err
	}
	if changed {
		s.logger.Info("Category deactivated", zap.Int64("category_id", categoryID))
		s.publishEntity(ctx, models.EventTypeEntityDeactivated, models.KindCategory, categoryID, "")
	}
	return nil
}

// GetCategory returns one category
func (s *CatalogService) GetCategory(ctx context.Context, categoryID int64) (*models.Category, error) {
	var c *models.Category
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.GetCategory(ctx, categoryID)
		return err
	})
	return c, err
}

// Children returns the direct children of categoryID in sibling order
func (s *CatalogService) Children(ctx context.Context, categoryID int64) ([]models.Category, error) {
	return s.readTree(ctx, "CatalogService.Children", categoryID, (*tree.Store).Children)
}

// Descendants returns the whole subtree below categoryID in pre-order
func (s *CatalogService) Descendants(ctx context.Context, categoryID int64) ([]models.Category, error) {
	return s.readTree(ctx, "CatalogService.Descendants", categoryID, (*tree.Store).Descendants)
}

// Ancestors returns the path from the root down to categoryID's parent
func (s *CatalogService) Ancestors(ctx context.Context, categoryID int64) ([]models.Category, error) {
	return s.readTree(ctx, "CatalogService.Ancestors", categoryID, (*tree.Store).Ancestors)
}

// VerifyTree checks the nested-set invariants of one tree
func (s *CatalogService) VerifyTree(ctx context.Context, treeID int64) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.VerifyTree")
	err := s.store.View(ctx, func(tx store.Tx) error {
		return tree.New(tx).Verify(ctx, treeID)
	})
	util.EndSpan(span, err)
	return err
}

func (s *CatalogService) readTree(ctx context.Context, spanName string, categoryID int64,
	query func(*tree.Store, context.Context, int64) ([]models.Category, error)) ([]models.Category, error) {
	ctx, span := util.StartEntitySpan(ctx, spanName, string(models.KindCategory), categoryID)

	var nodes []models.Category
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		nodes, err = query(tree.New(tx), ctx, categoryID)
		return err
	})
	util.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = []models.Category{}
	}
	return nodes, nil
}
