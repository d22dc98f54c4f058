// Package tree maintains the nested-set coordinates of the category forest.
//
// Every mutating method must run inside a store transaction; the tree lock it
// takes through Repository.LockTree is held until that transaction ends.
package tree

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"catalog-service/internal/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Repository is the coordinate storage the tree algorithms operate on
type Repository interface {
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	InsertCategory(ctx context.Context, c *models.Category) error
	NextTreeID(ctx context.Context) (int64, error)
	LockTree(ctx context.Context, treeID int64) error
	// CategoriesWithin returns nodes strictly inside (lft, rgt) ordered by lft
	CategoriesWithin(ctx context.Context, treeID int64, lft, rgt int) ([]models.Category, error)
	// CategoriesEnclosing returns nodes whose range strictly encloses (lft, rgt) ordered by lft
	CategoriesEnclosing(ctx context.Context, treeID int64, lft, rgt int) ([]models.Category, error)
	CategoriesInTree(ctx context.Context, treeID int64) ([]models.Category, error)
	// ShiftCoordinates adds delta to every lft and every rgt that is >= from
	ShiftCoordinates(ctx context.Context, treeID int64, from, delta int) error
	// RelocateSubtree moves the nodes in [lft, rgt] of treeID to toTreeID, adding offset
	// to their coordinates and depthDelta to their depth
	RelocateSubtree(ctx context.Context, treeID int64, lft, rgt int, toTreeID int64, offset, depthDelta int) error
	SetCategoryParent(ctx context.Context, id int64, parentID *int64) error
}

const maxLockPasses = 3

var errTreeChanged = errors.New("category changed tree while locking")

// Store implements insert, move and the subtree queries
type Store struct {
	repo Repository
}

// New creates a tree store over repo
func New(repo Repository) *Store {
	return &Store{repo: repo}
}

// Insert places c as a new leaf. With a nil parent it becomes the root of a new tree;
// otherwise it goes among the parent's children in collation order of name.
// Coordinates and parent of c are assigned before the row is written.
func (s *Store) Insert(ctx context.Context, c *models.Category, parentID *int64) error {
	if parentID == nil {
		treeID, err := s.repo.NextTreeID(ctx)
		if err != nil {
			return fmt.Errorf("failed to allocate tree id: %w", err)
		}
		c.ParentID = nil
		c.TreeID, c.Lft, c.Rgt, c.Depth = treeID, 1, 2, 0
		return s.repo.InsertCategory(ctx, c)
	}

	parent, err := s.lockedNode(ctx, *parentID)
	if err != nil {
		return err
	}

	point, err := s.insertionPoint(ctx, parent, c.Name)
	if err != nil {
		return err
	}

	if err := s.repo.ShiftCoordinates(ctx, parent.TreeID, point, 2); err != nil {
		return fmt.Errorf("failed to open gap in tree %d: %w", parent.TreeID, err)
	}

	pid := parent.ID
	c.ParentID = &pid
	c.TreeID, c.Lft, c.Rgt, c.Depth = parent.TreeID, point, point+1, parent.Depth+1
	return s.repo.InsertCategory(ctx, c)
}

// Move re-parents the subtree rooted at nodeID. A nil newParentID makes the
// subtree an independent tree. Returns the node with its new coordinates.
func (s *Store) Move(ctx context.Context, nodeID int64, newParentID *int64) (*models.Category, error) {
	if newParentID != nil && *newParentID == nodeID {
		return nil, &models.CycleError{CategoryID: nodeID, NewParentID: nodeID}
	}

	ids := []int64{nodeID}
	if newParentID != nil {
		ids = append(ids, *newParentID)
	}
	locked, err := s.lockStable(ctx, ids...)
	if err != nil {
		return nil, err
	}

	node := locked[0]
	var target *models.Category
	if newParentID != nil {
		target = locked[1]
		if node.Encloses(target) {
			return nil, &models.CycleError{CategoryID: nodeID, NewParentID: target.ID}
		}
	}

	if SameParent(node.ParentID, newParentID) {
		return node, nil
	}

	width := node.Width()

	// detach into a scratch tree so the old and new gaps never overlap
	scratch, err := s.repo.NextTreeID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate tree id: %w", err)
	}
	if err := s.repo.RelocateSubtree(ctx, node.TreeID, node.Lft, node.Rgt, scratch, 1-node.Lft, -node.Depth); err != nil {
		return nil, fmt.Errorf("failed to detach subtree %d: %w", node.ID, err)
	}
	if err := s.repo.ShiftCoordinates(ctx, node.TreeID, node.Rgt+1, -width); err != nil {
		return nil, fmt.Errorf("failed to close gap in tree %d: %w", node.TreeID, err)
	}

	if target == nil {
		if err := s.repo.SetCategoryParent(ctx, node.ID, nil); err != nil {
			return nil, err
		}
		return s.repo.GetCategory(ctx, node.ID)
	}

	if target, err = s.repo.GetCategory(ctx, target.ID); err != nil {
		return nil, err
	}
	point, err := s.insertionPoint(ctx, target, node.Name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ShiftCoordinates(ctx, target.TreeID, point, width); err != nil {
		return nil, fmt.Errorf("failed to open gap in tree %d: %w", target.TreeID, err)
	}
	if err := s.repo.RelocateSubtree(ctx, scratch, 1, width, target.TreeID, point-1, target.Depth+1); err != nil {
		return nil, fmt.Errorf("failed to attach subtree %d: %w", node.ID, err)
	}

	pid := target.ID
	if err := s.repo.SetCategoryParent(ctx, node.ID, &pid); err != nil {
		return nil, err
	}
	return s.repo.GetCategory(ctx, node.ID)
}

// Children returns the direct children of nodeID ordered by lft
func (s *Store) Children(ctx context.Context, nodeID int64) ([]models.Category, error) {
	node, err := s.repo.GetCategory(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return s.children(ctx, node)
}

// Descendants returns every node below nodeID ordered by lft
func (s *Store) Descendants(ctx context.Context, nodeID int64) ([]models.Category, error) {
	node, err := s.repo.GetCategory(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return s.repo.CategoriesWithin(ctx, node.TreeID, node.Lft, node.Rgt)
}

// Ancestors returns the path from the root down to nodeID's parent
func (s *Store) Ancestors(ctx context.Context, nodeID int64) ([]models.Category, error) {
	node, err := s.repo.GetCategory(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return s.repo.CategoriesEnclosing(ctx, node.TreeID, node.Lft, node.Rgt)
}

// Lock takes the tree lock of the tree holding nodeID and returns the node as seen under it
func (s *Store) Lock(ctx context.Context, nodeID int64) (*models.Category, error) {
	return s.lockedNode(ctx, nodeID)
}

// Verify checks the nested-set invariants of one tree
func (s *Store) Verify(ctx context.Context, treeID int64) error {
	nodes, err := s.repo.CategoriesInTree(ctx, treeID)
	if err != nil {
		return err
	}
	return Verify(nodes)
}

func (s *Store) children(ctx context.Context, node *models.Category) ([]models.Category, error) {
	within, err := s.repo.CategoriesWithin(ctx, node.TreeID, node.Lft, node.Rgt)
	if err != nil {
		return nil, err
	}
	children := make([]models.Category, 0, len(within))
	for _, c := range within {
		if c.Depth == node.Depth+1 {
			children = append(children, c)
		}
	}
	return children, nil
}

// insertionPoint is the lft a new child named name takes under parent:
// the lft of the first child collating after name, or parent.Rgt.
func (s *Store) insertionPoint(ctx context.Context, parent *models.Category, name string) (int, error) {
	children, err := s.children(ctx, parent)
	if err != nil {
		return 0, err
	}
	col := collate.New(language.Und, collate.IgnoreCase)
	for _, c := range children {
		if col.CompareString(name, c.Name) < 0 {
			return c.Lft, nil
		}
	}
	return parent.Rgt, nil
}

func (s *Store) lockedNode(ctx context.Context, id int64) (*models.Category, error) {
	nodes, err := s.lockStable(ctx, id)
	if err != nil {
		return nil, err
	}
	return nodes[0], nil
}

// lockStable locks the trees holding ids and returns the nodes as read under those locks.
// A node can change tree between the read and the lock, so the read is repeated until every
// node sits in a locked tree. Within one pass trees are locked in ascending id order.
func (s *Store) lockStable(ctx context.Context, ids ...int64) ([]*models.Category, error) {
	locked := make(map[int64]bool)
	for attempt := 0; attempt < maxLockPasses; attempt++ {
		nodes := make([]*models.Category, len(ids))
		var pending []int64
		for i, id := range ids {
			node, err := s.repo.GetCategory(ctx, id)
			if err != nil {
				return nil, err
			}
			nodes[i] = node
			if !locked[node.TreeID] {
				pending = append(pending, node.TreeID)
				locked[node.TreeID] = true
			}
		}
		if len(pending) == 0 {
			return nodes, nil
		}

		sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
		for _, treeID := range pending {
			if err := s.repo.LockTree(ctx, treeID); err != nil {
				return nil, fmt.Errorf("failed to lock tree %d: %w", treeID, err)
			}
		}
	}
	return nil, &models.ConflictError{Op: "lock category trees", Attempts: maxLockPasses, Err: errTreeChanged}
}

// SameParent reports whether two parent references name the same parent, nil meaning root
func SameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
