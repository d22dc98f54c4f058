package tree

import (
	"errors"
	"fmt"
	"sort"

	"catalog-service/internal/models"
)

// ErrCorrupt wraps every invariant violation Verify reports
var ErrCorrupt = errors.New("nested set corrupt")

// Verify checks that nodes, all the members of one tree, form a valid nested set:
// lft < rgt, coordinates are exactly 1..2n, every child lies strictly inside its
// parent one level deeper, and siblings do not overlap.
func Verify(nodes []models.Category) error {
	if err := verify(nodes); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

func verify(nodes []models.Category) error {
	if len(nodes) == 0 {
		return nil
	}

	sorted := make([]models.Category, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lft < sorted[j].Lft })

	treeID := sorted[0].TreeID
	seen := make(map[int]int64, 2*len(sorted))
	for _, n := range sorted {
		if n.TreeID != treeID {
			return fmt.Errorf("category %d: tree %d, expected %d", n.ID, n.TreeID, treeID)
		}
		if n.Lft >= n.Rgt {
			return fmt.Errorf("category %d: lft %d >= rgt %d", n.ID, n.Lft, n.Rgt)
		}
		for _, v := range []int{n.Lft, n.Rgt} {
			if other, dup := seen[v]; dup {
				return fmt.Errorf("categories %d and %d share coordinate %d", other, n.ID, v)
			}
			seen[v] = n.ID
		}
	}
	for v := 1; v <= 2*len(sorted); v++ {
		if _, ok := seen[v]; !ok {
			return fmt.Errorf("tree %d: coordinate %d unused", treeID, v)
		}
	}

	var path []models.Category
	for _, n := range sorted {
		for len(path) > 0 && path[len(path)-1].Rgt < n.Lft {
			path = path[:len(path)-1]
		}

		if len(path) == 0 {
			if n.ParentID != nil || n.Depth != 0 || n.Lft != 1 {
				return fmt.Errorf("category %d: expected tree root", n.ID)
			}
		} else {
			parent := path[len(path)-1]
			if n.Rgt > parent.Rgt {
				return fmt.Errorf("category %d overlaps category %d", n.ID, parent.ID)
			}
			if n.ParentID == nil || *n.ParentID != parent.ID {
				return fmt.Errorf("category %d: coordinates place it under %d", n.ID, parent.ID)
			}
			if n.Depth != parent.Depth+1 {
				return fmt.Errorf("category %d: depth %d under parent depth %d", n.ID, n.Depth, parent.Depth)
			}
		}
		path = append(path, n)
	}

	return nil
}
