package schema

import (
	"context"
	"errors"
	"testing"

	"catalog-service/internal/models"
	"catalog-service/internal/store"
	"catalog-service/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	sets     map[int64][]int64
	versions map[int64]int64
	gets     int
	failGet  bool
}

func newMapCache() *mapCache {
	return &mapCache{sets: make(map[int64][]int64), versions: make(map[int64]int64)}
}

func (c *mapCache) GetSchema(_ context.Context, id int64) ([]int64, bool, error) {
	c.gets++
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	ids, ok := c.sets[id]
	return ids, ok, nil
}

func (c *mapCache) SchemaVersion(_ context.Context, id int64) (int64, error) {
	return c.versions[id], nil
}

func (c *mapCache) SetSchema(_ context.Context, id int64, ids []int64, version int64) error {
	if c.versions[id] == version {
		c.sets[id] = ids
	}
	return nil
}

func (c *mapCache) InvalidateSchema(_ context.Context, id int64) error {
	c.versions[id]++
	delete(c.sets, id)
	return nil
}

// readerFunc lets a test run code between the store load and the cache write
type readerFunc func(ctx context.Context, productTypeID int64) ([]int64, error)

func (f readerFunc) AttributeIDs(ctx context.Context, productTypeID int64) ([]int64, error) {
	return f(ctx, productTypeID)
}

func seed(t *testing.T, db *memstore.Store) (shoes, size, color int64) {
	t.Helper()
	err := db.RunInTx(context.Background(), "seed", func(tx store.Tx) error {
		pt := &models.ProductType{Name: "Shoes", Slug: "shoes", IsActive: true}
		if err := tx.InsertProductType(context.Background(), pt); err != nil {
			return err
		}
		s := &models.Attribute{Name: "Size", Slug: "size", IsActive: true}
		if err := tx.InsertAttribute(context.Background(), s); err != nil {
			return err
		}
		c := &models.Attribute{Name: "Color", Slug: "color", IsActive: true}
		if err := tx.InsertAttribute(context.Background(), c); err != nil {
			return err
		}
		shoes, size, color = pt.ID, s.ID, c.ID
		return Link(context.Background(), tx, pt.ID, s.ID)
	})
	require.NoError(t, err)
	return shoes, size, color
}

func TestLegal(t *testing.T) {
	db := memstore.New(1)
	shoes, size, color := seed(t, db)

	err := db.View(context.Background(), func(tx store.Tx) error {
		ok, err := Legal(context.Background(), tx, shoes, size)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = Legal(context.Background(), tx, shoes, color)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestIsLegalReadsThroughCache(t *testing.T) {
	db := memstore.New(1)
	shoes, size, _ := seed(t, db)
	cache := newMapCache()
	s := New(cache)

	err := db.View(context.Background(), func(tx store.Tx) error {
		ok, err := s.IsLegal(context.Background(), tx, shoes, size)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{size}, cache.sets[shoes])

	// a stale cache entry wins until invalidated
	cache.sets[shoes] = nil
	err = db.View(context.Background(), func(tx store.Tx) error {
		ok, err := s.IsLegal(context.Background(), tx, shoes, size)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Invalidate(context.Background(), shoes))
		ok, err = s.IsLegal(context.Background(), tx, shoes, size)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestInvalidationDuringLoadIsNotOverwritten(t *testing.T) {
	cache := newMapCache()
	s := New(cache)
	ctx := context.Background()

	// the load returns the set as it was before a schema change that commits
	// and invalidates while the reader is still holding it
	stale := readerFunc(func(ctx context.Context, productTypeID int64) ([]int64, error) {
		require.NoError(t, s.Invalidate(ctx, productTypeID))
		return []int64{7}, nil
	})
	ok, err := s.IsLegal(ctx, stale, 3, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotContains(t, cache.sets, int64(3))

	fresh := readerFunc(func(context.Context, int64) ([]int64, error) {
		return []int64{8}, nil
	})
	ok, err = s.IsLegal(ctx, fresh, 3, 7)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []int64{8}, cache.sets[3])
}

func TestIsLegalFallsBackWhenCacheFails(t *testing.T) {
	db := memstore.New(1)
	shoes, size, _ := seed(t, db)
	cache := newMapCache()
	cache.failGet = true
	s := New(cache)

	err := db.View(context.Background(), func(tx store.Tx) error {
		ok, err := s.IsLegal(context.Background(), tx, shoes, size)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestLinkAndUnlink(t *testing.T) {
	db := memstore.New(1)
	shoes, size, color := seed(t, db)

	err := db.RunInTx(context.Background(), "link", func(tx store.Tx) error {
		require.NoError(t, Link(context.Background(), tx, shoes, color))
		// linking twice is a no-op
		require.NoError(t, Link(context.Background(), tx, shoes, color))
		return Unlink(context.Background(), tx, shoes, size)
	})
	require.NoError(t, err)

	err = db.View(context.Background(), func(tx store.Tx) error {
		ids, err := tx.AttributeIDs(context.Background(), shoes)
		require.NoError(t, err)
		assert.Equal(t, []int64{color}, ids)
		return nil
	})
	require.NoError(t, err)
}

func TestLinkRequiresBothSides(t *testing.T) {
	db := memstore.New(1)
	shoes, size, _ := seed(t, db)

	err := db.RunInTx(context.Background(), "link", func(tx store.Tx) error {
		return Link(context.Background(), tx, shoes, 9999)
	})
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = db.RunInTx(context.Background(), "link", func(tx store.Tx) error {
		return Link(context.Background(), tx, 9999, size)
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
