// Package memstore is an in-process implementation of the store contract.
//
// Write transactions are fully serialized and work on a private copy of the
// catalog that replaces the shared state only on commit, so a failed or
// cancelled transaction leaves nothing behind.
package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/store"
)

var errReadOnly = errors.New("write in read-only transaction")

// Store is an in-memory store.Runner
type Store struct {
	mu         sync.RWMutex
	st         *state
	maxRetries int
}

var _ store.Runner = (*Store)(nil)

// New creates an empty in-memory store
func New(maxRetries int) *Store {
	return &Store{st: newState(), maxRetries: maxRetries}
}

// RunInTx runs fn against a copy of the catalog and commits it when fn succeeds
func (s *Store) RunInTx(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	return store.Retry(ctx, op, s.maxRetries, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		work := s.st.clone()
		if err := fn(&tx{st: work, now: time.Now()}); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.st = work
		return nil
	})
}

// View runs fn against the committed catalog
func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.st, readOnly: true})
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

type state struct {
	lastID       int64
	lastTreeID   int64
	categories   map[int64]models.Category
	productTypes map[int64]models.ProductType
	attributes   map[int64]models.Attribute
	values       map[int64]models.AttributeValue
	tags         map[int64]models.Tag
	products     map[int64]models.Product
	variants     map[int64]models.ProductVariant
	variantAttrs map[int64]models.ProductVariantAttributeValue
	schema       map[int64]map[int64]bool
}

func newState() *state {
	return &state{
		categories:   make(map[int64]models.Category),
		productTypes: make(map[int64]models.ProductType),
		attributes:   make(map[int64]models.Attribute),
		values:       make(map[int64]models.AttributeValue),
		tags:         make(map[int64]models.Tag),
		products:     make(map[int64]models.Product),
		variants:     make(map[int64]models.ProductVariant),
		variantAttrs: make(map[int64]models.ProductVariantAttributeValue),
		schema:       make(map[int64]map[int64]bool),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.lastID, c.lastTreeID = s.lastID, s.lastTreeID
	for id, v := range s.categories {
		v.ParentID = copyID(v.ParentID)
		c.categories[id] = v
	}
	for id, v := range s.productTypes {
		c.productTypes[id] = v
	}
	for id, v := range s.attributes {
		c.attributes[id] = v
	}
	for id, v := range s.values {
		c.values[id] = v
	}
	for id, v := range s.tags {
		c.tags[id] = v
	}
	for id, v := range s.products {
		v.ProductTypeID = copyID(v.ProductTypeID)
		v.CategoryIDs = append([]int64(nil), v.CategoryIDs...)
		v.TagIDs = append([]int64(nil), v.TagIDs...)
		c.products[id] = v
	}
	for id, v := range s.variants {
		c.variants[id] = v
	}
	for id, v := range s.variantAttrs {
		c.variantAttrs[id] = v
	}
	for pt, attrs := range s.schema {
		set := make(map[int64]bool, len(attrs))
		for a := range attrs {
			set[a] = true
		}
		c.schema[pt] = set
	}
	return c
}

func (s *state) nextID() int64 {
	s.lastID++
	return s.lastID
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// tx implements store.Tx over one state snapshot
type tx struct {
	st       *state
	now      time.Time
	readOnly bool
}

var _ store.Tx = (*tx)(nil)

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}
