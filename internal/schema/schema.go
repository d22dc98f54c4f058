// Package schema answers which attributes are legal for a product type.
package schema

import (
	"context"
	"fmt"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

// Reader loads the attribute set of a product type from the store
type Reader interface {
	AttributeIDs(ctx context.Context, productTypeID int64) ([]int64, error)
}

// Mutator is the store side of Link and Unlink
type Mutator interface {
	Reader
	GetProductType(ctx context.Context, id int64) (*models.ProductType, error)
	GetAttribute(ctx context.Context, id int64) (*models.Attribute, error)
	LinkAttribute(ctx context.Context, productTypeID, attributeID int64) error
	UnlinkAttribute(ctx context.Context, productTypeID, attributeID int64) error
}

// Cache holds attribute sets outside the store. ok is false on a miss.
// InvalidateSchema bumps the version of a product type, and SetSchema stores
// nothing once the version differs from the one passed in.
type Cache interface {
	GetSchema(ctx context.Context, productTypeID int64) (ids []int64, ok bool, err error)
	SchemaVersion(ctx context.Context, productTypeID int64) (int64, error)
	SetSchema(ctx context.Context, productTypeID int64, ids []int64, version int64) error
	InvalidateSchema(ctx context.Context, productTypeID int64) error
}

// Schema is the AttributeSchema with an optional read-through cache
type Schema struct {
	cache  Cache
	logger *zap.Logger
}

// New creates a Schema. cache may be nil.
func New(cache Cache) *Schema {
	return &Schema{
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Legal reports whether attributeID is legal for productTypeID, reading only from repo.
// Use it inside write transactions.
func Legal(ctx context.Context, repo Reader, productTypeID, attributeID int64) (bool, error) {
	ids, err := repo.AttributeIDs(ctx, productTypeID)
	if err != nil {
		return false, fmt.Errorf("failed to load attributes of product type %d: %w", productTypeID, err)
	}
	return contains(ids, attributeID), nil
}

// IsLegal is Legal served through the cache when one is configured.
// Cache failures fall back to the store.
func (s *Schema) IsLegal(ctx context.Context, repo Reader, productTypeID, attributeID int64) (bool, error) {
	if s.cache == nil {
		return Legal(ctx, repo, productTypeID, attributeID)
	}

	ids, ok, err := s.cache.GetSchema(ctx, productTypeID)
	if err != nil {
		s.logger.Warn("Schema cache read failed",
			zap.Int64("product_type_id", productTypeID),
			zap.Error(err))
	}
	if ok {
		util.SchemaCacheRequestsTotal.WithLabelValues("hit").Inc()
		return contains(ids, attributeID), nil
	}
	util.SchemaCacheRequestsTotal.WithLabelValues("miss").Inc()

	// read before the load, so an invalidation racing with it wins
	version, verr := s.cache.SchemaVersion(ctx, productTypeID)
	if verr != nil {
		s.logger.Warn("Schema cache version read failed",
			zap.Int64("product_type_id", productTypeID),
			zap.Error(verr))
	}

	ids, err = repo.AttributeIDs(ctx, productTypeID)
	if err != nil {
		return false, fmt.Errorf("failed to load attributes of product type %d: %w", productTypeID, err)
	}
	if verr != nil {
		return contains(ids, attributeID), nil
	}
	if err := s.cache.SetSchema(ctx, productTypeID, ids, version); err != nil {
		s.logger.Warn("Schema cache write failed",
			zap.Int64("product_type_id", productTypeID),
			zap.Error(err))
	}
	return contains(ids, attributeID), nil
}

// Invalidate drops the cached attribute set of productTypeID
func (s *Schema) Invalidate(ctx context.Context, productTypeID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateSchema(ctx, productTypeID)
}

// Link makes attributeID legal for productTypeID. Both must exist.
func Link(ctx context.Context, repo Mutator, productTypeID, attributeID int64) error {
	if err := exists(ctx, repo, productTypeID, attributeID); err != nil {
		return err
	}
	ids, err := repo.AttributeIDs(ctx, productTypeID)
	if err != nil {
		return err
	}
	if contains(ids, attributeID) {
		return nil
	}
	return repo.LinkAttribute(ctx, productTypeID, attributeID)
}

// Unlink removes attributeID from the legal set of productTypeID.
// Values already assigned to variants are left in place.
func Unlink(ctx context.Context, repo Mutator, productTypeID, attributeID int64) error {
	if err := exists(ctx, repo, productTypeID, attributeID); err != nil {
		return err
	}
	return repo.UnlinkAttribute(ctx, productTypeID, attributeID)
}

func exists(ctx context.Context, repo Mutator, productTypeID, attributeID int64) error {
	if _, err := repo.GetProductType(ctx, productTypeID); err != nil {
		return err
	}
	_, err := repo.GetAttribute(ctx, attributeID)
	return err
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
