package store

import (
	"context"
	"errors"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrConflict marks a transient write conflict that is worth retrying
var ErrConflict = errors.New("write conflict")

// Tx is the persistence collaborator as seen from inside one transaction
type Tx interface {
	// categories
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	InsertCategory(ctx context.Context, c *models.Category) error
	NextTreeID(ctx context.Context) (int64, error)
	LockTree(ctx context.Context, treeID int64) error
	CategoriesWithin(ctx context.Context, treeID int64, lft, rgt int) ([]models.Category, error)
	CategoriesEnclosing(ctx context.Context, treeID int64, lft, rgt int) ([]models.Category, error)
	CategoriesInTree(ctx context.Context, treeID int64) ([]models.Category, error)
	ShiftCoordinates(ctx context.Context, treeID int64, from, delta int) error
	RelocateSubtree(ctx context.Context, treeID int64, lft, rgt int, toTreeID int64, offset, depthDelta int) error
	SetCategoryParent(ctx context.Context, id int64, parentID *int64) error

	// any kind
	ExistsWithSlug(ctx context.Context, kind models.EntityKind, slug string, excludeID int64) (bool, error)
	CountActiveDependents(ctx context.Context, kind models.EntityKind, id int64, rel models.Relation) (int, error)
	NameTaken(ctx context.Context, kind models.EntityKind, name string, excludeID int64) (bool, error)
	GetNamed(ctx context.Context, kind models.EntityKind, id int64) (*models.Named, error)
	LockNamed(ctx context.Context, kind models.EntityKind, id int64) (*models.Named, error)
	// TouchNamed writes the entity row so that a concurrent deactivation of it
	// conflicts instead of counting dependents from a stale snapshot
	TouchNamed(ctx context.Context, kind models.EntityKind, id int64) (*models.Named, error)
	UpdateName(ctx context.Context, kind models.EntityKind, id int64, name, slug string) error
	SetActive(ctx context.Context, kind models.EntityKind, id int64, active bool) error

	// catalog entities
	InsertProductType(ctx context.Context, pt *models.ProductType) error
	GetProductType(ctx context.Context, id int64) (*models.ProductType, error)
	InsertAttribute(ctx context.Context, a *models.Attribute) error
	GetAttribute(ctx context.Context, id int64) (*models.Attribute, error)
	InsertAttributeValue(ctx context.Context, v *models.AttributeValue) error
	GetAttributeValue(ctx context.Context, id int64) (*models.AttributeValue, error)
	AttributeValueExists(ctx context.Context, attributeID int64, value string) (bool, error)
	InsertTag(ctx context.Context, t *models.Tag) error
	InsertProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	InsertVariant(ctx context.Context, v *models.ProductVariant) error
	GetVariant(ctx context.Context, id int64) (*models.ProductVariant, error)
	LockVariant(ctx context.Context, id int64) (*models.ProductVariant, error)
	SKUExists(ctx context.Context, sku string) (bool, error)

	// attribute schema
	AttributeIDs(ctx context.Context, productTypeID int64) ([]int64, error)
	LinkAttribute(ctx context.Context, productTypeID, attributeID int64) error
	UnlinkAttribute(ctx context.Context, productTypeID, attributeID int64) error

	// variant attribute values
	GetVariantAttributeValue(ctx context.Context, variantID, attributeID int64) (*models.ProductVariantAttributeValue, error)
	SaveVariantAttributeValue(ctx context.Context, v *models.ProductVariantAttributeValue) error
	VariantAttributeValues(ctx context.Context, variantID int64) ([]models.ProductVariantAttributeValue, error)
}

// Runner opens transactions against a backing store
type Runner interface {
	// RunInTx runs fn in a write transaction, retrying the whole of fn on conflicts.
	// fn must not have side effects outside tx.
	RunInTx(ctx context.Context, op string, fn func(tx Tx) error) error
	// View runs fn in a read-only transaction
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// IsConflict reports whether err is a transient conflict: a serialization failure,
// a deadlock, or a unique violation raced in by a concurrent writer.
func IsConflict(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return true
		}
	}
	return false
}

// Retry calls fn until it succeeds, fails with a non-conflict error, or attempts run out
func Retry(ctx context.Context, op string, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !IsConflict(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		util.TxRetriesTotal.WithLabelValues(op).Inc()
		util.GetLogger().Debug("Retrying transaction after conflict",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return &models.ConflictError{Op: op, Attempts: attempts, Err: err}
}
