package validation

import (
	"context"
	"fmt"

	"catalog-service/internal/models"
)

// LegalFunc reports whether attributeID is legal for productTypeID
type LegalFunc func(ctx context.Context, productTypeID, attributeID int64) (bool, error)

// Assignment is a fully resolved request to give a variant one attribute value
type Assignment struct {
	Variant   *models.ProductVariant
	Product   *models.Product
	Attribute *models.Attribute
	Value     *models.AttributeValue
	// Existing is the value the variant already holds for Attribute, or nil
	Existing *models.ProductVariantAttributeValue
}

// Unchanged reports whether the variant already holds exactly this value
func (a *Assignment) Unchanged() bool {
	return a.Existing != nil && a.Existing.AttributeValueID == a.Value.ID
}

// VariantValidator checks variant attribute assignments against the attribute schema
type VariantValidator struct {
	legal LegalFunc
}

// NewVariantValidator creates a validator that consults legal for the schema
func NewVariantValidator(legal LegalFunc) *VariantValidator {
	return &VariantValidator{legal: legal}
}

// Validate checks, in order: the product has a type, the attribute is legal for it,
// the value belongs to the attribute and the variant holds no other value for it.
// It never writes.
func (v *VariantValidator) Validate(ctx context.Context, a Assignment) error {
	if a.Product.ProductTypeID == nil {
		return &models.MissingProductTypeError{ProductID: a.Product.ID}
	}
	productTypeID := *a.Product.ProductTypeID

	ok, err := v.legal(ctx, productTypeID, a.Attribute.ID)
	if err != nil {
		return fmt.Errorf("failed to check attribute schema: %w", err)
	}
	if !ok {
		return &models.IllegalAttributeError{AttributeID: a.Attribute.ID, ProductTypeID: productTypeID}
	}

	if a.Value.AttributeID != a.Attribute.ID {
		return &models.MismatchedValueError{AttributeID: a.Attribute.ID, AttributeValueID: a.Value.ID}
	}

	if a.Existing != nil && !a.Unchanged() {
		return &models.DuplicateAttributeError{
			VariantID:       a.Variant.ID,
			AttributeID:     a.Attribute.ID,
			ExistingValueID: a.Existing.AttributeValueID,
		}
	}
	return nil
}
