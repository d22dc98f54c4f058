package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"catalog-service/internal/models"
	"catalog-service/internal/schema"
	"catalog-service/internal/store"
	"catalog-service/internal/util"
	"catalog-service/internal/validation"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateVariantRequest represents a request to create a product variant
type CreateVariantRequest struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku" binding:"required"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
}

// AssignResult describes the outcome of AssignVariantAttribute
type AssignResult struct {
	Value models.ProductVariantAttributeValue `json:"value"`
	// Replaced is set when another value of the attribute was overwritten
	Replaced bool `json:"replaced"`
	// Unchanged is set when the variant already held this value
	Unchanged bool `json:"unchanged"`
}

// CreateVariant creates an active variant of a product
func (s *CatalogService) CreateVariant(ctx context.Context, req *CreateVariantRequest) (*models.ProductVariant, error) {
	ctx, span := util.StartEntitySpan(ctx, "CatalogService.CreateVariant", string(models.KindProduct), req.ProductID)

	var created models.ProductVariant
	err := s.store.RunInTx(ctx, "create_variant", func(tx store.Tx) error {
		sku := strings.TrimSpace(req.SKU)
		if sku == "" {
			return &models.InvalidFieldError{Field: "sku", Reason: "is required"}
		}
		if maxLen := models.KindProductVariant.MaxNameLength(); utf8.RuneCountInString(sku) > maxLen {
			return &models.InvalidFieldError{Field: "sku", Reason: fmt.Sprintf("must be at most %d characters long", maxLen)}
		}
		subject := &validation.Subject{
			Kind:     models.KindProductVariant,
			Name:     sku,
			IsActive: true,
			Price:    &req.Price,
			Stock:    &req.Stock,
		}
		if err := (validation.Pipeline{validation.PositivePrice(), validation.NonNegativeStock()}).Validate(ctx, subject); err != nil {
			return err
		}

		// a concurrent deactivation of the product has to see this variant
		if _, err := tx.TouchNamed(ctx, models.KindProduct, req.ProductID); err != nil {
			return err
		}
		taken, err := tx.SKUExists(ctx, sku)
		if err != nil {
			return fmt.Errorf("failed to check sku: %w", err)
		}
		if taken {
			return &models.InvalidFieldError{Field: "sku", Reason: fmt.Sprintf("%q is already in use", sku)}
		}

		v := &models.ProductVariant{
			ProductID: req.ProductID,
			SKU:       sku,
			Price:     req.Price,
			Stock:     req.Stock,
			IsActive:  true,
		}
		if err := tx.InsertVariant(ctx, v); err != nil {
			return err
		}
		created = *v
		return nil
	})
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("create_variant", err, zap.Int64("product_id", req.ProductID), zap.String("sku", req.SKU))
		return nil, err
	}
	s.created(ctx, models.KindProductVariant, created.ID, "")
	return &created, nil
}

// AssignVariantAttribute gives a variant a value for an attribute. When the variant
// already holds another value for that attribute, ConflictReject fails with
// *models.DuplicateAttributeError and ConflictReplace overwrites it. Validation and
// write happen in one transaction with the variant locked.
func (s *CatalogService) AssignVariantAttribute(ctx context.Context, variantID, attributeID, attributeValueID int64, onConflict models.ConflictPolicy) (*AssignResult, error) {
	ctx, span := util.StartEntitySpan(ctx, "CatalogService.AssignVariantAttribute", string(models.KindProductVariant), variantID)

	if onConflict == "" {
		onConflict = models.ConflictReject
	}
	if onConflict != models.ConflictReject && onConflict != models.ConflictReplace {
		err := &models.InvalidFieldError{Field: "on_conflict", Reason: fmt.Sprintf("unknown policy %q", onConflict)}
		util.EndSpan(span, err)
		return nil, err
	}

	var result AssignResult
	err := s.store.RunInTx(ctx, "assign_variant_attribute", func(tx store.Tx) error {
		result = AssignResult{}
		a, err := resolveAssignment(ctx, tx, variantID, attributeID, attributeValueID)
		if err != nil {
			return err
		}

		validator := validation.NewVariantValidator(func(ctx context.Context, productTypeID, attributeID int64) (bool, error) {
			return schema.Legal(ctx, tx, productTypeID, attributeID)
		})
		err = validator.Validate(ctx, *a)

		var duplicate *models.DuplicateAttributeError
		switch {
		case err == nil && a.Unchanged():
			result.Value, result.Unchanged = *a.Existing, true
			return nil
		case err == nil:
			row := &models.ProductVariantAttributeValue{
				VariantID:        variantID,
				AttributeID:      attributeID,
				AttributeValueID: attributeValueID,
			}
			if err := tx.SaveVariantAttributeValue(ctx, row); err != nil {
				return err
			}
			result.Value = *row
			return nil
		case errors.As(err, &duplicate) && onConflict == models.ConflictReplace:
			row := *a.Existing
			row.AttributeValueID = attributeValueID
			if err := tx.SaveVariantAttributeValue(ctx, &row); err != nil {
				return err
			}
			result.Value, result.Replaced = row, true
			return nil
		default:
			return err
		}
	})
	defer util.EndSpan(span, err)

	if err != nil {
		util.VariantAssignmentsTotal.WithLabelValues("rejected").Inc()
		s.observe("assign_variant_attribute", err,
			zap.Int64("variant_id", variantID),
			zap.Int64("attribute_id", attributeID),
			zap.Int64("attribute_value_id", attributeValueID))
		return nil, err
	}

	switch {
	case result.Unchanged:
		util.VariantAssignmentsTotal.WithLabelValues("unchanged").Inc()
		return &result, nil
	case result.Replaced:
		util.VariantAssignmentsTotal.WithLabelValues("replaced").Inc()
	default:
		util.VariantAssignmentsTotal.WithLabelValues("assigned").Inc()
	}

	s.logger.Info("Variant attribute assigned",
		zap.Int64("variant_id", variantID),
		zap.Int64("attribute_id", attributeID),
		zap.Int64("attribute_value_id", attributeValueID),
		zap.Bool("replaced", result.Replaced))

	s.publish(ctx, &models.VariantAttributeAssignedEvent{
		BaseEvent:        newBaseEvent(models.EventTypeVariantAttributeAssigned),
		VariantID:        variantID,
		AttributeID:      attributeID,
		AttributeValueID: attributeValueID,
		Replaced:         result.Replaced,
	})
	return &result, nil
}

// VariantAttributeValues returns the attribute values a variant holds
func (s *CatalogService) VariantAttributeValues(ctx context.Context, variantID int64) ([]models.ProductVariantAttributeValue, error) {
	values := []models.ProductVariantAttributeValue{}
	err := s.store.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetVariant(ctx, variantID); err != nil {
			return err
		}
		rows, err := tx.VariantAttributeValues(ctx, variantID)
		if err != nil {
			return err
		}
		values = append(values, rows...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// resolveAssignment loads everything the validator needs. The variant row is locked
// first so concurrent writers for the same variant queue up behind each other.
func resolveAssignment(ctx context.Context, tx store.Tx, variantID, attributeID, attributeValueID int64) (*validation.Assignment, error) {
	variant, err := tx.LockVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	product, err := tx.GetProduct(ctx, variant.ProductID)
	if err != nil {
		return nil, err
	}
	// written, not just locked, so a concurrent deactivation of the attribute
	// or the value conflicts with the assignment
	if _, err := tx.TouchNamed(ctx, models.KindAttribute, attributeID); err != nil {
		return nil, err
	}
	if _, err := tx.TouchNamed(ctx, models.KindAttributeValue, attributeValueID); err != nil {
		return nil, err
	}
	attribute, err := tx.GetAttribute(ctx, attributeID)
	if err != nil {
		return nil, err
	}
	value, err := tx.GetAttributeValue(ctx, attributeValueID)
	if err != nil {
		return nil, err
	}
	existing, err := tx.GetVariantAttributeValue(ctx, variantID, attributeID)
	if err != nil {
		return nil, err
	}

	return &validation.Assignment{
		Variant:   variant,
		Product:   product,
		Attribute: attribute,
		Value:     value,
		Existing:  existing,
	}, nil
}
