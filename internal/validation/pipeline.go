// Package validation holds the write-path checks of the catalog: field rules,
// a case-insensitive uniqueness rule, slug assignment, the deactivation guard
// and variant attribute consistency. Each check is an independent Validator;
// an entity's write path composes the ones it needs into a Pipeline.
package validation

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"catalog-service/internal/models"
	"catalog-service/internal/slug"

	"github.com/shopspring/decimal"
)

// Subject is the entity being written, reduced to the fields the rules look at
type Subject struct {
	Kind models.EntityKind
	// ID is zero on create
	ID            int64
	Name          string
	Slug          string
	IsActive      bool
	ProductTypeID *int64
	Price         *decimal.Decimal
	Stock         *int
}

// Validator checks one rule against s. Validators may fill derived fields of s.
type Validator interface {
	Validate(ctx context.Context, s *Subject) error
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(ctx context.Context, s *Subject) error

func (f ValidatorFunc) Validate(ctx context.Context, s *Subject) error {
	return f(ctx, s)
}

// Pipeline runs validators in order and stops at the first failure
type Pipeline []Validator

func (p Pipeline) Validate(ctx context.Context, s *Subject) error {
	for _, v := range p {
		if err := v.Validate(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// NameLength rejects an empty, too short or too long slug source field
func NameLength() Validator {
	return ValidatorFunc(func(_ context.Context, s *Subject) error {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return &models.EmptyNameError{Kind: s.Kind, Field: slug.SourceField(s.Kind)}
		}
		n := utf8.RuneCountInString(name)
		if minLen := s.Kind.MinNameLength(); n < minLen {
			return &models.InvalidFieldError{
				Field:  slug.SourceField(s.Kind),
				Reason: fmt.Sprintf("must be at least %d characters long", minLen),
			}
		}
		if maxLen := s.Kind.MaxNameLength(); n > maxLen {
			return &models.InvalidFieldError{
				Field:  slug.SourceField(s.Kind),
				Reason: fmt.Sprintf("must be at most %d characters long", maxLen),
			}
		}
		return nil
	})
}

// SlugFormat checks a slug that is already set
func SlugFormat() Validator {
	return ValidatorFunc(func(_ context.Context, s *Subject) error {
		if s.Slug == "" {
			return nil
		}
		return slug.Validate(s.Kind, s.Slug)
	})
}

// NameLookup reports whether another record of kind already uses name, ignoring case
type NameLookup func(ctx context.Context, kind models.EntityKind, name string, excludeID int64) (bool, error)

// UniqueName rejects a name another record of the same kind uses in any letter case
func UniqueName(lookup NameLookup) Validator {
	return ValidatorFunc(func(ctx context.Context, s *Subject) error {
		taken, err := lookup(ctx, s.Kind, strings.TrimSpace(s.Name), s.ID)
		if err != nil {
			return fmt.Errorf("failed to check %s name: %w", s.Kind, err)
		}
		if taken {
			return &models.InvalidFieldError{
				Field:  "name",
				Reason: fmt.Sprintf("a %s named %q already exists", s.Kind, s.Name),
			}
		}
		return nil
	})
}

// AssignSlug generates the slug from the name when none is set
func AssignSlug(exists slug.ExistsFunc) Validator {
	return ValidatorFunc(func(ctx context.Context, s *Subject) error {
		if s.Slug != "" {
			return nil
		}
		generated, err := slug.Generate(ctx, s.Kind, s.Name, exists)
		if err != nil {
			return err
		}
		s.Slug = generated
		return nil
	})
}

// PositivePrice requires a price greater than zero
func PositivePrice() Validator {
	return ValidatorFunc(func(_ context.Context, s *Subject) error {
		if s.Price == nil || !s.Price.IsPositive() {
			return &models.InvalidFieldError{Field: "price", Reason: "must be a positive number"}
		}
		return nil
	})
}

// NonNegativeStock requires stock of zero or more
func NonNegativeStock() Validator {
	return ValidatorFunc(func(_ context.Context, s *Subject) error {
		if s.Stock != nil && *s.Stock < 0 {
			return &models.InvalidFieldError{Field: "stock", Reason: "cannot be negative"}
		}
		return nil
	})
}

// ProductTypeRequired rejects an active product without a product type
func ProductTypeRequired() Validator {
	return ValidatorFunc(func(_ context.Context, s *Subject) error {
		if s.IsActive && s.ProductTypeID == nil {
			return &models.InvalidFieldError{Field: "product_type", Reason: "an active product requires a product type"}
		}
		return nil
	})
}

// Reason classifies a validation error for metrics
func Reason(err error) string {
	switch {
	case asType[*models.EmptyNameError](err):
		return "empty_name"
	case asType[*models.InvalidFieldError](err):
		return "invalid_field"
	case asType[*models.CycleError](err):
		return "cycle"
	case asType[*models.BlockedError](err):
		return "blocked"
	case asType[*models.MissingProductTypeError](err):
		return "missing_product_type"
	case asType[*models.IllegalAttributeError](err):
		return "illegal_attribute"
	case asType[*models.MismatchedValueError](err):
		return "mismatched_value"
	case asType[*models.DuplicateAttributeError](err):
		return "duplicate_attribute"
	}
	return "other"
}
