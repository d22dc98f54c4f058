package validation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"catalog-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }
func intp(v int) *int       { return &v }

func TestNameLength(t *testing.T) {
	tests := []struct {
		name    string
		subject Subject
		wantErr interface{}
	}{
		{"ok", Subject{Kind: models.KindCategory, Name: "Shoes"}, nil},
		{"empty", Subject{Kind: models.KindCategory, Name: "   "}, new(*models.EmptyNameError)},
		{"too short", Subject{Kind: models.KindTag, Name: "ab"}, new(*models.InvalidFieldError)},
		{"short attribute value", Subject{Kind: models.KindAttributeValue, Name: "S"}, nil},
		{"counts runes", Subject{Kind: models.KindCategory, Name: "çöü"}, nil},
		{"longest category", Subject{Kind: models.KindCategory, Name: strings.Repeat("y", 100)}, nil},
		{"too long category", Subject{Kind: models.KindCategory, Name: strings.Repeat("y", 250)}, new(*models.InvalidFieldError)},
		{"longest tag", Subject{Kind: models.KindTag, Name: strings.Repeat("x", 50)}, nil},
		{"too long tag", Subject{Kind: models.KindTag, Name: strings.Repeat("x", 80)}, new(*models.InvalidFieldError)},
		{"long multibyte value", Subject{Kind: models.KindAttributeValue, Name: strings.Repeat("é", 100)}, nil},
		{"too long sku", Subject{Kind: models.KindProductVariant, Name: strings.Repeat("9", 101)}, new(*models.InvalidFieldError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NameLength().Validate(context.Background(), &tt.subject)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorAs(t, err, tt.wantErr)
		})
	}
}

func TestSlugFormat(t *testing.T) {
	v := SlugFormat()

	assert.NoError(t, v.Validate(context.Background(), &Subject{Kind: models.KindTag}))
	assert.NoError(t, v.Validate(context.Background(), &Subject{Kind: models.KindTag, Slug: "new_in-2024"}))

	var invalid *models.InvalidFieldError
	assert.ErrorAs(t, v.Validate(context.Background(), &Subject{Kind: models.KindTag, Slug: "Not A Slug"}), &invalid)
	assert.Equal(t, "slug", invalid.Field)
}

func TestUniqueName(t *testing.T) {
	names := map[string]int64{"shoes": 7}
	lookup := func(_ context.Context, _ models.EntityKind, name string, excludeID int64) (bool, error) {
		id, ok := names[name]
		return ok && id != excludeID, nil
	}
	v := UniqueName(func(ctx context.Context, kind models.EntityKind, name string, excludeID int64) (bool, error) {
		return lookup(ctx, kind, lowerASCII(name), excludeID)
	})

	var invalid *models.InvalidFieldError
	assert.ErrorAs(t, v.Validate(context.Background(), &Subject{Kind: models.KindProductType, Name: "SHOES"}), &invalid)
	assert.NoError(t, v.Validate(context.Background(), &Subject{Kind: models.KindProductType, ID: 7, Name: "Shoes"}))
	assert.NoError(t, v.Validate(context.Background(), &Subject{Kind: models.KindProductType, Name: "Boots"}))

	failing := UniqueName(func(context.Context, models.EntityKind, string, int64) (bool, error) {
		return false, errors.New("store down")
	})
	assert.EqualError(t, failing.Validate(context.Background(), &Subject{Kind: models.KindTag, Name: "Sale"}),
		"failed to check tag name: store down")
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func TestAssignSlug(t *testing.T) {
	taken := map[string]bool{"sale": true}
	v := AssignSlug(func(_ context.Context, candidate string) (bool, error) {
		return taken[candidate], nil
	})

	s := &Subject{Kind: models.KindCategory, Name: "Sale"}
	require.NoError(t, v.Validate(context.Background(), s))
	assert.Equal(t, "sale-1", s.Slug)

	manual := &Subject{Kind: models.KindCategory, Name: "Sale", Slug: "summer-sale"}
	require.NoError(t, v.Validate(context.Background(), manual))
	assert.Equal(t, "summer-sale", manual.Slug)
}

func TestVariantFieldRules(t *testing.T) {
	p := Pipeline{PositivePrice(), NonNegativeStock()}
	zero := decimal.Zero
	price := decimal.RequireFromString("19.99")

	var invalid *models.InvalidFieldError
	require.ErrorAs(t, p.Validate(context.Background(), &Subject{Price: &zero}), &invalid)
	assert.Equal(t, "price", invalid.Field)

	require.ErrorAs(t, p.Validate(context.Background(), &Subject{Price: &price, Stock: intp(-1)}), &invalid)
	assert.Equal(t, "stock", invalid.Field)

	assert.NoError(t, p.Validate(context.Background(), &Subject{Price: &price, Stock: intp(0)}))
}

func TestProductTypeRequired(t *testing.T) {
	v := ProductTypeRequired()

	var invalid *models.InvalidFieldError
	assert.ErrorAs(t, v.Validate(context.Background(), &Subject{Kind: models.KindProduct, IsActive: true}), &invalid)
	assert.NoError(t, v.Validate(context.Background(), &Subject{Kind: models.KindProduct}))
	assert.NoError(t, v.Validate(context.Background(),
		&Subject{Kind: models.KindProduct, IsActive: true, ProductTypeID: int64p(1)}))
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	var calls []string
	step := func(name string, err error) Validator {
		return ValidatorFunc(func(context.Context, *Subject) error {
			calls = append(calls, name)
			return err
		})
	}
	boom := errors.New("boom")

	err := Pipeline{step("a", nil), step("b", boom), step("c", nil)}.Validate(context.Background(), &Subject{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestDeactivationGuard(t *testing.T) {
	g := NewDeactivationGuard()
	counts := map[models.Relation]int{}
	lookup := func(_ context.Context, _ models.EntityKind, _ int64, rel models.Relation) (int, error) {
		return counts[rel], nil
	}

	t.Run("allows without dependents", func(t *testing.T) {
		for _, kind := range []models.EntityKind{
			models.KindCategory, models.KindProductType, models.KindAttribute,
			models.KindAttributeValue, models.KindProduct, models.KindProductVariant, models.KindTag,
		} {
			assert.NoError(t, g.CanDeactivate(context.Background(), kind, 1, lookup), kind)
		}
	})

	t.Run("blocks product type with active products", func(t *testing.T) {
		counts[models.RelationProducts] = 2
		defer delete(counts, models.RelationProducts)

		var blocked *models.BlockedError
		require.ErrorAs(t, g.CanDeactivate(context.Background(), models.KindProductType, 5, lookup), &blocked)
		assert.Equal(t, models.KindProductType, blocked.Kind)
		assert.Equal(t, int64(5), blocked.ID)
		assert.Equal(t, models.RelationProducts, blocked.Reason)
		assert.Equal(t, 2, blocked.BlockingCount)
	})

	t.Run("category reports active children", func(t *testing.T) {
		counts[models.RelationChildCategories] = 1
		defer delete(counts, models.RelationChildCategories)

		err := g.CanDeactivate(context.Background(), models.KindCategory, 3, lookup)
		var children *models.ActiveChildrenError
		require.ErrorAs(t, err, &children)
		assert.Equal(t, 1, children.BlockingCount)

		var blocked *models.BlockedError
		require.ErrorAs(t, err, &blocked)
		assert.Equal(t, models.KindCategory, blocked.Kind)
	})

	t.Run("tags are never blocked", func(t *testing.T) {
		assert.Empty(t, g.Relations(models.KindTag))
		assert.Empty(t, g.Relations(models.KindProductVariant))
	})

	t.Run("lookup failure", func(t *testing.T) {
		failing := func(context.Context, models.EntityKind, int64, models.Relation) (int, error) {
			return 0, errors.New("store down")
		}
		err := g.CanDeactivate(context.Background(), models.KindProduct, 1, failing)
		require.Error(t, err)
		assert.False(t, models.IsValidation(err))
	})

	t.Run("validator skips active subjects", func(t *testing.T) {
		counts[models.RelationVariants] = 1
		defer delete(counts, models.RelationVariants)

		v := g.Validator(lookup)
		assert.NoError(t, v.Validate(context.Background(), &Subject{Kind: models.KindProduct, ID: 1, IsActive: true}))
		assert.Error(t, v.Validate(context.Background(), &Subject{Kind: models.KindProduct, ID: 1}))
	})
}

func TestVariantValidator(t *testing.T) {
	shoes := int64(1)
	legalSet := map[int64]map[int64]bool{shoes: {10: true}}
	v := NewVariantValidator(func(_ context.Context, pt, attr int64) (bool, error) {
		return legalSet[pt][attr], nil
	})

	variant := &models.ProductVariant{ID: 100, ProductID: 50}
	product := &models.Product{ID: 50, ProductTypeID: &shoes}
	size := &models.Attribute{ID: 10, Name: "Size"}
	color := &models.Attribute{ID: 11, Name: "Color"}
	size42 := &models.AttributeValue{ID: 20, AttributeID: 10, Value: "42"}
	size43 := &models.AttributeValue{ID: 21, AttributeID: 10, Value: "43"}
	red := &models.AttributeValue{ID: 30, AttributeID: 11, Value: "Red"}

	t.Run("legal", func(t *testing.T) {
		assert.NoError(t, v.Validate(context.Background(),
			Assignment{Variant: variant, Product: product, Attribute: size, Value: size42}))
	})

	t.Run("missing product type", func(t *testing.T) {
		err := v.Validate(context.Background(), Assignment{
			Variant: variant, Product: &models.Product{ID: 51}, Attribute: size, Value: size42,
		})
		var missing *models.MissingProductTypeError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, int64(51), missing.ProductID)
	})

	t.Run("illegal attribute", func(t *testing.T) {
		err := v.Validate(context.Background(),
			Assignment{Variant: variant, Product: product, Attribute: color, Value: red})
		var illegal *models.IllegalAttributeError
		require.ErrorAs(t, err, &illegal)
		assert.Equal(t, int64(11), illegal.AttributeID)
		assert.Equal(t, shoes, illegal.ProductTypeID)
	})

	t.Run("mismatched value", func(t *testing.T) {
		err := v.Validate(context.Background(),
			Assignment{Variant: variant, Product: product, Attribute: size, Value: red})
		var mismatched *models.MismatchedValueError
		require.ErrorAs(t, err, &mismatched)
	})

	t.Run("duplicate attribute", func(t *testing.T) {
		existing := &models.ProductVariantAttributeValue{VariantID: 100, AttributeID: 10, AttributeValueID: 20}
		err := v.Validate(context.Background(),
			Assignment{Variant: variant, Product: product, Attribute: size, Value: size43, Existing: existing})
		var duplicate *models.DuplicateAttributeError
		require.ErrorAs(t, err, &duplicate)
		assert.Equal(t, int64(20), duplicate.ExistingValueID)
	})

	t.Run("same value again", func(t *testing.T) {
		existing := &models.ProductVariantAttributeValue{VariantID: 100, AttributeID: 10, AttributeValueID: 20}
		a := Assignment{Variant: variant, Product: product, Attribute: size, Value: size42, Existing: existing}
		assert.NoError(t, v.Validate(context.Background(), a))
		assert.True(t, a.Unchanged())
	})
}

func TestReason(t *testing.T) {
	assert.Equal(t, "blocked", Reason(&models.ActiveChildrenError{CategoryID: 1, BlockingCount: 1}))
	assert.Equal(t, "cycle", Reason(&models.CycleError{}))
	assert.Equal(t, "other", Reason(errors.New("x")))
}
