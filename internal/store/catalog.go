package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"catalog-service/internal/models"

	"github.com/lib/pq"
)

type kindTable struct {
	table  string
	source string
	slug   string
}

var kindTables = map[models.EntityKind]kindTable{
	models.KindCategory:       {"categories", "name", "slug"},
	models.KindProductType:    {"product_types", "name", "slug"},
	models.KindAttribute:      {"attributes", "name", "slug"},
	models.KindAttributeValue: {"attribute_values", "value", "slug"},
	models.KindProduct:        {"products", "name", "slug"},
	models.KindProductVariant: {"product_variants", "sku", "''"},
	models.KindTag:            {"tags", "name", "slug"},
}

func tableFor(kind models.EntityKind) (kindTable, error) {
	kt, ok := kindTables[kind]
	if !ok {
		return kindTable{}, fmt.Errorf("unknown entity kind %q", kind)
	}
	return kt, nil
}

var dependentQueries = map[models.EntityKind]map[models.Relation]string{
	models.KindCategory: {
		models.RelationChildCategories: `SELECT count(*) FROM categories WHERE parent_id = $1 AND is_active`,
	},
	models.KindProductType: {
		models.RelationProducts: `SELECT count(*) FROM products WHERE product_type_id = $1 AND is_active`,
	},
	models.KindProduct: {
		models.RelationVariants: `SELECT count(*) FROM product_variants WHERE product_id = $1 AND is_active`,
	},
	models.KindAttribute: {
		models.RelationVariantAttributes: `
			SELECT count(*) FROM product_variant_attribute_values pvav
			JOIN product_variants v ON v.id = pvav.variant_id
			WHERE pvav.attribute_id = $1 AND v.is_active`,
	},
	models.KindAttributeValue: {
		models.RelationVariantValues: `
			SELECT count(*) FROM product_variant_attribute_values pvav
			JOIN product_variants v ON v.id = pvav.variant_id
			WHERE pvav.attribute_value_id = $1 AND v.is_active`,
	},
}

// ExistsWithSlug checks slug usage among records of kind other than excludeID
func (t *pgTx) ExistsWithSlug(ctx context.Context, kind models.EntityKind, slug string, excludeID int64) (bool, error) {
	kt, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	var exists bool
	err = t.tx.GetContext(ctx, &exists,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE slug = $1 AND id <> $2)", kt.table),
		slug, excludeID)
	return exists, err
}

// NameTaken checks case-insensitive name usage among records of kind other than excludeID
func (t *pgTx) NameTaken(ctx context.Context, kind models.EntityKind, name string, excludeID int64) (bool, error) {
	kt, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	var exists bool
	err = t.tx.GetContext(ctx, &exists,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE lower(%s) = lower($1) AND id <> $2)", kt.table, kt.source),
		name, excludeID)
	return exists, err
}

// CountActiveDependents counts active records depending on (kind, id) through rel
func (t *pgTx) CountActiveDependents(ctx context.Context, kind models.EntityKind, id int64, rel models.Relation) (int, error) {
	query, ok := dependentQueries[kind][rel]
	if !ok {
		return 0, fmt.Errorf("no dependents relation %q for %s", rel, kind)
	}
	var n int
	err := t.tx.GetContext(ctx, &n, query, id)
	return n, err
}

// missingReference turns a foreign key violation into models.ErrNotFound
func missingReference(err error, kind models.EntityKind, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return fmt.Errorf("%s: unknown %s: %w", msg, kind, models.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// GetNamed retrieves the kind-independent view of an entity
func (t *pgTx) GetNamed(ctx context.Context, kind models.EntityKind, id int64) (*models.Named, error) {
	return t.named(ctx, kind, id, "")
}

// LockNamed retrieves an entity and locks its row until the transaction ends
func (t *pgTx) LockNamed(ctx context.Context, kind models.EntityKind, id int64) (*models.Named, error) {
	return t.named(ctx, kind, id, " FOR UPDATE")
}

// TouchNamed bumps updated_at on an entity row and returns it. A concurrent
// transaction that has already read the row fails with a serialization error
// when it tries to lock or update it, which a plain FOR UPDATE does not cause.
func (t *pgTx) TouchNamed(ctx context.Context, kind models.EntityKind, id int64) (*models.Named, error) {
	kt, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var n models.Named
	query := fmt.Sprintf("UPDATE %s SET updated_at = NOW() WHERE id = $1 RETURNING id, %s AS name, %s AS slug, is_active",
		kt.table, kt.source, kt.slug)
	err = t.tx.GetContext(ctx, &n, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(kind, id)
	}
	if err != nil {
		return nil, err
	}
	n.Kind = kind
	return &n, nil
}

func (t *pgTx) named(ctx context.Context, kind models.EntityKind, id int64, suffix string) (*models.Named, error) {
	kt, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var n models.Named
	query := fmt.Sprintf("SELECT id, %s AS name, %s AS slug, is_active FROM %s WHERE id = $1%s",
		kt.source, kt.slug, kt.table, suffix)
	err = t.tx.GetContext(ctx, &n, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(kind, id)
	}
	if err != nil {
		return nil, err
	}
	n.Kind = kind
	return &n, nil
}

// UpdateName updates the slug source field and the slug
func (t *pgTx) UpdateName(ctx context.Context, kind models.EntityKind, id int64, name, slug string) error {
	kt, err := tableFor(kind)
	if err != nil {
		return err
	}
	if !kind.Slugged() {
		return fmt.Errorf("%s has no slug", kind)
	}
	res, err := t.tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s = $1, slug = $2, updated_at = NOW() WHERE id = $3", kt.table, kt.source),
		name, slug, id)
	if err != nil {
		return err
	}
	return expectRow(res, kind, id)
}

// SetActive flips the active flag
func (t *pgTx) SetActive(ctx context.Context, kind models.EntityKind, id int64, active bool) error {
	kt, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET is_active = $1, updated_at = NOW() WHERE id = $2", kt.table),
		active, id)
	if err != nil {
		return err
	}
	return expectRow(res, kind, id)
}

// InsertProductType creates a product type
func (t *pgTx) InsertProductType(ctx context.Context, pt *models.ProductType) error {
	return t.tx.QueryRowxContext(ctx, `
		INSERT INTO product_types (name, slug, is_active) VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		pt.Name, pt.Slug, pt.IsActive).Scan(&pt.ID, &pt.CreatedAt, &pt.UpdatedAt)
}

// GetProductType retrieves a product type by ID
func (t *pgTx) GetProductType(ctx context.Context, id int64) (*models.ProductType, error) {
	var pt models.ProductType
	err := t.tx.GetContext(ctx, &pt, "SELECT * FROM product_types WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(models.KindProductType, id)
	}
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

// InsertAttribute creates an attribute
func (t *pgTx) InsertAttribute(ctx context.Context, a *models.Attribute) error {
	return t.tx.QueryRowxContext(ctx, `
		INSERT INTO attributes (name, slug, description, is_filterable, is_active) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		a.Name, a.Slug, a.Description, a.IsFilterable, a.IsActive).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// GetAttribute retrieves an attribute by ID
func (t *pgTx) GetAttribute(ctx context.Context, id int64) (*models.Attribute, error) {
	var a models.Attribute
	err := t.tx.GetContext(ctx, &a, "SELECT * FROM attributes WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(models.KindAttribute, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertAttributeValue creates an attribute value
func (t *pgTx) InsertAttributeValue(ctx context.Context, v *models.AttributeValue) error {
	return t.tx.QueryRowxContext(ctx, `
		INSERT INTO attribute_values (attribute_id, value, slug, is_active) VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		v.AttributeID, v.Value, v.Slug, v.IsActive).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetAttributeValue retrieves an attribute value by ID
func (t *pgTx) GetAttributeValue(ctx context.Context, id int64) (*models.AttributeValue, error) {
	var v models.AttributeValue
	err := t.tx.GetContext(ctx, &v, "SELECT * FROM attribute_values WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(models.KindAttributeValue, id)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// AttributeValueExists checks whether value is already defined for the attribute
func (t *pgTx) AttributeValueExists(ctx context.Context, attributeID int64, value string) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM attribute_values WHERE attribute_id = $1 AND value = $2)", attributeID, value)
	return exists, err
}

// InsertTag creates a tag
func (t *pgTx) InsertTag(ctx context.Context, tag *models.Tag) error {
	return t.tx.QueryRowxContext(ctx, `
		INSERT INTO tags (name, slug, is_active) VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		tag.Name, tag.Slug, tag.IsActive).Scan(&tag.ID, &tag.CreatedAt, &tag.UpdatedAt)
}

// InsertProduct creates a product with its category and tag links
func (t *pgTx) InsertProduct(ctx context.Context, p *models.Product) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO products (name, slug, description, product_type_id, is_active) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Slug, p.Description, p.ProductTypeID, p.IsActive).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return err
	}

	if len(p.CategoryIDs) > 0 {
		if _, err := t.tx.ExecContext(ctx,
			"INSERT INTO product_categories (product_id, category_id) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING",
			p.ID, pq.Array(p.CategoryIDs)); err != nil {
			return missingReference(err, models.KindCategory, "failed to link categories")
		}
	}
	if len(p.TagIDs) > 0 {
		if _, err := t.tx.ExecContext(ctx,
			"INSERT INTO product_tags (product_id, tag_id) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING",
			p.ID, pq.Array(p.TagIDs)); err != nil {
			return missingReference(err, models.KindTag, "failed to link tags")
		}
	}
	return nil
}

// GetProduct retrieves a product with its category and tag ids
func (t *pgTx) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := t.tx.GetContext(ctx, &p,
		"SELECT id, name, slug, description, product_type_id, is_active, created_at, updated_at FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(models.KindProduct, id)
	}
	if err != nil {
		return nil, err
	}

	if err := t.tx.SelectContext(ctx, &p.CategoryIDs,
		"SELECT category_id FROM product_categories WHERE product_id = $1 ORDER BY category_id", id); err != nil {
		return nil, err
	}
	if err := t.tx.SelectContext(ctx, &p.TagIDs,
		"SELECT tag_id FROM product_tags WHERE product_id = $1 ORDER BY tag_id", id); err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertVariant creates a product variant
func (t *pgTx) InsertVariant(ctx context.Context, v *models.ProductVariant) error {
	return t.tx.QueryRowxContext(ctx, `
		INSERT INTO product_variants (product_id, sku, price, stock, is_active) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		v.ProductID, v.SKU, v.Price, v.Stock, v.IsActive).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetVariant retrieves a variant by ID
func (t *pgTx) GetVariant(ctx context.Context, id int64) (*models.ProductVariant, error) {
	return t.variant(ctx, id, "")
}

// LockVariant retrieves a variant and locks its row (FOR UPDATE lock)
func (t *pgTx) LockVariant(ctx context.Context, id int64) (*models.ProductVariant, error) {
	return t.variant(ctx, id, " FOR UPDATE")
}

func (t *pgTx) variant(ctx context.Context, id int64, suffix string) (*models.ProductVariant, error) {
	var v models.ProductVariant
	err := t.tx.GetContext(ctx, &v, "SELECT * FROM product_variants WHERE id = $1"+suffix, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(models.KindProductVariant, id)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SKUExists checks sku usage
func (t *pgTx) SKUExists(ctx context.Context, sku string) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM product_variants WHERE sku = $1)", sku)
	return exists, err
}

// AttributeIDs retrieves the attributes legal for a product type
func (t *pgTx) AttributeIDs(ctx context.Context, productTypeID int64) ([]int64, error) {
	var ids []int64
	err := t.tx.SelectContext(ctx, &ids,
		"SELECT attribute_id FROM product_type_attributes WHERE product_type_id = $1 ORDER BY attribute_id",
		productTypeID)
	return ids, err
}

// LinkAttribute makes an attribute legal for a product type
func (t *pgTx) LinkAttribute(ctx context.Context, productTypeID, attributeID int64) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO product_type_attributes (product_type_id, attribute_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		productTypeID, attributeID)
	return err
}

// UnlinkAttribute removes an attribute from a product type
func (t *pgTx) UnlinkAttribute(ctx context.Context, productTypeID, attributeID int64) error {
	_, err := t.tx.ExecContext(ctx,
		"DELETE FROM product_type_attributes WHERE product_type_id = $1 AND attribute_id = $2",
		productTypeID, attributeID)
	return err
}

// GetVariantAttributeValue retrieves the value a variant holds for an attribute, or nil
func (t *pgTx) GetVariantAttributeValue(ctx context.Context, variantID, attributeID int64) (*models.ProductVariantAttributeValue, error) {
	var v models.ProductVariantAttributeValue
	err := t.tx.GetContext(ctx, &v,
		"SELECT * FROM product_variant_attribute_values WHERE variant_id = $1 AND attribute_id = $2",
		variantID, attributeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SaveVariantAttributeValue inserts a new row or replaces the value of an existing one
func (t *pgTx) SaveVariantAttributeValue(ctx context.Context, v *models.ProductVariantAttributeValue) error {
	if v.ID == 0 {
		return t.tx.QueryRowxContext(ctx, `
			INSERT INTO product_variant_attribute_values (variant_id, attribute_id, attribute_value_id)
			VALUES ($1, $2, $3)
			RETURNING id, created_at, updated_at`,
			v.VariantID, v.AttributeID, v.AttributeValueID).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	}

	return t.tx.QueryRowxContext(ctx, `
		UPDATE product_variant_attribute_values SET attribute_value_id = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING updated_at`,
		v.AttributeValueID, v.ID).Scan(&v.UpdatedAt)
}

// VariantAttributeValues retrieves every attribute value of a variant
func (t *pgTx) VariantAttributeValues(ctx context.Context, variantID int64) ([]models.ProductVariantAttributeValue, error) {
	var values []models.ProductVariantAttributeValue
	err := t.tx.SelectContext(ctx, &values,
		"SELECT * FROM product_variant_attribute_values WHERE variant_id = $1 ORDER BY attribute_id", variantID)
	return values, err
}
