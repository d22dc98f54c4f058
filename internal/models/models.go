package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityKind names a catalog entity type
type EntityKind string

const (
	KindCategory       EntityKind = "category"
	KindProductType    EntityKind = "product_type"
	KindAttribute      EntityKind = "attribute"
	KindAttributeValue EntityKind = "attribute_value"
	KindProduct        EntityKind = "product"
	KindProductVariant EntityKind = "product_variant"
	KindTag            EntityKind = "tag"
)

// Slugged reports whether entities of this kind carry a generated slug
func (k EntityKind) Slugged() bool {
	switch k {
	case KindCategory, KindProductType, KindAttribute, KindAttributeValue, KindProduct, KindTag:
		return true
	}
	return false
}

// Valid reports whether k is a known kind
func (k EntityKind) Valid() bool {
	return k.Slugged() || k == KindProductVariant
}

// SlugMaxLength returns the maximum slug length for entities of this kind
func (k EntityKind) SlugMaxLength() int {
	if k == KindTag {
		return 60
	}
	return 100
}

// MinNameLength returns the minimum length of the slug source field
func (k EntityKind) MinNameLength() int {
	if k == KindAttributeValue {
		return 1
	}
	return 3
}

// MaxNameLength returns the maximum length of the slug source field
func (k EntityKind) MaxNameLength() int {
	if k == KindTag {
		return 50
	}
	return 100
}

// Relation identifies a dependents lookup for the deactivation guard
type Relation string

const (
	RelationChildCategories   Relation = "active_child_categories"
	RelationProducts          Relation = "active_products"
	RelationVariants          Relation = "active_variants"
	RelationVariantAttributes Relation = "active_variant_attributes"
	RelationVariantValues     Relation = "active_variant_values"
)

// Category is a node of the nested-set category forest
type Category struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	ParentID  *int64    `db:"parent_id" json:"parent_id,omitempty"`
	TreeID    int64     `db:"tree_id" json:"tree_id"`
	Lft       int       `db:"lft" json:"lft"`
	Rgt       int       `db:"rgt" json:"rgt"`
	Depth     int       `db:"depth" json:"depth"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Width is the number of coordinate slots the subtree rooted at c occupies
func (c *Category) Width() int {
	return c.Rgt - c.Lft + 1
}

// Encloses reports whether other lies strictly inside c's subtree
func (c *Category) Encloses(other *Category) bool {
	return c.TreeID == other.TreeID && c.Lft < other.Lft && other.Rgt < c.Rgt
}

// IsRoot reports whether c has no parent
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// ProductType defines which attributes are legal for its products' variants
type ProductType struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Attribute is a variant dimension such as size or color
type Attribute struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Slug         string    `db:"slug" json:"slug"`
	Description  string    `db:"description" json:"description,omitempty"`
	IsFilterable bool      `db:"is_filterable" json:"is_filterable"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AttributeValue is one legal value of an attribute
type AttributeValue struct {
	ID          int64     `db:"id" json:"id"`
	AttributeID int64     `db:"attribute_id" json:"attribute_id"`
	Value       string    `db:"value" json:"value"`
	Slug        string    `db:"slug" json:"slug"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Product represents a product in the catalog
type Product struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Slug          string    `db:"slug" json:"slug"`
	Description   string    `db:"description" json:"description,omitempty"`
	ProductTypeID *int64    `db:"product_type_id" json:"product_type_id,omitempty"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CategoryIDs   []int64   `db:"-" json:"category_ids"`
	TagIDs        []int64   `db:"-" json:"tag_ids"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ProductVariant is a purchasable configuration of a product
type ProductVariant struct {
	ID        int64           `db:"id" json:"id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	SKU       string          `db:"sku" json:"sku"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Stock     int             `db:"stock" json:"stock"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// ProductVariantAttributeValue ties a variant to one value of one attribute
type ProductVariantAttributeValue struct {
	ID               int64     `db:"id" json:"id"`
	VariantID        int64     `db:"variant_id" json:"variant_id"`
	AttributeID      int64     `db:"attribute_id" json:"attribute_id"`
	AttributeValueID int64     `db:"attribute_value_id" json:"attribute_value_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Tag is a free-form product label
type Tag struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Named is the kind-independent view of an entity used by rename and (de)activation.
// Name holds the slug source field, which is Value for attribute values and SKU for variants.
type Named struct {
	Kind     EntityKind `db:"-" json:"kind"`
	ID       int64      `db:"id" json:"id"`
	Name     string     `db:"name" json:"name"`
	Slug     string     `db:"slug" json:"slug"`
	IsActive bool       `db:"is_active" json:"is_active"`
}

// ConflictPolicy decides what happens when a variant already holds a value for an attribute
type ConflictPolicy string

const (
	ConflictReject  ConflictPolicy = "reject"
	ConflictReplace ConflictPolicy = "replace"
)
