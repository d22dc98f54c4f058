package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"catalog-service/internal/models"
	"catalog-service/internal/store"
)

func (t *tx) ExistsWithSlug(_ context.Context, kind models.EntityKind, slug string, excludeID int64) (bool, error) {
	if !kind.Slugged() {
		return false, fmt.Errorf("%s has no slug", kind)
	}
	return t.slugTaken(kind, slug, excludeID), nil
}

func (t *tx) NameTaken(_ context.Context, kind models.EntityKind, name string, excludeID int64) (bool, error) {
	for _, n := range t.all(kind) {
		if n.ID != excludeID && strings.EqualFold(n.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) CountActiveDependents(_ context.Context, kind models.EntityKind, id int64, rel models.Relation) (int, error) {
	count := 0
	switch {
	case kind == models.KindCategory && rel == models.RelationChildCategories:
		for _, c := range t.st.categories {
			if c.IsActive && c.ParentID != nil && *c.ParentID == id {
				count++
			}
		}
	case kind == models.KindProductType && rel == models.RelationProducts:
		for _, p := range t.st.products {
			if p.IsActive && p.ProductTypeID != nil && *p.ProductTypeID == id {
				count++
			}
		}
	case kind == models.KindProduct && rel == models.RelationVariants:
		for _, v := range t.st.variants {
			if v.IsActive && v.ProductID == id {
				count++
			}
		}
	case kind == models.KindAttribute && rel == models.RelationVariantAttributes:
		for _, va := range t.st.variantAttrs {
			if va.AttributeID == id && t.st.variants[va.VariantID].IsActive {
				count++
			}
		}
	case kind == models.KindAttributeValue && rel == models.RelationVariantValues:
		for _, va := range t.st.variantAttrs {
			if va.AttributeValueID == id && t.st.variants[va.VariantID].IsActive {
				count++
			}
		}
	default:
		return 0, fmt.Errorf("no dependents relation %q for %s", rel, kind)
	}
	return count, nil
}

func (t *tx) GetNamed(_ context.Context, kind models.EntityKind, id int64) (*models.Named, error) {
	n, ok := t.named(kind, id)
	if !ok {
		return nil, models.NotFound(kind, id)
	}
	return &n, nil
}

func (t *tx) LockNamed(ctx context.Context, kind models.EntityKind, id int64) (*models.Named, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	return t.GetNamed(ctx, kind, id)
}

func (t *tx) TouchNamed(ctx context.Context, kind models.EntityKind, id int64) (*models.Named, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	if err := t.update(kind, id, func(*models.Named) {}); err != nil {
		return nil, err
	}
	return t.GetNamed(ctx, kind, id)
}

func (t *tx) UpdateName(_ context.Context, kind models.EntityKind, id int64, name, slug string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if !kind.Slugged() {
		return fmt.Errorf("%s has no slug", kind)
	}
	if t.slugTaken(kind, slug, id) {
		return fmt.Errorf("%s slug %q: %w", kind, slug, store.ErrConflict)
	}
	return t.update(kind, id, func(n *models.Named) {
		n.Name, n.Slug = name, slug
	})
}

func (t *tx) SetActive(_ context.Context, kind models.EntityKind, id int64, active bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.update(kind, id, func(n *models.Named) {
		n.IsActive = active
	})
}

func (t *tx) InsertProductType(_ context.Context, pt *models.ProductType) error {
	if err := t.insertable(models.KindProductType, pt.Slug); err != nil {
		return err
	}
	pt.ID = t.st.nextID()
	pt.CreatedAt, pt.UpdatedAt = t.now, t.now
	t.st.productTypes[pt.ID] = *pt
	return nil
}

func (t *tx) GetProductType(_ context.Context, id int64) (*models.ProductType, error) {
	pt, ok := t.st.productTypes[id]
	if !ok {
		return nil, models.NotFound(models.KindProductType, id)
	}
	return &pt, nil
}

func (t *tx) InsertAttribute(_ context.Context, a *models.Attribute) error {
	if err := t.insertable(models.KindAttribute, a.Slug); err != nil {
		return err
	}
	a.ID = t.st.nextID()
	a.CreatedAt, a.UpdatedAt = t.now, t.now
	t.st.attributes[a.ID] = *a
	return nil
}

func (t *tx) GetAttribute(_ context.Context, id int64) (*models.Attribute, error) {
	a, ok := t.st.attributes[id]
	if !ok {
		return nil, models.NotFound(models.KindAttribute, id)
	}
	return &a, nil
}

func (t *tx) InsertAttributeValue(ctx context.Context, v *models.AttributeValue) error {
	if err := t.insertable(models.KindAttributeValue, v.Slug); err != nil {
		return err
	}
	if _, ok := t.st.attributes[v.AttributeID]; !ok {
		return models.NotFound(models.KindAttribute, v.AttributeID)
	}
	if dup, _ := t.AttributeValueExists(ctx, v.AttributeID, v.Value); dup {
		return fmt.Errorf("attribute %d value %q: %w", v.AttributeID, v.Value, store.ErrConflict)
	}
	v.ID = t.st.nextID()
	v.CreatedAt, v.UpdatedAt = t.now, t.now
	t.st.values[v.ID] = *v
	return nil
}

func (t *tx) GetAttributeValue(_ context.Context, id int64) (*models.AttributeValue, error) {
	v, ok := t.st.values[id]
	if !ok {
		return nil, models.NotFound(models.KindAttributeValue, id)
	}
	return &v, nil
}

func (t *tx) AttributeValueExists(_ context.Context, attributeID int64, value string) (bool, error) {
	for _, v := range t.st.values {
		if v.AttributeID == attributeID && v.Value == value {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertTag(_ context.Context, tag *models.Tag) error {
	if err := t.insertable(models.KindTag, tag.Slug); err != nil {
		return err
	}
	tag.ID = t.st.nextID()
	tag.CreatedAt, tag.UpdatedAt = t.now, t.now
	t.st.tags[tag.ID] = *tag
	return nil
}

func (t *tx) InsertProduct(_ context.Context, p *models.Product) error {
	if err := t.insertable(models.KindProduct, p.Slug); err != nil {
		return err
	}
	if p.ProductTypeID != nil {
		if _, ok := t.st.productTypes[*p.ProductTypeID]; !ok {
			return models.NotFound(models.KindProductType, *p.ProductTypeID)
		}
	}
	for _, id := range p.CategoryIDs {
		if _, ok := t.st.categories[id]; !ok {
			return models.NotFound(models.KindCategory, id)
		}
	}
	for _, id := range p.TagIDs {
		if _, ok := t.st.tags[id]; !ok {
			return models.NotFound(models.KindTag, id)
		}
	}

	p.ID = t.st.nextID()
	p.CreatedAt, p.UpdatedAt = t.now, t.now
	p.CategoryIDs = sortedUnique(p.CategoryIDs)
	p.TagIDs = sortedUnique(p.TagIDs)

	row := *p
	row.ProductTypeID = copyID(p.ProductTypeID)
	row.CategoryIDs = append([]int64(nil), p.CategoryIDs...)
	row.TagIDs = append([]int64(nil), p.TagIDs...)
	t.st.products[p.ID] = row
	return nil
}

func (t *tx) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, models.NotFound(models.KindProduct, id)
	}
	p.ProductTypeID = copyID(p.ProductTypeID)
	p.CategoryIDs = append([]int64(nil), p.CategoryIDs...)
	p.TagIDs = append([]int64(nil), p.TagIDs...)
	return &p, nil
}

func (t *tx) InsertVariant(ctx context.Context, v *models.ProductVariant) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.products[v.ProductID]; !ok {
		return models.NotFound(models.KindProduct, v.ProductID)
	}
	if dup, _ := t.SKUExists(ctx, v.SKU); dup {
		return fmt.Errorf("sku %q: %w", v.SKU, store.ErrConflict)
	}
	v.ID = t.st.nextID()
	v.CreatedAt, v.UpdatedAt = t.now, t.now
	t.st.variants[v.ID] = *v
	return nil
}

func (t *tx) GetVariant(_ context.Context, id int64) (*models.ProductVariant, error) {
	v, ok := t.st.variants[id]
	if !ok {
		return nil, models.NotFound(models.KindProductVariant, id)
	}
	return &v, nil
}

func (t *tx) LockVariant(ctx context.Context, id int64) (*models.ProductVariant, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	return t.GetVariant(ctx, id)
}

func (t *tx) SKUExists(_ context.Context, sku string) (bool, error) {
	for _, v := range t.st.variants {
		if v.SKU == sku {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) AttributeIDs(_ context.Context, productTypeID int64) ([]int64, error) {
	ids := make([]int64, 0, len(t.st.schema[productTypeID]))
	for id := range t.st.schema[productTypeID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *tx) LinkAttribute(_ context.Context, productTypeID, attributeID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.productTypes[productTypeID]; !ok {
		return models.NotFound(models.KindProductType, productTypeID)
	}
	if _, ok := t.st.attributes[attributeID]; !ok {
		return models.NotFound(models.KindAttribute, attributeID)
	}
	set, ok := t.st.schema[productTypeID]
	if !ok {
		set = make(map[int64]bool)
		t.st.schema[productTypeID] = set
	}
	set[attributeID] = true
	return nil
}

func (t *tx) UnlinkAttribute(_ context.Context, productTypeID, attributeID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	delete(t.st.schema[productTypeID], attributeID)
	return nil
}

func (t *tx) GetVariantAttributeValue(_ context.Context, variantID, attributeID int64) (*models.ProductVariantAttributeValue, error) {
	for _, va := range t.st.variantAttrs {
		if va.VariantID == variantID && va.AttributeID == attributeID {
			return &va, nil
		}
	}
	return nil, nil
}

func (t *tx) SaveVariantAttributeValue(ctx context.Context, v *models.ProductVariantAttributeValue) error {
	if err := t.writable(); err != nil {
		return err
	}

	if v.ID == 0 {
		if existing, _ := t.GetVariantAttributeValue(ctx, v.VariantID, v.AttributeID); existing != nil {
			return fmt.Errorf("variant %d attribute %d: %w", v.VariantID, v.AttributeID, store.ErrConflict)
		}
		v.ID = t.st.nextID()
		v.CreatedAt = t.now
	} else if _, ok := t.st.variantAttrs[v.ID]; !ok {
		return fmt.Errorf("variant attribute value %d: %w", v.ID, models.ErrNotFound)
	}
	v.UpdatedAt = t.now
	t.st.variantAttrs[v.ID] = *v
	return nil
}

func (t *tx) VariantAttributeValues(_ context.Context, variantID int64) ([]models.ProductVariantAttributeValue, error) {
	var out []models.ProductVariantAttributeValue
	for _, va := range t.st.variantAttrs {
		if va.VariantID == variantID {
			out = append(out, va)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttributeID < out[j].AttributeID })
	return out, nil
}

func (t *tx) insertable(kind models.EntityKind, slug string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.slugTaken(kind, slug, 0) {
		return fmt.Errorf("%s slug %q: %w", kind, slug, store.ErrConflict)
	}
	return nil
}

func (t *tx) slugTaken(kind models.EntityKind, slug string, excludeID int64) bool {
	for _, n := range t.all(kind) {
		if n.ID != excludeID && n.Slug == slug {
			return true
		}
	}
	return false
}

// all returns every entity of kind in its Named view
func (t *tx) all(kind models.EntityKind) []models.Named {
	var out []models.Named
	switch kind {
	case models.KindCategory:
		for _, c := range t.st.categories {
			out = append(out, models.Named{Kind: kind, ID: c.ID, Name: c.Name, Slug: c.Slug, IsActive: c.IsActive})
		}
	case models.KindProductType:
		for _, pt := range t.st.productTypes {
			out = append(out, models.Named{Kind: kind, ID: pt.ID, Name: pt.Name, Slug: pt.Slug, IsActive: pt.IsActive})
		}
	case models.KindAttribute:
		for _, a := range t.st.attributes {
			out = append(out, models.Named{Kind: kind, ID: a.ID, Name: a.Name, Slug: a.Slug, IsActive: a.IsActive})
		}
	case models.KindAttributeValue:
		for _, v := range t.st.values {
			out = append(out, models.Named{Kind: kind, ID: v.ID, Name: v.Value, Slug: v.Slug, IsActive: v.IsActive})
		}
	case models.KindProduct:
		for _, p := range t.st.products {
			out = append(out, models.Named{Kind: kind, ID: p.ID, Name: p.Name, Slug: p.Slug, IsActive: p.IsActive})
		}
	case models.KindProductVariant:
		for _, v := range t.st.variants {
			out = append(out, models.Named{Kind: kind, ID: v.ID, Name: v.SKU, IsActive: v.IsActive})
		}
	case models.KindTag:
		for _, tag := range t.st.tags {
			out = append(out, models.Named{Kind: kind, ID: tag.ID, Name: tag.Name, Slug: tag.Slug, IsActive: tag.IsActive})
		}
	}
	return out
}

func (t *tx) named(kind models.EntityKind, id int64) (models.Named, bool) {
	for _, n := range t.all(kind) {
		if n.ID == id {
			return n, true
		}
	}
	return models.Named{}, false
}

// update applies fn to the Named view of (kind, id) and writes the result back
func (t *tx) update(kind models.EntityKind, id int64, fn func(n *models.Named)) error {
	n, ok := t.named(kind, id)
	if !ok {
		return models.NotFound(kind, id)
	}
	fn(&n)

	switch kind {
	case models.KindCategory:
		c := t.st.categories[id]
		c.Name, c.Slug, c.IsActive, c.UpdatedAt = n.Name, n.Slug, n.IsActive, t.now
		t.st.categories[id] = c
	case models.KindProductType:
		pt := t.st.productTypes[id]
		pt.Name, pt.Slug, pt.IsActive, pt.UpdatedAt = n.Name, n.Slug, n.IsActive, t.now
		t.st.productTypes[id] = pt
	case models.KindAttribute:
		a := t.st.attributes[id]
		a.Name, a.Slug, a.IsActive, a.UpdatedAt = n.Name, n.Slug, n.IsActive, t.now
		t.st.attributes[id] = a
	case models.KindAttributeValue:
		v := t.st.values[id]
		v.Value, v.Slug, v.IsActive, v.UpdatedAt = n.Name, n.Slug, n.IsActive, t.now
		t.st.values[id] = v
	case models.KindProduct:
		p := t.st.products[id]
		p.Name, p.Slug, p.IsActive, p.UpdatedAt = n.Name, n.Slug, n.IsActive, t.now
		t.st.products[id] = p
	case models.KindProductVariant:
		v := t.st.variants[id]
		v.IsActive, v.UpdatedAt = n.IsActive, t.now
		t.st.variants[id] = v
	case models.KindTag:
		tag := t.st.tags[id]
		tag.Name, tag.Slug, tag.IsActive, tag.UpdatedAt = n.Name, n.Slug, n.IsActive, t.now
		t.st.tags[id] = tag
	}
	return nil
}

func sortedUnique(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
