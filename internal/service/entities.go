package service

import (
	"context"
	"fmt"
	"strings"

	"catalog-service/internal/models"
	"catalog-service/internal/schema"
	"catalog-service/internal/store"
	"catalog-service/internal/tree"
	"catalog-service/internal/util"
	"catalog-service/internal/validation"

	"go.uber.org/zap"
)

// CreateAttributeRequest represents a request to create an attribute
type CreateAttributeRequest struct {
	Name           string  `json:"name" binding:"required"`
	Description    string  `json:"description"`
	IsFilterable   bool    `json:"is_filterable"`
	ProductTypeIDs []int64 `json:"product_type_ids"`
}

// CreateProductRequest represents a request to create a product
type CreateProductRequest struct {
	Name          string  `json:"name" binding:"required"`
	Description   string  `json:"description"`
	ProductTypeID *int64  `json:"product_type_id"`
	CategoryIDs   []int64 `json:"category_ids"`
	TagIDs        []int64 `json:"tag_ids"`
	IsActive      bool    `json:"is_active"`
}

// CreateProductType creates an active product type with no legal attributes
func (s *CatalogService) CreateProductType(ctx context.Context, name string) (*models.ProductType, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProductType")

	var created models.ProductType
	err := s.store.RunInTx(ctx, "create_product_type", func(tx store.Tx) error {
		subject := &validation.Subject{Kind: models.KindProductType, Name: strings.TrimSpace(name), IsActive: true}
		if err := s.namePipeline(tx, subject).Validate(ctx, subject); err != nil {
			return err
		}
		pt := &models.ProductType{Name: subject.Name, Slug: subject.Slug, IsActive: true}
		if err := tx.InsertProductType(ctx, pt); err != nil {
			return err
		}
		created = *pt
		return nil
	})
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("create_product_type", err, zap.String("name", name))
		return nil, err
	}
	s.created(ctx, models.KindProductType, created.ID, created.Slug)
	return &created, nil
}

// CreateTag creates an active tag
func (s *CatalogService) CreateTag(ctx context.Context, name string) (*models.Tag, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateTag")

	var created models.Tag
	err := s.store.RunInTx(ctx, "create_tag", func(tx store.Tx) error {
		subject := &validation.Subject{Kind: models.KindTag, Name: strings.TrimSpace(name), IsActive: true}
		if err := s.namePipeline(tx, subject).Validate(ctx, subject); err != nil {
			return err
		}
		tag := &models.Tag{Name: subject.Name, Slug: subject.Slug, IsActive: true}
		if err := tx.InsertTag(ctx, tag); err != nil {
			return err
		}
		created = *tag
		return nil
	})
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("create_tag", err, zap.String("name", name))
		return nil, err
	}
	s.created(ctx, models.KindTag, created.ID, created.Slug)
	return &created, nil
}

// CreateAttribute creates an active attribute and makes it legal for req.ProductTypeIDs
func (s *CatalogService) CreateAttribute(ctx context.Context, req *CreateAttributeRequest) (*models.Attribute, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateAttribute")

	var created models.Attribute
	err := s.store.RunInTx(ctx, "create_attribute", func(tx store.Tx) error {
		subject := &validation.Subject{Kind: models.KindAttribute, Name: strings.TrimSpace(req.Name), IsActive: true}
		if err := s.namePipeline(tx, subject).Validate(ctx, subject); err != nil {
			return err
		}
		a := &models.Attribute{
			Name:         subject.Name,
			Slug:         subject.Slug,
			Description:  req.Description,
			IsFilterable: req.IsFilterable,
			IsActive:     true,
		}
		if err := tx.InsertAttribute(ctx, a); err != nil {
			return err
		}
		for _, ptID := range req.ProductTypeIDs {
			if err := schema.Link(ctx, tx, ptID, a.ID); err != nil {
				return err
			}
		}
		created = *a
		return nil
	})
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("create_attribute", err, zap.String("name", req.Name))
		return nil, err
	}
	s.created(ctx, models.KindAttribute, created.ID, created.Slug)
	for _, ptID := range req.ProductTypeIDs {
		s.schemaChanged(ctx, ptID, created.ID, true)
	}
	return &created, nil
}

// CreateAttributeValue adds a value to an attribute. Values are unique per attribute
// and the slug is derived from the value.
func (s *CatalogService) CreateAttributeValue(ctx context.Context, attributeID int64, value string) (*models.AttributeValue, error) {
	ctx, span := util.StartEntitySpan(ctx, "CatalogService.CreateAttributeValue", string(models.KindAttribute), attributeID)

	var created models.AttributeValue
	err := s.store.RunInTx(ctx, "create_attribute_value", func(tx store.Tx) error {
		if _, err := tx.GetAttribute(ctx, attributeID); err != nil {
			return err
		}
		value := strings.TrimSpace(value)
		if err := uniqueValue(ctx, tx, attributeID, value); err != nil {
			return err
		}

		subject := &validation.Subject{Kind: models.KindAttributeValue, Name: value, IsActive: true}
		if err := s.namePipeline(tx, subject).Validate(ctx, subject); err != nil {
			return err
		}
		v := &models.AttributeValue{AttributeID: attributeID, Value: value, Slug: subject.Slug, IsActive: true}
		if err := tx.InsertAttributeValue(ctx, v); err != nil {
			return err
		}
		created = *v
		return nil
	})
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("create_attribute_value", err, zap.Int64("attribute_id", attributeID))
		return nil, err
	}
	s.created(ctx, models.KindAttributeValue, created.ID, created.Slug)
	return &created, nil
}

// CreateProduct creates a product linked to its categories and tags.
// An active product requires a product type.
func (s *CatalogService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")

	var created models.Product
	err := s.store.RunInTx(ctx, "create_product", func(tx store.Tx) error {
		subject := &validation.Subject{
			Kind:          models.KindProduct,
			Name:          strings.TrimSpace(req.Name),
			IsActive:      req.IsActive,
			ProductTypeID: req.ProductTypeID,
		}
		p := append(validation.Pipeline{validation.ProductTypeRequired()}, s.namePipeline(tx, subject)...)
		if err := p.Validate(ctx, subject); err != nil {
			return err
		}
		// a concurrent deactivation of the product type has to see this product
		if req.ProductTypeID != nil {
			if _, err := tx.TouchNamed(ctx, models.KindProductType, *req.ProductTypeID); err != nil {
				return err
			}
		}

		product := &models.Product{
			Name:          subject.Name,
			Slug:          subject.Slug,
			Description:   req.Description,
			ProductTypeID: req.ProductTypeID,
			IsActive:      req.IsActive,
			CategoryIDs:   req.CategoryIDs,
			TagIDs:        req.TagIDs,
		}
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		created = *product
		return nil
	})
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("create_product", err, zap.String("name", req.Name))
		return nil, err
	}
	s.created(ctx, models.KindProduct, created.ID, created.Slug)
	return &created, nil
}

// RenameEntity changes the slug source field of an entity and regenerates its slug.
// Renaming to the current name keeps the current slug.
func (s *CatalogService) RenameEntity(ctx context.Context, kind models.EntityKind, id int64, newName string) (*models.Named, error) {
	ctx, span := util.StartEntitySpan(ctx, "CatalogService.RenameEntity", string(kind), id)

	if !kind.Slugged() {
		err := invalidKind(kind)
		util.EndSpan(span, err)
		return nil, err
	}

	var renamed models.Named
	changed := false
	err := s.store.RunInTx(ctx, "rename_"+string(kind), func(tx store.Tx) error {
		changed = false
		newName := strings.TrimSpace(newName)

		current, err := tx.LockNamed(ctx, kind, id)
		if err != nil {
			return err
		}
		if current.Name == newName {
			renamed = *current
			return nil
		}

		if kind == models.KindAttributeValue {
			v, err := tx.GetAttributeValue(ctx, id)
			if err != nil {
				return err
			}
			if err := uniqueValue(ctx, tx, v.AttributeID, newName); err != nil {
				return err
			}
		}

		subject := &validation.Subject{Kind: kind, ID: id, Name: newName, IsActive: current.IsActive}
		if err := s.namePipeline(tx, subject).Validate(ctx, subject); err != nil {
			return err
		}
		if err := tx.UpdateName(ctx, kind, id, subject.Name, subject.Slug); err != nil {
			return err
		}
		renamed = *current
		renamed.Name, renamed.Slug = subject.Name, subject.Slug
		changed = true
		return nil
	})
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("rename_entity", err, zap.String("kind", string(kind)), zap.Int64("id", id))
		return nil, err
	}
	renamed.Kind = kind
	if changed {
		s.logger.Info("Entity renamed",
			zap.String("kind", string(kind)),
			zap.Int64("id", id),
			zap.String("slug", renamed.Slug))
		s.publishEntity(ctx, models.EventTypeEntityRenamed, kind, id, renamed.Slug)
	}
	return &renamed, nil
}

// DeactivateEntity deactivates an entity that no active dependent refers to.
// Deactivating an inactive entity succeeds without change.
func (s *CatalogService) DeactivateEntity(ctx context.Context, kind models.EntityKind, id int64) error {
	if kind == models.KindCategory {
		return s.DeactivateCategory(ctx, id)
	}
	ctx, span := util.StartEntitySpan(ctx, "CatalogService.DeactivateEntity", string(kind), id)

	if !kind.Valid() {
		err := invalidKind(kind)
		util.EndSpan(span, err)
		return err
	}

	changed := false
	err := s.store.RunInTx(ctx, "deactivate_"+string(kind), func(tx store.Tx) error {
		changed = false
		current, err := tx.LockNamed(ctx, kind, id)
		if err != nil {
			return err
		}
		if !current.IsActive {
			return nil
		}

		subject := &validation.Subject{Kind: kind, ID: id, Name: current.Name}
		if err := s.guard.Validator(tx.CountActiveDependents).Validate(ctx, subject); err != nil {
			return err
		}
		changed = true
		return tx.SetActive(ctx, kind, id, false)
	})
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("deactivate_entity", err, zap.String("kind", string(kind)), zap.Int64("id", id))
		return err
	}
	if changed {
		s.logger.Info("Entity deactivated", zap.String("kind", string(kind)), zap.Int64("id", id))
		s.publishEntity(ctx, models.EventTypeEntityDeactivated, kind, id, "")
	}
	return nil
}

// ActivateEntity re-activates an entity. A product cannot become active without a
// product type; a category may be activated under an inactive parent.
func (s *CatalogService) ActivateEntity(ctx context.Context, kind models.EntityKind, id int64) error {
	ctx, span := util.StartEntitySpan(ctx, "CatalogService.ActivateEntity", string(kind), id)

	if !kind.Valid() {
		err := invalidKind(kind)
		util.EndSpan(span, err)
		return err
	}

	changed := false
	err := s.store.RunInTx(ctx, "activate_"+string(kind), func(tx store.Tx) error {
		changed = false
		var (
			current *models.Named
			err     error
		)
		if kind == models.KindCategory {
			var c *models.Category
			if c, err = tree.New(tx).Lock(ctx, id); err != nil {
				return err
			}
			current = &models.Named{Kind: kind, ID: c.ID, Name: c.Name, Slug: c.Slug, IsActive: c.IsActive}
		} else if current, err = tx.LockNamed(ctx, kind, id); err != nil {
			return err
		}
		if current.IsActive {
			return nil
		}

		if kind == models.KindProduct {
			p, err := tx.GetProduct(ctx, id)
			if err != nil {
				return err
			}
			subject := &validation.Subject{Kind: kind, ID: id, IsActive: true, ProductTypeID: p.ProductTypeID}
			if err := validation.ProductTypeRequired().Validate(ctx, subject); err != nil {
				return err
			}
		}
		if err := touchParents(ctx, tx, kind, id); err != nil {
			return err
		}
		changed = true
		return tx.SetActive(ctx, kind, id, true)
	})
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe("activate_entity", err, zap.String("kind", string(kind)), zap.Int64("id", id))
		return err
	}
	if changed {
		s.logger.Info("Entity activated", zap.String("kind", string(kind)), zap.Int64("id", id))
		s.publishEntity(ctx, models.EventTypeEntityActivated, kind, id, "")
	}
	return nil
}

// LinkAttribute makes attributeID legal for the variants of productTypeID's products
func (s *CatalogService) LinkAttribute(ctx context.Context, productTypeID, attributeID int64) error {
	return s.changeSchema(ctx, productTypeID, attributeID, true)
}

// UnlinkAttribute removes attributeID from productTypeID's legal set.
// Values variants already hold are kept.
func (s *CatalogService) UnlinkAttribute(ctx context.Context, productTypeID, attributeID int64) error {
	return s.changeSchema(ctx, productTypeID, attributeID, false)
}

// IsLegal reports whether attributeID is legal for productTypeID
func (s *CatalogService) IsLegal(ctx context.Context, productTypeID, attributeID int64) (bool, error) {
	ctx, span := util.StartEntitySpan(ctx, "CatalogService.IsLegal", string(models.KindProductType), productTypeID)

	var legal bool
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		legal, err = s.schema.IsLegal(ctx, tx, productTypeID, attributeID)
		return err
	})
	util.EndSpan(span, err)
	return legal, err
}

func (s *CatalogService) changeSchema(ctx context.Context, productTypeID, attributeID int64, link bool) error {
	op := "unlink_attribute"
	if link {
		op = "link_attribute"
	}
	ctx, span := util.StartEntitySpan(ctx, "CatalogService."+op, string(models.KindProductType), productTypeID)

	err := s.store.RunInTx(ctx, op, func(tx store.Tx) error {
		if link {
			return schema.Link(ctx, tx, productTypeID, attributeID)
		}
		return schema.Unlink(ctx, tx, productTypeID, attributeID)
	})
	defer util.EndSpan(span, err)

	if err != nil {
		s.observe(op, err, zap.Int64("product_type_id", productTypeID), zap.Int64("attribute_id", attributeID))
		return err
	}
	s.logger.Info("Attribute schema changed",
		zap.Int64("product_type_id", productTypeID),
		zap.Int64("attribute_id", attributeID),
		zap.Bool("linked", link))
	s.schemaChanged(ctx, productTypeID, attributeID, link)
	return nil
}

// schemaChanged drops the local cache entry and tells other instances to do the same
func (s *CatalogService) schemaChanged(ctx context.Context, productTypeID, attributeID int64, linked bool) {
	if err := s.schema.Invalidate(ctx, productTypeID); err != nil {
		s.logger.Warn("Failed to invalidate schema cache",
			zap.Int64("product_type_id", productTypeID),
			zap.Error(err))
	}
	s.publish(ctx, &models.SchemaChangedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeSchemaChanged),
		ProductTypeID: productTypeID,
		AttributeID:   attributeID,
		Linked:        linked,
	})
}

func (s *CatalogService) created(ctx context.Context, kind models.EntityKind, id int64, slugValue string) {
	util.EntitiesCreatedTotal.WithLabelValues(string(kind)).Inc()
	s.logger.Info("Entity created",
		zap.String("kind", string(kind)),
		zap.Int64("id", id),
		zap.String("slug", slugValue))
	s.publishEntity(ctx, models.EventTypeEntityCreated, kind, id, slugValue)
}

func uniqueValue(ctx context.Context, tx store.Tx, attributeID int64, value string) error {
	taken, err := tx.AttributeValueExists(ctx, attributeID, value)
	if err != nil {
		return fmt.Errorf("failed to check attribute value: %w", err)
	}
	if taken {
		return &models.InvalidFieldError{
			Field:  "value",
			Reason: fmt.Sprintf("attribute %d already has value %q", attributeID, value),
		}
	}
	return nil
}

// touchParents writes the rows an active (kind, id) counts as a dependent of,
// so that their concurrent deactivation conflicts with the activation
func touchParents(ctx context.Context, tx store.Tx, kind models.EntityKind, id int64) error {
	switch kind {
	case models.KindProduct:
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if p.ProductTypeID != nil {
			_, err = tx.TouchNamed(ctx, models.KindProductType, *p.ProductTypeID)
		}
		return err
	case models.KindProductVariant:
		v, err := tx.GetVariant(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.TouchNamed(ctx, models.KindProduct, v.ProductID); err != nil {
			return err
		}
		values, err := tx.VariantAttributeValues(ctx, id)
		if err != nil {
			return err
		}
		for _, av := range values {
			if _, err := tx.TouchNamed(ctx, models.KindAttribute, av.AttributeID); err != nil {
				return err
			}
			if _, err := tx.TouchNamed(ctx, models.KindAttributeValue, av.AttributeValueID); err != nil {
				return err
			}
		}
	}
	return nil
}
