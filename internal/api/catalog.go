package api

import (
	"context"
	"net/http"
	"strconv"

	"catalog-service/internal/models"
	"catalog-service/internal/service"

	"github.com/gin-gonic/gin"
)

type createCategoryRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID *int64 `json:"parent_id"`
}

type moveCategoryRequest struct {
	// ParentID nil makes the category a root
	ParentID *int64 `json:"parent_id"`
}

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

type attributeValueRequest struct {
	Value string `json:"value" binding:"required"`
}

type assignRequest struct {
	AttributeValueID int64                 `json:"attribute_value_id" binding:"required"`
	OnConflict       models.ConflictPolicy `json:"on_conflict"`
}

func (h *Handler) createCategory(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), req.Name, req.ParentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) getCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	category, err := h.catalog.GetCategory(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) moveCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req moveCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	category, err := h.catalog.MoveCategory(c.Request.Context(), id, req.ParentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) children(c *gin.Context) {
	h.categoryList(c, h.catalog.Children)
}

func (h *Handler) descendants(c *gin.Context) {
	h.categoryList(c, h.catalog.Descendants)
}

func (h *Handler) ancestors(c *gin.Context) {
	h.categoryList(c, h.catalog.Ancestors)
}

func (h *Handler) categoryList(c *gin.Context, query func(ctx context.Context, id int64) ([]models.Category, error)) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	categories, err := query(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) createProductType(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	pt, err := h.catalog.CreateProductType(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pt)
}

func (h *Handler) createTag(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	tag, err := h.catalog.CreateTag(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (h *Handler) createAttribute(c *gin.Context) {
	var req service.CreateAttributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	attr, err := h.catalog.CreateAttribute(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attr)
}

func (h *Handler) createAttributeValue(c *gin.Context) {
	attributeID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req attributeValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	value, err := h.catalog.CreateAttributeValue(c.Request.Context(), attributeID, req.Value)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, value)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) createVariant(c *gin.Context) {
	var req service.CreateVariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	variant, err := h.catalog.CreateVariant(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, variant)
}

func (h *Handler) schemaPair(c *gin.Context) (productTypeID, attributeID int64, ok bool) {
	if productTypeID, ok = idParam(c, "id"); !ok {
		return 0, 0, false
	}
	if attributeID, ok = idParam(c, "attribute_id"); !ok {
		return 0, 0, false
	}
	return productTypeID, attributeID, true
}

func (h *Handler) isLegal(c *gin.Context) {
	productTypeID, attributeID, ok := h.schemaPair(c)
	if !ok {
		return
	}

	legal, err := h.catalog.IsLegal(c.Request.Context(), productTypeID, attributeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_type_id": productTypeID,
		"attribute_id":    attributeID,
		"legal":           legal,
	})
}

func (h *Handler) linkAttribute(c *gin.Context) {
	productTypeID, attributeID, ok := h.schemaPair(c)
	if !ok {
		return
	}
	if err := h.catalog.LinkAttribute(c.Request.Context(), productTypeID, attributeID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) unlinkAttribute(c *gin.Context) {
	productTypeID, attributeID, ok := h.schemaPair(c)
	if !ok {
		return
	}
	if err := h.catalog.UnlinkAttribute(c.Request.Context(), productTypeID, attributeID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) assignVariantAttribute(c *gin.Context) {
	variantID, ok := idParam(c, "id")
	if !ok {
		return
	}
	attributeID, ok := idParam(c, "attribute_id")
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	result, err := h.catalog.AssignVariantAttribute(c.Request.Context(), variantID, attributeID, req.AttributeValueID, req.OnConflict)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) variantAttributeValues(c *gin.Context) {
	variantID, ok := idParam(c, "id")
	if !ok {
		return
	}

	values, err := h.catalog.VariantAttributeValues(c.Request.Context(), variantID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"values": values})
}

func (h *Handler) renameEntity(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	named, err := h.catalog.RenameEntity(c.Request.Context(), kind, id, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, named)
}

func (h *Handler) activateEntity(c *gin.Context) {
	h.setActive(c, h.catalog.ActivateEntity)
}

func (h *Handler) deactivateEntity(c *gin.Context) {
	h.setActive(c, h.catalog.DeactivateEntity)
}

func (h *Handler) setActive(c *gin.Context, op func(ctx context.Context, kind models.EntityKind, id int64) error) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := op(c.Request.Context(), kind, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// generateSlug previews the slug a record would get, without reserving it
func (h *Handler) generateSlug(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var excludeID *int64
	if raw := c.Query("exclude_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "Invalid exclude_id", err)
			return
		}
		excludeID = &id
	}

	generated, err := h.catalog.GenerateSlug(c.Request.Context(), kind, c.Query("name"), excludeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "slug": generated})
}
