package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/service"
	"catalog-service/internal/tree"
	"catalog-service/internal/util"
	"catalog-service/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	catalog *service.CatalogService
}

// NewHandler creates a new HTTP handler
func NewHandler(catalog *service.CatalogService) *Handler {
	return &Handler{
		catalog: catalog,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/categories", h.createCategory)
		v1.GET("/categories/:id", h.getCategory)
		v1.POST("/categories/:id/move", h.moveCategory)
		v1.GET("/categories/:id/children", h.children)
		v1.GET("/categories/:id/descendants", h.descendants)
		v1.GET("/categories/:id/ancestors", h.ancestors)
		v1.GET("/trees/:id/verify", h.verifyTree)

		v1.POST("/product-types", h.createProductType)
		v1.GET("/product-types/:id/attributes/:attribute_id", h.isLegal)
		v1.PUT("/product-types/:id/attributes/:attribute_id", h.linkAttribute)
		v1.DELETE("/product-types/:id/attributes/:attribute_id", h.unlinkAttribute)

		v1.POST("/attributes", h.createAttribute)
		v1.POST("/attributes/:id/values", h.createAttributeValue)
		v1.POST("/tags", h.createTag)
		v1.POST("/products", h.createProduct)

		v1.POST("/variants", h.createVariant)
		v1.GET("/variants/:id/attributes", h.variantAttributeValues)
		v1.PUT("/variants/:id/attributes/:attribute_id", h.assignVariantAttribute)

		v1.PATCH("/entities/:kind/:id", h.renameEntity)
		v1.POST("/entities/:kind/:id/activate", h.activateEntity)
		v1.POST("/entities/:kind/:id/deactivate", h.deactivateEntity)

		v1.GET("/slugs/:kind", h.generateSlug)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// writeError maps catalog errors to HTTP responses
func writeError(c *gin.Context, err error) {
	var (
		blocked   *models.BlockedError
		duplicate *models.DuplicateAttributeError
		conflict  *models.ConflictError
		emptyName *models.EmptyNameError
		invalid   *models.InvalidFieldError
	)

	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	switch {
	case errors.As(err, &blocked):
		status = http.StatusConflict
		body["code"] = validation.Reason(err)
		body["reason"] = blocked.Reason
		body["blocking_count"] = blocked.BlockingCount
	case errors.As(err, &duplicate):
		status = http.StatusConflict
		body["code"] = validation.Reason(err)
		body["existing_value_id"] = duplicate.ExistingValueID
	case errors.As(err, &emptyName), errors.As(err, &invalid):
		status = http.StatusBadRequest
		body["code"] = validation.Reason(err)
	case models.IsValidation(err):
		status = http.StatusUnprocessableEntity
		body["code"] = validation.Reason(err)
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
		body["code"] = "not_found"
	case errors.As(err, &conflict):
		status = http.StatusConflict
		body["code"] = "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

// idParam parses a numeric path parameter, answering 400 when it is malformed
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name, nil)
		return 0, false
	}
	return id, true
}

func kindParam(c *gin.Context) (models.EntityKind, bool) {
	kind := models.EntityKind(c.Param("kind"))
	if !kind.Valid() {
		badRequest(c, "Unknown entity kind", nil)
		return "", false
	}
	return kind, true
}

// verifyTree reports whether a tree satisfies the nested-set invariants
func (h *Handler) verifyTree(c *gin.Context) {
	treeID, ok := idParam(c, "id")
	if !ok {
		return
	}

	err := h.catalog.VerifyTree(c.Request.Context(), treeID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"tree_id": treeID, "valid": true})
	case errors.Is(err, tree.ErrCorrupt):
		c.JSON(http.StatusOK, gin.H{"tree_id": treeID, "valid": false, "violation": err.Error()})
	default:
		writeError(c, err)
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
