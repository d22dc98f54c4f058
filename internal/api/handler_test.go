package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"catalog-service/internal/models"
	"catalog-service/internal/service"
	"catalog-service/internal/store/memstore"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(service.NewCatalogService(memstore.New(3), nil, nil)).SetupRoutes(router)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func path(parts ...interface{}) string {
	var b bytes.Buffer
	b.WriteString("/api/v1")
	for _, p := range parts {
		b.WriteByte('/')
		switch v := p.(type) {
		case int64:
			b.WriteString(strconv.FormatInt(v, 10))
		case string:
			b.WriteString(v)
		}
	}
	return b.String()
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCategoryEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, path("categories"), gin.H{"name": "Electronics"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var electronics models.Category
	decode(t, w, &electronics)
	assert.Equal(t, "electronics", electronics.Slug)

	w = do(t, router, http.MethodPost, path("categories"), gin.H{"name": "Phones", "parent_id": electronics.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var phones models.Category
	decode(t, w, &phones)

	w = do(t, router, http.MethodGet, path("categories", electronics.ID, "children"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Categories []models.Category `json:"categories"`
	}
	decode(t, w, &list)
	require.Len(t, list.Categories, 1)
	assert.Equal(t, phones.ID, list.Categories[0].ID)

	w = do(t, router, http.MethodPost, path("categories", electronics.ID, "move"), gin.H{"parent_id": phones.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "cycle", body["code"])

	w = do(t, router, http.MethodPost, path("entities", "category", electronics.ID, "deactivate"), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	decode(t, w, &body)
	assert.Equal(t, string(models.RelationChildCategories), body["reason"])
	assert.EqualValues(t, 1, body["blocking_count"])

	w = do(t, router, http.MethodPost, path("categories", phones.ID, "move"), gin.H{"parent_id": nil})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var moved models.Category
	decode(t, w, &moved)
	assert.Nil(t, moved.ParentID)
	assert.NotEqual(t, electronics.TreeID, moved.TreeID)

	w = do(t, router, http.MethodGet, path("trees", moved.TreeID, "verify"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Equal(t, true, body["valid"])

	w = do(t, router, http.MethodGet, path("categories", int64(999)), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, path("categories", "abc"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVariantAssignmentEndpoints(t *testing.T) {
	router := newTestRouter(t)

	var pt models.ProductType
	w := do(t, router, http.MethodPost, path("product-types"), gin.H{"name": "Shoes"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &pt)

	var size, color models.Attribute
	w = do(t, router, http.MethodPost, path("attributes"), gin.H{"name": "Size", "product_type_ids": []int64{pt.ID}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &size)
	w = do(t, router, http.MethodPost, path("attributes"), gin.H{"name": "Color"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &color)

	var s42, s43, red models.AttributeValue
	decode(t, do(t, router, http.MethodPost, path("attributes", size.ID, "values"), gin.H{"value": "42"}), &s42)
	decode(t, do(t, router, http.MethodPost, path("attributes", size.ID, "values"), gin.H{"value": "43"}), &s43)
	decode(t, do(t, router, http.MethodPost, path("attributes", color.ID, "values"), gin.H{"value": "Red"}), &red)

	var product models.Product
	w = do(t, router, http.MethodPost, path("products"), gin.H{"name": "Runner", "product_type_id": pt.ID, "is_active": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &product)

	var variant models.ProductVariant
	w = do(t, router, http.MethodPost, path("variants"), gin.H{"product_id": product.ID, "sku": "RUN-42", "price": "89.90", "stock": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &variant)

	assign := func(attributeID, valueID int64, policy string) *httptest.ResponseRecorder {
		return do(t, router, http.MethodPut, path("variants", variant.ID, "attributes", attributeID),
			gin.H{"attribute_value_id": valueID, "on_conflict": policy})
	}

	w = assign(color.ID, red.ID, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = assign(size.ID, s42.ID, "reject")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = assign(size.ID, s43.ID, "reject")
	assert.Equal(t, http.StatusConflict, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.EqualValues(t, s42.ID, body["existing_value_id"])

	w = assign(size.ID, s43.ID, "replace")
	require.Equal(t, http.StatusOK, w.Code)
	var result service.AssignResult
	decode(t, w, &result)
	assert.True(t, result.Replaced)

	w = do(t, router, http.MethodPut, path("product-types", pt.ID, "attributes", color.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodGet, path("product-types", pt.ID, "attributes", color.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Equal(t, true, body["legal"])

	w = do(t, router, http.MethodPost, path("variants"), gin.H{"product_id": product.ID, "sku": "RUN-43", "price": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEntityEndpoints(t *testing.T) {
	router := newTestRouter(t)

	var tag models.Tag
	w := do(t, router, http.MethodPost, path("tags"), gin.H{"name": "Summer Sale"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &tag)

	w = do(t, router, http.MethodGet, path("slugs", "tag")+"?name=Summer%20Sale", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "summer-sale-1", body["slug"])

	w = do(t, router, http.MethodPatch, path("entities", "tag", tag.ID), gin.H{"name": "Summer Deals"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var named models.Named
	decode(t, w, &named)
	assert.Equal(t, "summer-deals", named.Slug)

	w = do(t, router, http.MethodPost, path("entities", "tag", tag.ID, "deactivate"), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodPost, path("entities", "tag", tag.ID, "activate"), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodPost, path("entities", "warehouse", int64(1), "activate"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, path("tags"), gin.H{"name": "ab"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	decode(t, w, &body)
	assert.Equal(t, "invalid_field", body["code"])

	w = do(t, router, http.MethodPost, path("tags"), gin.H{"name": strings.Repeat("x", 80)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	decode(t, w, &body)
	assert.Equal(t, "invalid_field", body["code"])
}
