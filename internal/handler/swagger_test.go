package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const swagger2Fixture = `{
  "swagger": "2.0",
  "info": {"title": "Fortuna Budget API", "version": "1.0"},
  "securityDefinitions": {"BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}},
  "paths": {
    "/budgets/{id}": {
      "put": {
        "tags": ["budgets"],
        "parameters": [
          {"type": "string", "name": "id", "in": "path", "required": true},
          {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.UpdateBudgetRequest"}}
        ],
        "responses": {
          "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.BudgetResponse"}},
          "404": {"description": "Not Found"}
        }
      }
    },
    "/transactions/{id}/receipt": {
      "post": {
        "consumes": ["multipart/form-data"],
        "parameters": [
          {"type": "file", "name": "file", "in": "formData", "required": true}
        ],
        "responses": {"200": {"description": "OK"}}
      }
    }
  },
  "definitions": {
    "handler.BudgetResponse": {"type": "object", "properties": {"category": {"$ref": "#/definitions/handler.CategoryResponse"}}}
  }
}`

func convertFixture(t *testing.T) OpenAPI3Spec {
	t.Helper()
	var swagger2 map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(swagger2Fixture), &swagger2))
	return convertSwagger2(swagger2, []Server{{URL: "http://localhost:8080/api/v1", Description: "Local Development"}})
}

func operation(t *testing.T, spec OpenAPI3Spec, path, method string) map[string]interface{} {
	t.Helper()
	item, ok := spec.Paths[path].(map[string]interface{})
	require.True(t, ok, "missing path %s", path)
	op, ok := item[method].(map[string]interface{})
	require.True(t, ok, "missing %s %s", method, path)
	return op
}

func TestConvertSwagger2_BodyBecomesRequestBody(t *testing.T) {
	spec := convertFixture(t)
	assert.Equal(t, "3.0.3", spec.OpenAPI)

	op := operation(t, spec, "/budgets/{id}", "put")

	params, ok := op["parameters"].([]interface{})
	require.True(t, ok)
	require.Len(t, params, 1)
	assert.Equal(t, map[string]interface{}{
		"name":     "id",
		"in":       "path",
		"required": true,
		"schema":   map[string]interface{}{"type": "string"},
	}, params[0])

	body := op["requestBody"].(map[string]interface{})
	assert.Equal(t, true, body["required"])
	schema := body["content"].(map[string]interface{})["application/json"].(map[string]interface{})["schema"]
	assert.Equal(t, map[string]interface{}{"$ref": "#/components/schemas/handler.UpdateBudgetRequest"}, schema)

	responses := op["responses"].(map[string]interface{})
	ok200 := responses["200"].(map[string]interface{})
	assert.Contains(t, ok200, "content")
	assert.NotContains(t, responses["404"].(map[string]interface{}), "content")
}

func TestConvertSwagger2_FormDataBecomesMultipart(t *testing.T) {
	op := operation(t, convertFixture(t), "/transactions/{id}/receipt", "post")

	assert.NotContains(t, op, "parameters")
	assert.NotContains(t, op, "consumes")

	content := op["requestBody"].(map[string]interface{})["content"].(map[string]interface{})
	schema := content["multipart/form-data"].(map[string]interface{})["schema"].(map[string]interface{})
	assert.Equal(t, []string{"file"}, schema["required"])
	assert.Equal(t, map[string]interface{}{"type": "string", "format": "binary"},
		schema["properties"].(map[string]interface{})["file"])
}

func TestConvertSwagger2_Components(t *testing.T) {
	spec := convertFixture(t)

	assert.Contains(t, spec.Components["securitySchemes"], "BearerAuth")
	schemas := spec.Components["schemas"].(map[string]interface{})
	budget := schemas["handler.BudgetResponse"].(map[string]interface{})
	category := budget["properties"].(map[string]interface{})["category"]
	assert.Equal(t, map[string]interface{}{"$ref": "#/components/schemas/handler.CategoryResponse"}, category)
}

func TestServeOpenAPI3Spec(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, ServeOpenAPI3Spec(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var spec OpenAPI3Spec
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	assert.Equal(t, "3.0.3", spec.OpenAPI)
	assert.Equal(t, "http://example.com/api/v1", spec.Servers[0].URL)
	assert.Contains(t, spec.Paths, "/budgets/check")
}
