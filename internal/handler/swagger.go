package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dafibh/fortuna/fortuna-budget/docs"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/swaggo/swag"
)

// OpenAPI3Spec is the subset of an OpenAPI 3.0 document served at /openapi.json
type OpenAPI3Spec struct {
	OpenAPI    string                 `json:"openapi"`
	Info       map[string]interface{} `json:"info"`
	Servers    []Server               `json:"servers"`
	Paths      map[string]interface{} `json:"paths"`
	Components map[string]interface{} `json:"components,omitempty"`
}

// Server represents an OpenAPI 3.0 server
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

var schemaFields = []string{"type", "format", "enum", "default", "minimum", "maximum", "items"}

// rewriteRefs points swagger 2 definition refs at OpenAPI 3 component schemas
func rewriteRefs(node interface{}) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if ref, ok := value.(string); ok && key == "$ref" {
				out[key] = strings.Replace(ref, "#/definitions/", "#/components/schemas/", 1)
				continue
			}
			out[key] = rewriteRefs(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = rewriteRefs(item)
		}
		return out
	default:
		return node
	}
}

// convertOperation moves body and formData parameters into a requestBody and wraps
// response schemas in JSON content
func convertOperation(op map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(op))
	for key, value := range op {
		switch key {
		case "parameters", "responses", "consumes", "produces":
		default:
			out[key] = rewriteRefs(value)
		}
	}

	var params []interface{}
	formProps := map[string]interface{}{}
	var formRequired []string
	rawParams, _ := op["parameters"].([]interface{})
	for _, raw := range rawParams {
		param, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		switch param["in"] {
		case "body":
			out["requestBody"] = map[string]interface{}{
				"required": param["required"] == true,
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{"schema": rewriteRefs(param["schema"])},
				},
			}
		case "formData":
			name, _ := param["name"].(string)
			prop := map[string]interface{}{"type": param["type"]}
			if param["type"] == "file" {
				prop = map[string]interface{}{"type": "string", "format": "binary"}
			}
			formProps[name] = prop
			if param["required"] == true {
				formRequired = append(formRequired, name)
			}
		default:
			params = append(params, convertParameter(param))
		}
	}
	if len(params) > 0 {
		out["parameters"] = params
	}
	if len(formProps) > 0 {
		schema := map[string]interface{}{"type": "object", "properties": formProps}
		if len(formRequired) > 0 {
			schema["required"] = formRequired
		}
		out["requestBody"] = map[string]interface{}{
			"content": map[string]interface{}{
				"multipart/form-data": map[string]interface{}{"schema": schema},
			},
		}
	}

	if responses, ok := op["responses"].(map[string]interface{}); ok {
		converted := make(map[string]interface{}, len(responses))
		for code, raw := range responses {
			resp, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			r := map[string]interface{}{"description": resp["description"]}
			if schema, ok := resp["schema"]; ok {
				r["content"] = map[string]interface{}{
					"application/json": map[string]interface{}{"schema": rewriteRefs(schema)},
				}
			}
			converted[code] = r
		}
		out["responses"] = converted
	}
	return out
}

// convertParameter nests the type fields of a path or query parameter under schema
func convertParameter(param map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, field := range []string{"name", "in", "description", "required"} {
		if val, ok := param[field]; ok {
			out[field] = val
		}
	}
	schema := make(map[string]interface{})
	for _, field := range schemaFields {
		if val, ok := param[field]; ok {
			schema[field] = rewriteRefs(val)
		}
	}
	if len(schema) > 0 {
		out["schema"] = schema
	}
	return out
}

// convertSwagger2 builds an OpenAPI 3.0 document from a swag-generated swagger 2.0 one
func convertSwagger2(swagger2 map[string]interface{}, servers []Server) OpenAPI3Spec {
	info, _ := swagger2["info"].(map[string]interface{})

	paths := make(map[string]interface{})
	rawPaths, _ := swagger2["paths"].(map[string]interface{})
	for path, rawItem := range rawPaths {
		item, ok := rawItem.(map[string]interface{})
		if !ok {
			continue
		}
		methods := make(map[string]interface{}, len(item))
		for method, rawOp := range item {
			if op, ok := rawOp.(map[string]interface{}); ok {
				methods[method] = convertOperation(op)
			}
		}
		paths[path] = methods
	}

	components := make(map[string]interface{})
	if secDefs, ok := swagger2["securityDefinitions"].(map[string]interface{}); ok {
		components["securitySchemes"] = secDefs
	}
	if definitions, ok := swagger2["definitions"].(map[string]interface{}); ok {
		components["schemas"] = rewriteRefs(definitions)
	}

	return OpenAPI3Spec{
		OpenAPI:    "3.0.3",
		Info:       info,
		Servers:    servers,
		Paths:      paths,
		Components: components,
	}
}

// openAPIServers lists the API base of the serving host first, then local development
func openAPIServers(c echo.Context) []Server {
	servers := []Server{}
	if host := c.Request().Host; host != "" {
		servers = append(servers, Server{
			URL:         c.Scheme() + "://" + host + docs.SwaggerInfo.BasePath,
			Description: "Current host",
		})
	}
	return append(servers, Server{
		URL:         "http://localhost:8080" + docs.SwaggerInfo.BasePath,
		Description: "Local Development",
	})
}

// ServeOpenAPI3Spec godoc
// @Summary OpenAPI 3 document
// @Tags system
// @Produce json
// @Success 200 {object} OpenAPI3Spec
// @Router /openapi.json [get]
func ServeOpenAPI3Spec(c echo.Context) error {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read swagger doc")
		return NewInternalError(c, "Failed to read API documentation")
	}

	var swagger2 map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &swagger2); err != nil {
		log.Error().Err(err).Msg("Failed to parse swagger doc")
		return NewInternalError(c, "Failed to parse API documentation")
	}

	return c.JSON(http.StatusOK, convertSwagger2(swagger2, openAPIServers(c)))
}
