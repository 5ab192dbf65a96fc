package handlers

import (
	"net/http"
)

type object = map[string]interface{}

func queryParam(name, description string, schema object) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      schema,
	}
}

func paginationParams() []object {
	return []object{
		queryParam("page", "Page number, at least 1 (default: 1)",
			object{"type": "integer", "minimum": 1, "default": 1}),
		queryParam("pageSize", "Rows per page, values above 1000 are clamped (default: 100)",
			object{"type": "integer", "minimum": 1, "maximum": 1000, "default": 100}),
	}
}

func nullable(typ string) object {
	return object{"type": typ, "nullable": true}
}

func jsonContent(schema object) object {
	return object{"application/json": object{"schema": schema}}
}

func pageSchema(itemRef string) object {
	return object{
		"type": "object",
		"properties": object{
			"data":       object{"type": "array", "items": object{"$ref": itemRef}},
			"pagination": object{"$ref": "#/components/schemas/Pagination"},
			"query_time": object{"type": "string", "format": "date-time"},
		},
	}
}

func errorResponses() object {
	errRef := jsonContent(object{"$ref": "#/components/schemas/Error"})
	return object{
		"400": object{"description": "Invalid parameter", "content": errRef},
		"500": object{"description": "Internal error", "content": errRef},
		"503": object{"description": "Data store unavailable", "content": errRef},
	}
}

func withSuccess(responses object, description string, schema object) object {
	responses["200"] = object{"description": description, "content": jsonContent(schema)}
	return responses
}

// openAPIDocument builds the OpenAPI 3 document describing the query API
func openAPIDocument(version string) object {
	return object{
		"openapi": "3.0.3",
		"info": object{
			"title":       "Station Climate API",
			"description": "Daily station weather records and derived annual statistics",
			"version":     version,
		},
		"paths": object{
			PathRecords: object{
				"get": object{
					"summary": "List weather records",
					"parameters": append([]object{
						queryParam("station_id", "Exact station id", object{"type": "string"}),
						queryParam("date", "Exact date (YYYY-MM-DD)", object{"type": "string", "format": "date"}),
					}, paginationParams()...),
					"responses": withSuccess(errorResponses(), "One page of weather records",
						pageSchema("#/components/schemas/WeatherRecord")),
				},
			},
			PathStats: object{
				"get": object{
					"summary": "List annual statistics",
					"parameters": append([]object{
						queryParam("station_id", "Exact station id", object{"type": "string"}),
						queryParam("year", "Exact year", object{"type": "integer"}),
					}, paginationParams()...),
					"responses": withSuccess(errorResponses(), "One page of annual statistics",
						pageSchema("#/components/schemas/AnnualStat")),
				},
			},
			PathHealth: object{
				"get": object{
					"summary": "Service and store health",
					"responses": object{
						"200": object{"description": "Healthy", "content": jsonContent(object{"$ref": "#/components/schemas/Health"})},
						"503": object{"description": "Store unreachable", "content": jsonContent(object{"$ref": "#/components/schemas/Health"})},
					},
				},
			},
		},
		"components": object{
			"schemas": object{
				"WeatherRecord": object{
					"type": "object",
					"properties": object{
						"station_id":    object{"type": "string"},
						"date":          object{"type": "string", "format": "date"},
						"max_temp":      nullable("integer"),
						"min_temp":      nullable("integer"),
						"precipitation": nullable("integer"),
					},
					"description": "Temperatures in tenths of a degree Celsius, precipitation in tenths of a millimetre",
				},
				"AnnualStat": object{
					"type": "object",
					"properties": object{
						"station_id":          object{"type": "string"},
						"year":                object{"type": "integer"},
						"avg_max_temp":        nullable("number"),
						"avg_min_temp":        nullable("number"),
						"total_precipitation": nullable("number"),
					},
					"description": "Averages in degrees Celsius, precipitation in centimetres",
				},
				"Pagination": object{
					"type": "object",
					"properties": object{
						"page":         object{"type": "integer"},
						"pageSize":     object{"type": "integer"},
						"totalPages":   object{"type": "integer"},
						"totalRecords": object{"type": "integer"},
					},
				},
				"Error": object{
					"type": "object",
					"properties": object{
						"error":   object{"type": "string"},
						"message": object{"type": "string"},
						"code":    object{"type": "integer"},
					},
				},
				"Health": object{
					"type": "object",
					"properties": object{
						"status":    object{"type": "string", "enum": []string{"healthy", "unhealthy"}},
						"service":   object{"type": "string"},
						"version":   object{"type": "string"},
						"timestamp": object{"type": "string", "format": "date-time"},
						"database":  object{"type": "string"},
					},
				},
			},
		},
	}
}

// OpenAPISpec serves GET /api/docs/openapi.json
func (h *WeatherHandler) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPIRequest(PathOpenAPI, r.Method, "200")
	h.sendJSON(w, openAPIDocument(h.version), http.StatusOK)
}
