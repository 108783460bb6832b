package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the terminal API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>smartbar terminal API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the terminal endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "smartbar-terminal", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Sign the operator in (password grant or authorization code exchange)",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string","enum":["password","auth_code"]},"username":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "tokens and resolved identity" }, "202": { "description": "signed in, profile still resolving" }, "401": { "description": "authentication failed" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Refresh the cached session", "responses": { "200": { "description": "new access token" }, "401": { "description": "no session or refresh rejected" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Sign out and revoke the access token", "responses": { "200": { "description": "logged out" } } }
    },
    "/api/v1/session": {
      "get": { "summary": "Current identity state", "responses": { "200": { "description": "state, role and display name" } } }
    },
    "/api/v1/shifts/current": {
      "get": { "summary": "Open shift or null", "security": [{"bearer": []}], "responses": { "200": { "description": "shift" } } }
    },
    "/api/v1/shifts/open": {
      "post": {
        "summary": "Open a shift",
        "security": [{"bearer": []}],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"operator":{"type":"string"},"initialBalance":{"type":"number"}}}}}},
        "responses": { "201": { "description": "opened" }, "409": { "description": "a shift is already open" } }
      }
    },
    "/api/v1/shifts/close": {
      "post": {
        "summary": "Close the open shift",
        "security": [{"bearer": []}],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"operator":{"type":"string"},"finalBalance":{"type":"number"},"notes":{"type":"string"}}}}}},
        "responses": { "200": { "description": "closed shift, difference and severity" }, "409": { "description": "no open shift" }, "500": { "description": "close not persisted; shift stays open" } }
      }
    },
    "/api/v1/shifts/transactions": {
      "post": {
        "summary": "Record a sale or expense",
        "security": [{"bearer": []}],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"type":{"type":"string","enum":["sale","expense"]},"amount":{"type":"number"}}}}}},
        "responses": { "201": { "description": "recorded" } }
      }
    },
    "/api/v1/shifts/{id}/report": {
      "get": { "summary": "Download link of an archived closing report", "security": [{"bearer": []}], "responses": { "200": { "description": "presigned url" }, "404": { "description": "unknown shift" } } }
    },
    "/api/v1/telemetry": {
      "post": { "summary": "Report client diagnostic events", "responses": { "202": { "description": "queued" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  },
  "components": { "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } } }
}`
