// Package docs registers the swagger document served under /swagger.
// Regenerate with `swag init -g cmd/server/main.go` after changing handler
// annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "{{.Title}}",
    "description": "{{escape .Description}}",
    "version": "{{.Version}}"
  },
  "basePath": "{{.BasePath}}",
  "securityDefinitions": {
    "UserID": {"type": "apiKey", "in": "header", "name": "X-User-Id"},
    "BotKey": {"type": "apiKey", "in": "header", "name": "X-Bot-Key"}
  },
  "paths": {
    "/healthz": {"get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}, "503": {"description": "Store unavailable"}}}},
    "/api/tickets": {
      "get": {"tags": ["tickets"], "summary": "List tickets", "security": [{"UserID": []}], "responses": {"200": {"description": "OK"}}},
      "post": {"tags": ["tickets"], "summary": "Create ticket", "security": [{"UserID": []}], "responses": {"201": {"description": "Created"}, "400": {"description": "Validation error"}}}
    },
    "/api/tickets/{id}": {
      "put": {"tags": ["tickets"], "summary": "Update ticket", "security": [{"UserID": []}], "responses": {"200": {"description": "OK"}, "409": {"description": "Ticket taken or completed"}}}
    },
    "/api/tickets/{id}/claim": {
      "post": {"tags": ["tickets"], "summary": "Claim ticket", "security": [{"UserID": []}], "responses": {"200": {"description": "OK"}, "409": {"description": "Ticket already taken"}}}
    },
    "/api/tickets/{id}/comments": {
      "post": {"tags": ["comments"], "summary": "Add comment", "security": [{"UserID": []}], "responses": {"201": {"description": "Created"}, "403": {"description": "Ticket not active"}}}
    },
    "/api/statistics/admin-dashboard": {
      "get": {"tags": ["statistics"], "summary": "Admin dashboard", "security": [{"UserID": []}], "responses": {"200": {"description": "OK"}}}
    },
    "/api/statistics/agent-dashboard/{agent_id}": {
      "get": {"tags": ["statistics"], "summary": "Agent dashboard", "security": [{"UserID": []}], "responses": {"200": {"description": "OK"}, "403": {"description": "Not your dashboard"}}}
    },
    "/api/performance/table-data": {
      "get": {"tags": ["performance"], "summary": "Performance table", "security": [{"UserID": []}], "responses": {"200": {"description": "OK"}}}
    },
    "/api/auth/register": {
      "post": {"tags": ["users"], "summary": "Register user", "responses": {"201": {"description": "Created"}, "409": {"description": "Username taken"}}}
    },
    "/api/webhook/telegram": {
      "post": {"tags": ["bot"], "summary": "Bot ticket intake", "security": [{"BotKey": []}], "responses": {"201": {"description": "Created"}}}
    },
    "/api/comments/pending-telegram": {
      "get": {"tags": ["bot"], "summary": "Undelivered staff comments", "security": [{"BotKey": []}], "responses": {"200": {"description": "OK"}}}
    }
  }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Title:            "BotSDV Helpdesk API",
	Description:      "Ticket intake, agent assignment, comments and dashboards for the BotSDV helpdesk",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
