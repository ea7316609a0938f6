// Package docs registers the OpenAPI document served under /swagger.
// Regenerate from the handler annotations with `swag init -g cmd/api/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/groups": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["groups"],
                "summary": "Create a savings group",
                "responses": {"201": {"description": "Created"}, "422": {"description": "Validation failed"}}
            }
        },
        "/groups/{groupId}/join": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["groups"],
                "summary": "Request to join a group",
                "parameters": [{"type": "string", "name": "groupId", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}}
            }
        },
        "/groups/{groupId}/join/{requestId}": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["groups"],
                "summary": "Approve or reject a join request",
                "parameters": [
                    {"type": "string", "name": "groupId", "in": "path", "required": true},
                    {"type": "string", "name": "requestId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}
            }
        },
        "/groups/{groupId}/contributions": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["contributions"],
                "summary": "Record a contribution",
                "parameters": [{"type": "string", "name": "groupId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "422": {"description": "Validation failed"}}
            }
        },
        "/groups/{groupId}/fund-requests": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["fund-requests"],
                "summary": "Request a loan or payout",
                "parameters": [{"type": "string", "name": "groupId", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "422": {"description": "Validation failed"}}
            }
        },
        "/groups/{groupId}/fund-requests/{requestId}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["fund-requests"],
                "summary": "Get a fund request with its voting status",
                "parameters": [
                    {"type": "string", "name": "groupId", "in": "path", "required": true},
                    {"type": "string", "name": "requestId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/groups/{groupId}/fund-requests/{requestId}/votes": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["fund-requests"],
                "summary": "Vote on a fund request",
                "parameters": [
                    {"type": "string", "name": "groupId", "in": "path", "required": true},
                    {"type": "string", "name": "requestId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Voting closed"}}
            }
        },
        "/groups/{groupId}/fund-requests/{requestId}/process": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["fund-requests"],
                "summary": "Disburse an approved request",
                "parameters": [
                    {"type": "string", "name": "groupId", "in": "path", "required": true},
                    {"type": "string", "name": "requestId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/groups/{groupId}/loans/{loanId}/payments": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["loans"],
                "summary": "Repay a loan",
                "parameters": [
                    {"type": "string", "name": "groupId", "in": "path", "required": true},
                    {"type": "string", "name": "loanId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/groups/{groupId}/payouts": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["payouts"],
                "summary": "Schedule the next payout for a group",
                "parameters": [{"type": "string", "name": "groupId", "in": "path", "required": true}],
                "responses": {"200": {"description": "Already scheduled"}, "201": {"description": "Created"}}
            }
        },
        "/groups/{groupId}/payouts/{scheduleId}/process": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["payouts"],
                "summary": "Pay out a schedule",
                "parameters": [
                    {"type": "string", "name": "groupId", "in": "path", "required": true},
                    {"type": "string", "name": "scheduleId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/cron/check-loans": {
            "post": {
                "security": [{"CronSecret": []}],
                "tags": ["cron"],
                "summary": "Mark overdue loans",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/cron/schedule-payouts": {
            "post": {
                "security": [{"CronSecret": []}],
                "tags": ["cron"],
                "summary": "Schedule monthly payouts for every funded group",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/webhooks/payments": {
            "post": {
                "tags": ["webhooks"],
                "summary": "Payment settled callback",
                "parameters": [{"type": "string", "name": "X-Payment-Signature", "in": "header", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid signature"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"},
        "CronSecret": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Village Bank API",
	Description:      "Savings groups with member-voted loans and payouts.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
