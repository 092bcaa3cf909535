package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "AHJ Registry API",
        "description": "Public registry of permitting authorities with a moderated edit ledger",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Account registration and sessions"},
        {"name": "AHJs", "description": "Authority search, views and exports"},
        {"name": "Edits", "description": "Crowdsourced edit ledger and moderation"},
        {"name": "Users", "description": "Profiles and maintainer grants"},
        {"name": "Metrics", "description": "Operational metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a member account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/activate": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Activate a registered account",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate by email and password",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Exchange refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke refresh token",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/auth/password": {
            "put": {
                "tags": ["Authentication"],
                "summary": "Change account password",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/ahjs/search": {
            "post": {
                "tags": ["AHJs"],
                "summary": "Search authorities",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SearchAHJRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ahjs/export": {
            "get": {
                "tags": ["AHJs"],
                "summary": "Export search results",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "description": "csv or pdf"},
                    {"name": "name", "in": "query", "type": "string"},
                    {"name": "state", "in": "query", "type": "string"},
                    {"name": "level", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/ahjs/{id}": {
            "get": {
                "tags": ["AHJs"],
                "summary": "Get a single authority with its sub-records",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "preview", "in": "query", "type": "boolean", "description": "Overlay approved unapplied edits"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/edits": {
            "get": {
                "tags": ["Edits"],
                "summary": "List edits",
                "parameters": [
                    {"name": "ahj_pk", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "description": "Comma-separated review statuses"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/edits/{id}": {
            "get": {
                "tags": ["Edits"],
                "summary": "Get a single edit",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/edits/update": {
            "post": {
                "tags": ["Edits"],
                "summary": "Propose field updates",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "array", "items": {"$ref": "#/definitions/UpdateEditItem"}}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/edits/add": {
            "post": {
                "tags": ["Edits"],
                "summary": "Propose new sub-records",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/edits/delete": {
            "post": {
                "tags": ["Edits"],
                "summary": "Propose sub-record removals",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/edits/review": {
            "post": {
                "tags": ["Edits"],
                "summary": "Approve or reject a pending edit",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReviewEditRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/edits/{id}/revert": {
            "post": {
                "tags": ["Edits"],
                "summary": "Create and apply an inverse edit",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/edits/{id}/resettable": {
            "get": {
                "tags": ["Edits"],
                "summary": "Check whether an edit can be reset",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/edits/{id}/reset": {
            "post": {
                "tags": ["Edits"],
                "summary": "Undo an edit and return it to pending",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ResetEditRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/edits/{id}/pending": {
            "post": {
                "tags": ["Edits"],
                "summary": "Clear a review without touching records",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/edits/apply": {
            "post": {
                "tags": ["Edits"],
                "summary": "Apply all due approved edits",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/me": {
            "get": {
                "tags": ["Users"],
                "summary": "Get the caller's profile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Users"],
                "summary": "Update the caller's profile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/{username}": {
            "get": {
                "tags": ["Users"],
                "summary": "Get a public profile",
                "parameters": [
                    {"name": "username", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/maintainers": {
            "post": {
                "tags": ["Users"],
                "summary": "Grant maintainer rights",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MaintainerRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            },
            "delete": {
                "tags": ["Users"],
                "summary": "Revoke maintainer rights",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MaintainerRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/admin/metrics": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Aggregate runtime metrics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "username": {"type": "string"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"}
            },
            "required": ["email", "password", "username"]
        },
        "SearchAHJRequest": {
            "type": "object",
            "properties": {
                "AHJName": {"type": "string"},
                "AHJID": {"type": "string"},
                "AHJPK": {"type": "string"},
                "AHJCode": {"type": "string"},
                "AHJLevelCode": {"type": "string"},
                "StateProvince": {"type": "string"},
                "BuildingCode": {"type": "array", "items": {"type": "string"}},
                "ElectricCode": {"type": "array", "items": {"type": "string"}},
                "FireCode": {"type": "array", "items": {"type": "string"}},
                "ResidentialCode": {"type": "array", "items": {"type": "string"}},
                "WindCode": {"type": "array", "items": {"type": "string"}},
                "Limit": {"type": "integer"},
                "Offset": {"type": "integer"}
            }
        },
        "UpdateEditItem": {
            "type": "object",
            "properties": {
                "AHJPK": {"type": "string"},
                "SourceTable": {"type": "string"},
                "SourceRow": {"type": "string"},
                "SourceColumn": {"type": "string"},
                "NewValue": {"type": "string"}
            },
            "required": ["AHJPK", "SourceTable", "SourceRow", "SourceColumn"]
        },
        "ReviewEditRequest": {
            "type": "object",
            "properties": {
                "EditID": {"type": "integer"},
                "Status": {"type": "string", "enum": ["APPROVED", "REJECTED"]}
            },
            "required": ["EditID", "Status"]
        },
        "ResetEditRequest": {
            "type": "object",
            "properties": {
                "ForceResettable": {"type": "boolean"},
                "SkipUndo": {"type": "boolean"}
            }
        },
        "MaintainerRequest": {
            "type": "object",
            "properties": {
                "Username": {"type": "string"},
                "AHJPK": {"type": "string"}
            },
            "required": ["Username", "AHJPK"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
