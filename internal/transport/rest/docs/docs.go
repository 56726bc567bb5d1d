// Package docs registers the OpenAPI description of the participant API
// with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/auth/login": {
            "post": {
                "summary": "Log in with the study access code",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}],
                "responses": {"200": {"description": "participant token"}, "400": {"description": "invalid request"}, "401": {"description": "wrong access code"}}
            }
        },
        "/study": {
            "get": {
                "summary": "Public study information",
                "responses": {"200": {"description": "study information"}}
            }
        },
        "/pings": {
            "post": {
                "summary": "Start a ping, or resume the unfinished one",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/StartPingRequest"}}],
                "responses": {"200": {"description": "resumed"}, "201": {"description": "started"}, "409": {"description": "study inactive or notification expired"}}
            }
        },
        "/pings/{pingId}/question/current": {
            "get": {
                "summary": "Current question with its rendered prompt",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "pingId", "required": true, "type": "string"}],
                "responses": {"200": {"description": "current question"}, "404": {"description": "unknown ping"}}
            }
        },
        "/pings/{pingId}/answers": {
            "post": {
                "summary": "Record the answer to the current question",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "pingId", "required": true, "type": "string"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/AnswerRequest"}}
                ],
                "responses": {"200": {"description": "recorded answer"}, "400": {"description": "answer does not fit the question"}}
            }
        },
        "/pings/{pingId}/next": {
            "post": {
                "summary": "Advance to the next question",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "pingId", "required": true, "type": "string"}],
                "responses": {"200": {"description": "next question or finished"}, "409": {"description": "ping already finished"}, "422": {"description": "study content defect"}}
            }
        },
        "/pings/{pingId}/state": {
            "get": {
                "summary": "Serialized session state",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "pingId", "required": true, "type": "string"}],
                "responses": {"200": {"description": "session state"}}
            }
        },
        "/future-pings": {
            "get": {
                "summary": "Queued follow-up streams",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "queued follow-ups"}}
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["username"],
            "properties": {"username": {"type": "string"}, "accessCode": {"type": "string"}}
        },
        "StartPingRequest": {
            "type": "object",
            "properties": {
                "tzOffset": {"type": "integer", "description": "minutes, UTC = local + offset"},
                "notificationTime": {"type": "string", "format": "date-time"}
            }
        },
        "AnswerRequest": {
            "type": "object",
            "required": ["questionId"],
            "properties": {
                "questionId": {"type": "string"},
                "preferNotToAnswer": {"type": "boolean"},
                "nextWithoutOption": {"type": "boolean"},
                "data": {"type": "object"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/v1",
	Schemes:          []string{},
	Title:            "WellPing API",
	Description:      "Experience-sampling survey sessions for study participants.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
