// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {"get": {"tags": ["health"], "summary": "Liveness check", "produces": ["text/plain"], "responses": {"200": {"description": "ok"}}}},
        "/readyz": {"get": {"tags": ["health"], "summary": "Readiness check", "produces": ["text/plain"], "responses": {"200": {"description": "ready"}, "503": {"description": "loading"}}}},
        "/models": {"get": {"tags": ["models"], "summary": "List model artifacts", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}}},
        "/voices": {"get": {"tags": ["voices"], "summary": "List voice packs", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.VoicesResponse"}}}}},
        "/status": {"get": {"tags": ["status"], "summary": "Manager status", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}}},
        "/v1/audio/speech": {"post": {
            "tags": ["speech"], "summary": "Synthesize speech",
            "consumes": ["application/json"], "produces": ["application/octet-stream", "application/json"],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.SpeechRequest"}}],
            "responses": {
                "200": {"description": "audio stream"},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "404": {"description": "Model not found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "429": {"description": "Too busy", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "503": {"description": "Not initialized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
            }
        }},
        "/debug/session_pools": {"get": {"tags": ["debug"], "summary": "Session pool diagnostics", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SessionPoolsResponse"}}}}},
        "/debug/reinitialize": {"post": {"tags": ["debug"], "summary": "Unload and re-warm the model", "produces": ["application/json"], "responses": {
            "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ReinitializeResponse"}},
            "409": {"description": "Already running", "schema": {"$ref": "#/definitions/types.DetailedError"}},
            "500": {"description": "Failed", "schema": {"$ref": "#/definitions/types.DetailedError"}}
        }}},
        "/debug/voice": {"post": {"tags": ["debug"], "summary": "Set the default voice", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.VoiceRequest"}}],
            "responses": {
                "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.VoiceResponse"}},
                "400": {"description": "Unknown voice", "schema": {"$ref": "#/definitions/types.DetailedError"}}
            }
        }},
        "/debug/system": {"get": {"tags": ["debug"], "summary": "Host telemetry", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/debug/storage": {"get": {"tags": ["debug"], "summary": "Disk usage", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/debug/threads": {"get": {"tags": ["debug"], "summary": "Thread counts", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/debug/sanity": {"get": {"tags": ["debug"], "summary": "Runtime sanity checks", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/dev/speech/config": {"get": {"tags": ["speech"], "summary": "Current speech defaults", "produces": ["application/json"],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SpeechConfig"}}}
        }},
        "/dev/speech/config/base": {"post": {"tags": ["speech"], "summary": "Set the default voice and speed", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.SpeechBaseConfig"}}],
            "responses": {
                "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SpeechConfig"}},
                "400": {"description": "Unknown voice or speed out of range", "schema": {"$ref": "#/definitions/types.DetailedError"}}
            }
        }},
        "/dev/speech/config/advanced": {"post": {"tags": ["speech"], "summary": "Set the default streaming mode and response format", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.SpeechAdvancedConfig"}}],
            "responses": {
                "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SpeechConfig"}},
                "400": {"description": "Unsupported response format", "schema": {"$ref": "#/definitions/types.DetailedError"}}
            }
        }}
    },
    "definitions": {
        "types.Model": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "path": {"type": "string"}, "format": {"type": "string"}, "size_bytes": {"type": "integer"}}},
        "types.ModelsResponse": {"type": "object", "properties": {"models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}}},
        "types.VoicesResponse": {"type": "object", "properties": {"voices": {"type": "array", "items": {"type": "string"}}, "default": {"type": "string"}}},
        "types.SpeechRequest": {"type": "object", "required": ["input"], "properties": {"model": {"type": "string"}, "input": {"type": "string"}, "voice": {"type": "string"}, "speed": {"type": "number"}, "backend": {"type": "string", "enum": ["cpu", "gpu"]}, "allow_cpu_fallback": {"type": "boolean"}, "stream": {"type": "boolean"}, "response_format": {"type": "string", "enum": ["pcm", "wav"]}}},
        "types.SpeechConfig": {"type": "object", "properties": {"voice": {"type": "string"}, "speed": {"type": "number"}, "stream": {"type": "boolean"}, "response_format": {"type": "string"}}},
        "types.SpeechBaseConfig": {"type": "object", "properties": {"voice": {"type": "string"}, "speed": {"type": "number"}}},
        "types.SpeechAdvancedConfig": {"type": "object", "properties": {"stream": {"type": "boolean"}, "response_format": {"type": "string", "enum": ["pcm", "wav"]}}},
        "types.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}},
        "types.DetailedError": {"type": "object", "properties": {"error": {"type": "string"}, "message": {"type": "string"}}},
        "types.VoiceRequest": {"type": "object", "properties": {"voice": {"type": "string"}}},
        "types.VoiceResponse": {"type": "object", "properties": {"status": {"type": "string"}, "voice": {"type": "string"}}},
        "types.ReinitializeResponse": {"type": "object", "properties": {"status": {"type": "string"}, "device": {"type": "string"}, "model": {"type": "string"}, "voice_packs": {"type": "integer"}}},
        "types.PoolSession": {"type": "object", "properties": {"model": {"type": "string"}, "age_seconds": {"type": "number"}, "stream_id": {"type": "integer"}, "in_use": {"type": "boolean"}}},
        "types.PoolReport": {"type": "object", "properties": {"active_sessions": {"type": "integer"}, "max_sessions": {"type": "integer"}, "max_streams": {"type": "integer"}, "available_streams": {"type": "integer"}, "sessions": {"type": "array", "items": {"$ref": "#/definitions/types.PoolSession"}}}},
        "types.SessionPoolsResponse": {"type": "object", "properties": {"cpu": {"$ref": "#/definitions/types.PoolReport"}, "gpu": {"$ref": "#/definitions/types.PoolReport"}}},
        "types.StatusResponse": {"type": "object", "properties": {"state": {"type": "string"}, "device": {"type": "string"}, "current_model": {"type": "string"}, "active_leases": {"type": "integer"}, "uptime_seconds": {"type": "integer"}, "loads_total": {"type": "integer"}, "evictions_total": {"type": "integer"}, "inits_total": {"type": "integer"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "ttsd API",
	Description:      "HTTP API for the text-to-speech session pool and model lifecycle daemon.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
