// Package docs registra el documento OpenAPI del servicio en swag.
// Se regenera con `swag init -g cmd/api/main.go`.
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
        "/batches/{batchID}/custody": {
            "post": {
                "description": "Registra al actor autenticado como primer custodio del lote. Falla con DuplicateCustodyError si el lote ya tiene un custodio activo.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["custody"],
                "summary": "Crear custodia inicial",
                "parameters": [
                    {"type": "string", "description": "Solo en modo dev, ID del actor", "name": "X-Debug-Actor-ID", "in": "header"},
                    {"type": "string", "description": "Bearer token en producción", "name": "Authorization", "in": "header"},
                    {"type": "string", "description": "ID del lote", "name": "batchID", "in": "path", "required": true},
                    {"description": "Secreto de firma y datos de custodia", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/custody.createCustodyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/custody.envelope"}}
                }
            }
        },
        "/batches/{batchID}/custody/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["custody"],
                "summary": "Historia de custodia de un lote",
                "parameters": [
                    {"type": "string", "description": "ID del lote", "name": "batchID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/custody.envelope"}}
                }
            }
        },
        "/batches/{batchID}/custody/verify": {
            "get": {
                "description": "Detecta huecos en la cadena y transfers vencidos sin resolver. integrity_score = max(0, 100 - 20*gaps - 10*incompletos).",
                "produces": ["application/json"],
                "tags": ["custody"],
                "summary": "Verificar cadena de custodia",
                "parameters": [
                    {"type": "string", "description": "ID del lote", "name": "batchID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/custody.envelope"}}
                }
            }
        },
        "/batches/{batchID}/transfers": {
            "post": {
                "description": "El custodio activo propone transferir el lote a otro actor. El transfer vence a las 24h si no se acepta.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["custody"],
                "summary": "Iniciar transferencia de custodia",
                "parameters": [
                    {"type": "string", "description": "ID del lote", "name": "batchID", "in": "path", "required": true},
                    {"description": "Destinatario, secreto y metadata del transfer", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/custody.initiateTransferRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/custody.envelope"}}
                }
            }
        },
        "/transfers/{transferID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["custody"],
                "summary": "Obtener transferencia",
                "parameters": [
                    {"type": "string", "description": "ID del transfer", "name": "transferID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/custody.envelope"}}
                }
            }
        },
        "/transfers/{transferID}/accept": {
            "post": {
                "description": "El destinatario acepta un transfer pendiente. Si venció, el transfer queda EXPIRED y se responde TransferExpiredError.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["custody"],
                "summary": "Aceptar transferencia",
                "parameters": [
                    {"type": "string", "description": "ID del transfer", "name": "transferID", "in": "path", "required": true},
                    {"description": "Secreto y datos de recepción", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/custody.acceptTransferRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/custody.envelope"}}
                }
            }
        },
        "/transfers/{transferID}/reject": {
            "post": {
                "description": "El destinatario rechaza un transfer pendiente. La custodia queda con el remitente.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["custody"],
                "summary": "Rechazar transferencia",
                "parameters": [
                    {"type": "string", "description": "ID del transfer", "name": "transferID", "in": "path", "required": true},
                    {"description": "Motivo del rechazo", "name": "payload", "in": "body", "schema": {"$ref": "#/definitions/custody.rejectTransferRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/custody.envelope"}}
                }
            }
        },
        "/transfers/{transferID}/verify": {
            "get": {
                "description": "Verifica la transacción de inicio (y la de aceptación, si existe) contra las credenciales públicas registradas.",
                "produces": ["application/json"],
                "tags": ["custody"],
                "summary": "Verificar firmas de un transfer",
                "parameters": [
                    {"type": "string", "description": "ID del transfer", "name": "transferID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/custody.envelope"}}
                }
            }
        },
        "/me/transfers": {
            "get": {
                "produces": ["application/json"],
                "tags": ["custody"],
                "summary": "Transfers dirigidos a mí",
                "parameters": [
                    {"type": "string", "description": "CSV de estados (ej: PENDING_ACCEPTANCE,EXPIRED)", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/custody.envelope"}}
                }
            }
        },
        "/me/credential": {
            "put": {
                "description": "Registra la credencial pública con la que se verifican las transacciones del actor.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["credentials"],
                "summary": "Registrar credencial pública",
                "parameters": [
                    {"description": "Credencial pública", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/custody.registerCredentialRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/custody.envelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/custody.envelope"}}
                }
            }
        }
    },
    "definitions": {
        "custody.envelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "error": {"$ref": "#/definitions/custody.errorBody"}
            }
        },
        "custody.errorBody": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"},
                "message": {"type": "string"},
                "missing_fields": {"type": "array", "items": {"type": "string"}}
            }
        },
        "custody.createCustodyRequest": {
            "type": "object",
            "properties": {
                "secret": {"type": "string"},
                "location": {"type": "string"},
                "conditions": {"type": "object", "additionalProperties": true}
            }
        },
        "custody.initiateTransferRequest": {
            "type": "object",
            "properties": {
                "to_custodian": {"type": "string"},
                "secret": {"type": "string"},
                "transfer_type": {"type": "string"},
                "reason": {"type": "string"},
                "quality_checks": {"type": "object", "additionalProperties": true},
                "conditions": {"type": "object", "additionalProperties": true},
                "location": {"type": "string"}
            }
        },
        "custody.acceptTransferRequest": {
            "type": "object",
            "properties": {
                "secret": {"type": "string"},
                "conditions": {"type": "object", "additionalProperties": true},
                "quality_verification": {"type": "object", "additionalProperties": true},
                "location": {"type": "string"}
            }
        },
        "custody.rejectTransferRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "custody.registerCredentialRequest": {
            "type": "object",
            "properties": {
                "credential": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Custody Ledger API",
	Description:      "Ledger de cadena de custodia para lotes: custodia inicial, transferencias firmadas y verificación de la cadena.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
