package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "FleetDesk Custody API",
        "description": "Back-office service for vehicle custody and replacement workflows",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Custody", "description": "Custody transaction lifecycle"},
        {"name": "Scheduler", "description": "Reconciliation triggers"}
    ],
    "paths": {
        "/custodies": {
            "get": {
                "tags": ["Custody"],
                "summary": "List custody transactions",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "reasonCode", "in": "query", "type": "string"},
                    {"name": "branchCode", "in": "query", "type": "string"},
                    {"name": "customerId", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Custody"],
                "summary": "Open a draft custody transaction",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCustodyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/custodies/stats": {
            "get": {
                "tags": ["Custody"],
                "summary": "Aggregate custody statistics",
                "parameters": [
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/custodies/export": {
            "get": {
                "tags": ["Custody"],
                "summary": "Export custody transactions",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File stream"}
                }
            }
        },
        "/custodies/{id}": {
            "get": {
                "tags": ["Custody"],
                "summary": "Custody transaction detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Custody"],
                "summary": "Delete a draft custody transaction",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Not a draft"}
                }
            }
        },
        "/custodies/{id}/submit": {
            "post": {
                "tags": ["Custody"],
                "summary": "Submit a draft for approval",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Illegal transition"}
                }
            }
        },
        "/custodies/{id}/approve": {
            "post": {
                "tags": ["Custody"],
                "summary": "Record an approval verdict",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate decision or illegal transition"}
                }
            }
        },
        "/custodies/{id}/reject": {
            "post": {
                "tags": ["Custody"],
                "summary": "Record a rejection verdict",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/custodies/{id}/activate": {
            "post": {
                "tags": ["Custody"],
                "summary": "Record replacement vehicle handover",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ActivateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Replacement vehicle not assigned"}
                }
            }
        },
        "/custodies/{id}/return": {
            "post": {
                "tags": ["Custody"],
                "summary": "Record the vehicle return date",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReturnRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/custodies/{id}/close": {
            "post": {
                "tags": ["Custody"],
                "summary": "Close an active custody transaction",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/CloseRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/custodies/{id}/void": {
            "post": {
                "tags": ["Custody"],
                "summary": "Void a custody transaction",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VoidRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/custodies/{id}/documents": {
            "get": {
                "tags": ["Custody"],
                "summary": "List documents on a custody transaction",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Custody"],
                "summary": "Attach paperwork to a custody transaction",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AttachDocumentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/run": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Trigger a reconciliation run",
                "responses": {
                    "200": {"description": "Run report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateCustodyRequest": {
            "type": "object",
            "required": ["agreementId", "customerId", "originalVehicleId", "custodianName", "custodianType", "reasonCode", "incidentDate", "effectiveFrom"],
            "properties": {
                "agreementId": {"type": "string"},
                "agreementLineId": {"type": "string"},
                "customerId": {"type": "string"},
                "branchCode": {"type": "string"},
                "originalVehicleId": {"type": "string"},
                "custodianName": {"type": "string"},
                "custodianType": {"type": "string", "enum": ["CUSTOMER", "DRIVER", "ORIGINATOR"]},
                "reasonCode": {"type": "string", "enum": ["ACCIDENT", "BREAKDOWN", "MAINTENANCE", "DAMAGE", "OTHER"]},
                "incidentNarrative": {"type": "string"},
                "incidentDate": {"type": "string", "format": "date-time"},
                "effectiveFrom": {"type": "string", "format": "date-time"},
                "expectedReturnDate": {"type": "string", "format": "date-time"},
                "ratePolicy": {"type": "string", "enum": ["INHERIT", "PRORATE", "FREE", "SPECIAL_CODE"]},
                "specialRateCode": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "DecisionRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            }
        },
        "RejectRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "ActivateRequest": {
            "type": "object",
            "properties": {
                "replacementVehicleId": {"type": "string"}
            }
        },
        "ReturnRequest": {
            "type": "object",
            "required": ["actualReturnDate"],
            "properties": {
                "actualReturnDate": {"type": "string", "format": "date-time"},
                "notes": {"type": "string"}
            }
        },
        "CloseRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            }
        },
        "VoidRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "AttachDocumentRequest": {
            "type": "object",
            "required": ["docType", "reference"],
            "properties": {
                "docType": {"type": "string", "enum": ["ACCIDENT_REPORT", "INSURANCE", "HANDOVER_FORM", "OTHER"]},
                "reference": {"type": "string"},
                "issuedAt": {"type": "string", "format": "date-time"},
                "expiresAt": {"type": "string", "format": "date-time"}
            }
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
