package services

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Structured evidence kinds. Each closed kind has a schema; anything else is
// treated as a free-form attachment and passes through as an opaque blob.
const (
	EvidenceKindDeliveryProof = "delivery_proof"
	EvidenceKindChatExcerpt   = "chat_excerpt"
	EvidenceKindPaymentRecord = "payment_record"
	EvidenceKindAttachment    = "attachment"
)

var evidenceSchemas = map[string]string{
	EvidenceKindDeliveryProof: `{
		"type": "object",
		"required": ["url"],
		"properties": {
			"url": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"delivered_at": {"type": "string", "format": "date-time"}
		},
		"additionalProperties": false
	}`,
	EvidenceKindChatExcerpt: `{
		"type": "object",
		"required": ["text"],
		"properties": {
			"text": {"type": "string", "minLength": 1},
			"source": {"type": "string"},
			"occurred_at": {"type": "string", "format": "date-time"}
		},
		"additionalProperties": false
	}`,
	EvidenceKindPaymentRecord: `{
		"type": "object",
		"required": ["reference"],
		"properties": {
			"reference": {"type": "string", "minLength": 1},
			"amount": {"type": "integer", "minimum": 0},
			"currency": {"type": "string", "minLength": 3, "maxLength": 3}
		},
		"additionalProperties": false
	}`,
}

// Validator checks evidence metadata against per-kind schemas. Known kinds
// are closed variants; the attachment kind is the opaque fallback for
// genuinely free-form material.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiled := make(map[string]*jsonschema.Schema, len(evidenceSchemas))
	for kind, src := range evidenceSchemas {
		s, err := jsonschema.CompileString("evidence/"+kind, src)
		if err != nil {
			return nil, fmt.Errorf("compile evidence schema %q: %w", kind, err)
		}
		compiled[kind] = s
	}
	return &Validator{schemas: compiled}, nil
}

// ValidateEvidence rejects unknown kinds and schema violations.
func (v *Validator) ValidateEvidence(kind string, metadata json.RawMessage) error {
	if kind == EvidenceKindAttachment {
		return nil
	}
	schema, ok := v.schemas[kind]
	if !ok {
		return validationErr("kind", fmt.Sprintf("unknown evidence kind %q", kind))
	}
	if len(metadata) == 0 {
		return validationErr("metadata", "required for structured evidence")
	}
	var doc interface{}
	if err := json.Unmarshal(metadata, &doc); err != nil {
		return validationErr("metadata", "invalid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return &ValidationError{Field: "metadata", Reason: err.Error()}
	}
	return nil
}
