package services

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidateEvidence(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	valid := []struct {
		kind string
		meta string
	}{
		{EvidenceKindDeliveryProof, `{"url":"https://files.example/a.zip"}`},
		{EvidenceKindDeliveryProof, `{"url":"https://files.example/a.zip","description":"final","delivered_at":"2026-02-01T10:00:00Z"}`},
		{EvidenceKindChatExcerpt, `{"text":"we agreed on friday","source":"email"}`},
		{EvidenceKindPaymentRecord, `{"reference":"ch_000123","amount":5000,"currency":"USD"}`},
	}
	for _, tc := range valid {
		if err := v.ValidateEvidence(tc.kind, json.RawMessage(tc.meta)); err != nil {
			t.Errorf("ValidateEvidence(%s, %s): %v", tc.kind, tc.meta, err)
		}
	}

	invalid := []struct {
		name string
		kind string
		meta string
	}{
		{"missing required field", EvidenceKindDeliveryProof, `{"description":"x"}`},
		{"extra property", EvidenceKindChatExcerpt, `{"text":"x","verdict":"guilty"}`},
		{"wrong type", EvidenceKindPaymentRecord, `{"reference":"r","amount":"lots"}`},
		{"empty metadata", EvidenceKindDeliveryProof, ``},
		{"not json", EvidenceKindChatExcerpt, `text`},
		{"unknown kind", "voicemail", `{}`},
	}
	var vErr *ValidationError
	for _, tc := range invalid {
		if err := v.ValidateEvidence(tc.kind, json.RawMessage(tc.meta)); !errors.As(err, &vErr) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}
}

func TestValidateEvidence_AttachmentIsOpaque(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	// Attachments skip schema validation entirely, even with no metadata.
	if err := v.ValidateEvidence(EvidenceKindAttachment, nil); err != nil {
		t.Errorf("empty attachment: %v", err)
	}
	if err := v.ValidateEvidence(EvidenceKindAttachment, json.RawMessage(`{"anything":["goes"]}`)); err != nil {
		t.Errorf("free-form attachment: %v", err)
	}
}
