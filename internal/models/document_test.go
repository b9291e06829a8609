package models

import (
	"errors"
	"testing"
)

func TestNewDocumentValidation(t *testing.T) {
	if _, err := NewDocument(TypeInvoice, 0, nil); err == nil {
		t.Fatalf("expected zero amount to fail validation")
	}
	if _, err := NewDocument(TypeInvoice, -100, nil); err == nil {
		t.Fatalf("expected negative amount to fail validation")
	}
	if _, err := NewDocument("unknown_type", 100, nil); err == nil {
		t.Fatalf("expected unknown type to fail validation")
	}

	doc, err := NewDocument(TypeReceipt, 1500.50, map[string]any{"client": "Acme"})
	if err != nil {
		t.Fatalf("valid document: %v", err)
	}
	if doc.Status != StatusDraft {
		t.Fatalf("new document must start draft, got %s", doc.Status)
	}
	if doc.ID == "" || doc.CreatedAt.IsZero() {
		t.Fatalf("id and created_at must be assigned at creation")
	}
	if doc.Metadata["client"] != "Acme" {
		t.Fatalf("metadata not carried over")
	}
}

func TestSubmitForReviewOnlyFromDraft(t *testing.T) {
	doc, _ := NewDocument(TypeInvoice, 100, nil)
	if err := doc.SubmitForReview(); err != nil {
		t.Fatalf("submit from draft: %v", err)
	}
	if doc.Status != StatusPending {
		t.Fatalf("expected pending, got %s", doc.Status)
	}

	// Not idempotent: the second call must fail.
	err := doc.SubmitForReview()
	var transition *InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if transition.Required != StatusDraft || transition.Observed != StatusPending {
		t.Fatalf("error must name required and observed states: %+v", transition)
	}
}

func TestApproveRejectOnlyFromPending(t *testing.T) {
	for _, from := range []DocumentStatus{StatusDraft, StatusApproved, StatusRejected} {
		doc, _ := NewDocument(TypeInvoice, 100, nil)
		doc.Status = from
		if err := doc.Approve(); err == nil {
			t.Fatalf("approve from %s should fail", from)
		}
		if err := doc.Reject(); err == nil {
			t.Fatalf("reject from %s should fail", from)
		}
	}

	doc, _ := NewDocument(TypeInvoice, 100, nil)
	_ = doc.SubmitForReview()
	if err := doc.Approve(); err != nil {
		t.Fatalf("approve from pending: %v", err)
	}
	if doc.Status != StatusApproved {
		t.Fatalf("expected approved, got %s", doc.Status)
	}

	doc2, _ := NewDocument(TypeInvoice, 100, nil)
	_ = doc2.SubmitForReview()
	if err := doc2.Reject(); err != nil {
		t.Fatalf("reject from pending: %v", err)
	}
	if doc2.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", doc2.Status)
	}
}

func TestApplyUpdateEmptyPayloadFails(t *testing.T) {
	doc, _ := NewDocument(TypeInvoice, 100, nil)
	err := doc.ApplyUpdate(DocumentUpdate{})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("empty update must be a validation error, got %v", err)
	}
}

func TestApplyUpdateSingleField(t *testing.T) {
	doc, _ := NewDocument(TypeInvoice, 100, map[string]any{"ref": "REF-1"})
	before := doc

	amount := 250.0
	if err := doc.ApplyUpdate(DocumentUpdate{Amount: &amount}); err != nil {
		t.Fatalf("update amount: %v", err)
	}
	if doc.Amount != 250.0 {
		t.Fatalf("amount not updated")
	}
	if doc.ID != before.ID || doc.Status != before.Status || !doc.CreatedAt.Equal(before.CreatedAt) {
		t.Fatalf("update must not touch id, status, or created_at")
	}
	if doc.Type != before.Type || doc.Metadata["ref"] != "REF-1" {
		t.Fatalf("unrelated fields must be unchanged")
	}
}

func TestApplyUpdateValidation(t *testing.T) {
	doc, _ := NewDocument(TypeInvoice, 100, nil)

	bad := -5.0
	if err := doc.ApplyUpdate(DocumentUpdate{Amount: &bad}); err == nil {
		t.Fatalf("non-positive amount must be re-validated on update")
	}
	badType := DocumentType("contract")
	if err := doc.ApplyUpdate(DocumentUpdate{Type: &badType}); err == nil {
		t.Fatalf("unknown type must fail on update")
	}
	if doc.Amount != 100 || doc.Type != TypeInvoice {
		t.Fatalf("failed update must leave the document untouched")
	}
}

func TestApplyUpdateReplacesMetadataWholesale(t *testing.T) {
	doc, _ := NewDocument(TypeInvoice, 100, map[string]any{"a": 1, "b": 2})
	if err := doc.ApplyUpdate(DocumentUpdate{Metadata: map[string]any{"c": 3}}); err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	if len(doc.Metadata) != 1 || doc.Metadata["c"] != 3 {
		t.Fatalf("metadata must be replaced, not merged: %v", doc.Metadata)
	}
}
