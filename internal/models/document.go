package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the lifecycle state persisted in Postgres.
type DocumentStatus string

const (
	StatusDraft    DocumentStatus = "draft"
	StatusPending  DocumentStatus = "pending"
	StatusApproved DocumentStatus = "approved"
	StatusRejected DocumentStatus = "rejected"
)

// DocumentType is the closed set of billing document kinds.
type DocumentType string

const (
	TypeInvoice        DocumentType = "invoice"
	TypeReceipt        DocumentType = "receipt"
	TypeProofOfPayment DocumentType = "proof_of_payment"
)

// ValidDocumentType reports whether t is a member of the enumeration.
func ValidDocumentType(t DocumentType) bool {
	switch t {
	case TypeInvoice, TypeReceipt, TypeProofOfPayment:
		return true
	}
	return false
}

// Document is a billing record tracked through draft/pending/approved/rejected.
// ID and CreatedAt are fixed at construction; Status only moves through the
// transition methods below.
type Document struct {
	ID        string         `json:"id"`
	Type      DocumentType   `json:"type"`
	Amount    float64        `json:"amount"`
	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`
}

// NewDocument validates inputs and builds a draft document.
func NewDocument(docType DocumentType, amount float64, metadata map[string]any) (Document, error) {
	if !ValidDocumentType(docType) {
		return Document{}, NewValidationError("unknown document type %q", docType)
	}
	if amount <= 0 {
		return Document{}, NewValidationError("amount must be greater than zero, got %v", amount)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Document{
		ID:        uuid.New().String(),
		Type:      docType,
		Amount:    amount,
		Status:    StatusDraft,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}, nil
}

// SubmitForReview moves draft -> pending.
func (d *Document) SubmitForReview() error {
	if d.Status != StatusDraft {
		return &InvalidTransitionError{Op: "submit for review", Required: StatusDraft, Observed: d.Status}
	}
	d.Status = StatusPending
	return nil
}

// Approve moves pending -> approved.
func (d *Document) Approve() error {
	if d.Status != StatusPending {
		return &InvalidTransitionError{Op: "approve", Required: StatusPending, Observed: d.Status}
	}
	d.Status = StatusApproved
	return nil
}

// Reject moves pending -> rejected.
func (d *Document) Reject() error {
	if d.Status != StatusPending {
		return &InvalidTransitionError{Op: "reject", Required: StatusPending, Observed: d.Status}
	}
	d.Status = StatusRejected
	return nil
}

// DocumentUpdate carries a partial update. Nil fields are left untouched;
// Metadata, when present, replaces the whole map rather than merging.
type DocumentUpdate struct {
	Type     *DocumentType  `json:"type"`
	Amount   *float64       `json:"amount"`
	Metadata map[string]any `json:"metadata"`
}

// ApplyUpdate mutates the updatable fields. An update carrying no field at
// all is a validation failure, not a silent success. Status, ID and
// CreatedAt are never touched here.
func (d *Document) ApplyUpdate(u DocumentUpdate) error {
	if u.Type == nil && u.Amount == nil && u.Metadata == nil {
		return NewValidationError("update must set at least one of type, amount, metadata")
	}
	if u.Type != nil && !ValidDocumentType(*u.Type) {
		return NewValidationError("unknown document type %q", *u.Type)
	}
	if u.Amount != nil && *u.Amount <= 0 {
		return NewValidationError("amount must be greater than zero, got %v", *u.Amount)
	}
	if u.Type != nil {
		d.Type = *u.Type
	}
	if u.Amount != nil {
		d.Amount = *u.Amount
	}
	if u.Metadata != nil {
		d.Metadata = u.Metadata
	}
	return nil
}
