package models

import (
	"time"

	id "onramp/pkg/domain"
	dErrors "onramp/pkg/domain-errors"
)

// DocumentType is the verification category an upload belongs to.
type DocumentType string

const (
	TypeNationalID           DocumentType = "national_id"
	TypePassport             DocumentType = "passport"
	TypeProofOfAddress       DocumentType = "proof_of_address"
	TypeDriversLicense       DocumentType = "drivers_license"
	TypeBusinessRegistration DocumentType = "business_registration"
	TypeTaxCertificate       DocumentType = "tax_certificate"
)

var allDocumentTypes = []DocumentType{
	TypeNationalID, TypePassport, TypeProofOfAddress,
	TypeDriversLicense, TypeBusinessRegistration, TypeTaxCertificate,
}

// ParseDocumentType validates a raw type string.
func ParseDocumentType(raw string) (DocumentType, error) {
	for _, known := range allDocumentTypes {
		if DocumentType(raw) == known {
			return known, nil
		}
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown document type %q", raw)
}

// Review holds the fields a reviewer (or the AI verifier) fills in. All nil/zero
// until a review event occurs.
type Review struct {
	ReviewerID      *id.ReviewerID `json:"reviewer_id,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	SuggestedAction string         `json:"suggested_action,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	ExpiryDate      *time.Time     `json:"expiry_date,omitempty"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
}

// Document is one uploaded artifact under an application.
//
// Invariants:
//   - ContentHash, SizeBytes and MIMEType are recorded at upload, never mutated
//   - Status only changes through CanTransition/ApplyTransition or the
//     corrective CanRequestResubmission path
//   - At most one non-rejected primary per (application, type); enforced by
//     the workflow's duplicate-primary guard at upload
type Document struct {
	ID            id.DocumentID    `json:"id"`
	ApplicationID id.ApplicationID `json:"application_id"`
	Type          DocumentType     `json:"type"`

	Status    VerificationStatus `json:"status"`
	IsPrimary bool               `json:"is_primary"`

	FileName    string `json:"file_name"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
	MIMEType    string `json:"mime_type"`
	StorageRef  string `json:"storage_ref"`

	Review Review `json:"review"`

	// AllowResubmission signals the application should expect a replacement
	// after a rejection.
	AllowResubmission bool `json:"allow_resubmission,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocument constructs a PENDING document with its upload-time integrity
// fields fixed.
func NewDocument(docID id.DocumentID, appID id.ApplicationID, docType DocumentType,
	fileName, contentHash, mimeType, storageRef string, size int64, isPrimary bool, now time.Time) *Document {
	return &Document{
		ID:            docID,
		ApplicationID: appID,
		Type:          docType,
		Status:        VerificationPending,
		IsPrimary:     isPrimary,
		FileName:      fileName,
		ContentHash:   contentHash,
		SizeBytes:     size,
		MIMEType:      mimeType,
		StorageRef:    storageRef,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CanTransition checks the forward table without mutating anything.
func (d *Document) CanTransition(to VerificationStatus) error {
	if !d.Status.CanTransitionTo(to) {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"document %s cannot move from %s to %s", d.ID, d.Status, to).
			WithMeta("document_id", d.ID.String()).
			WithMeta("from", string(d.Status)).
			WithMeta("to", string(to))
	}
	return nil
}

// ApplyTransition moves the document to the target status.
func (d *Document) ApplyTransition(to VerificationStatus, now time.Time) {
	d.Status = to
	d.UpdatedAt = now
}

// Transition validates and applies in one call.
func (d *Document) Transition(to VerificationStatus, now time.Time) error {
	if err := d.CanTransition(to); err != nil {
		return err
	}
	d.ApplyTransition(to, now)
	return nil
}

// CanRequestResubmission reports whether the corrective move to
// RESUBMISSION_REQUIRED is allowed. It bypasses the forward table: any
// non-terminal document may be pulled back.
func (d *Document) CanRequestResubmission() error {
	if d.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"document %s is %s and cannot be sent back for resubmission", d.ID, d.Status).
			WithMeta("document_id", d.ID.String()).
			WithMeta("from", string(d.Status)).
			WithMeta("to", string(VerificationResubmissionRequired))
	}
	return nil
}

// Clone returns a deep copy so in-memory stores never leak shared pointers.
func (d *Document) Clone() *Document {
	cp := *d
	if d.Review.ReviewerID != nil {
		r := *d.Review.ReviewerID
		cp.Review.ReviewerID = &r
	}
	if d.Review.Confidence != nil {
		c := *d.Review.Confidence
		cp.Review.Confidence = &c
	}
	if d.Review.ExpiryDate != nil {
		t := *d.Review.ExpiryDate
		cp.Review.ExpiryDate = &t
	}
	if d.Review.ReviewedAt != nil {
		t := *d.Review.ReviewedAt
		cp.Review.ReviewedAt = &t
	}
	return &cp
}
