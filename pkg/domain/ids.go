// Package domain holds the typed identifiers shared across the onboarding
// engine. Wrapping uuid.UUID in distinct types makes cross-entity mixups a
// compile error rather than a runtime surprise.
package domain

import (
	"github.com/google/uuid"

	dErrors "onramp/pkg/domain-errors"
)

type (
	// ApplicationID identifies one onboarding attempt.
	ApplicationID uuid.UUID
	// DocumentID identifies one uploaded artifact.
	DocumentID uuid.UUID
	// ReviewerID identifies the staff member recording a manual decision.
	ReviewerID uuid.UUID
)

func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id ApplicationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ReviewerID) String() string { return uuid.UUID(id).String() }
func (id ReviewerID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Defined types do not inherit uuid.UUID's marshaling, so each id implements
// encoding.TextMarshaler/TextUnmarshaler to keep the canonical string form in
// JSON and SQL round-trips.

func (id ApplicationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *ApplicationID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ApplicationID(u)
	return nil
}

func (id DocumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *DocumentID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = DocumentID(u)
	return nil
}

func (id ReviewerID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *ReviewerID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ReviewerID(u)
	return nil
}

// NewApplicationID generates a fresh application reference.
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }

// NewDocumentID generates a fresh document reference.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewReviewerID generates a fresh reviewer reference.
func NewReviewerID() ReviewerID { return ReviewerID(uuid.New()) }

// ParseApplicationID parses and validates an application reference.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application id")
	return ApplicationID(u), err
}

// ParseDocumentID parses and validates a document reference.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document id")
	return DocumentID(u), err
}

// ParseReviewerID parses and validates a reviewer reference.
func ParseReviewerID(s string) (ReviewerID, error) {
	u, err := parseUUID(s, "reviewer id")
	return ReviewerID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" must not be the nil UUID")
	}
	return u, nil
}
