package service

import (
	"onramp/internal/document/models"
	onboarding "onramp/internal/onboarding/models"
)

// RequirementGroup is one required document slot. A group with multiple types
// is an either/or requirement: any approved member satisfies it.
type RequirementGroup struct {
	Name  string
	Types []models.DocumentType
}

// Requirements maps customer segments to their required document groups.
type Requirements map[onboarding.Segment][]RequirementGroup

// DefaultRequirements reflects the platform's baseline verification policy.
func DefaultRequirements() Requirements {
	return Requirements{
		onboarding.SegmentIndividual: {
			{Name: "identity", Types: []models.DocumentType{models.TypeNationalID, models.TypePassport}},
			{Name: "address", Types: []models.DocumentType{models.TypeProofOfAddress}},
		},
		onboarding.SegmentBusiness: {
			{Name: "registration", Types: []models.DocumentType{models.TypeBusinessRegistration}},
			{Name: "tax", Types: []models.DocumentType{models.TypeTaxCertificate}},
		},
	}
}

// GroupState classifies one requirement group.
type GroupState string

const (
	GroupCompleted GroupState = "completed"
	GroupPending   GroupState = "pending"
	GroupRejected  GroupState = "rejected"
	GroupMissing   GroupState = "missing"
)

// CompletionStatus is the aggregation result. Complete is true iff every
// required group has an approved member and none is pending, rejected or
// missing.
type CompletionStatus struct {
	Complete  bool                  `json:"complete"`
	Groups    map[string]GroupState `json:"groups"`
	Completed []string              `json:"completed,omitempty"`
	Pending   []string              `json:"pending,omitempty"`
	Rejected  []string              `json:"rejected,omitempty"`
	Missing   []string              `json:"missing,omitempty"`
}

// EvaluateCompletion partitions an application's documents against the
// segment's required groups.
//
// This is pure domain logic - no I/O, no side effects. The function receives
// all data it needs as arguments, so it is idempotent by construction.
//
// Per-type selection: the instance that counts is the latest primary
// submission when one exists, otherwise the latest submission of that type.
// A rejected instance only counts against the group when no newer non-terminal
// submission has replaced it.
func EvaluateCompletion(docs []*models.Document, groups []RequirementGroup) CompletionStatus {
	status := CompletionStatus{
		Complete: true,
		Groups:   make(map[string]GroupState, len(groups)),
	}

	byType := make(map[models.DocumentType][]*models.Document)
	for _, doc := range docs {
		byType[doc.Type] = append(byType[doc.Type], doc)
	}

	for _, group := range groups {
		state := evaluateGroup(byType, group)
		status.Groups[group.Name] = state
		switch state {
		case GroupCompleted:
			status.Completed = append(status.Completed, group.Name)
		case GroupPending:
			status.Pending = append(status.Pending, group.Name)
			status.Complete = false
		case GroupRejected:
			status.Rejected = append(status.Rejected, group.Name)
			status.Complete = false
		case GroupMissing:
			status.Missing = append(status.Missing, group.Name)
			status.Complete = false
		}
	}
	return status
}

// evaluateGroup applies the group rule chain:
//  1. Any approved member satisfies the group.
//  2. Otherwise any in-flight member keeps it pending.
//  3. Otherwise any rejected/resubmission member marks it rejected.
//  4. Otherwise nothing was ever submitted.
func evaluateGroup(byType map[models.DocumentType][]*models.Document, group RequirementGroup) GroupState {
	anySubmitted := false
	anyPending := false
	anyRejected := false

	for _, docType := range group.Types {
		candidates := byType[docType]
		if len(candidates) == 0 {
			continue
		}
		anySubmitted = true

		doc := selectRelevant(candidates)
		switch doc.Status {
		case models.VerificationApproved:
			return GroupCompleted
		case models.VerificationRejected, models.VerificationResubmissionRequired:
			anyRejected = true
		default:
			anyPending = true
		}
	}

	switch {
	case anyPending:
		return GroupPending
	case anyRejected:
		return GroupRejected
	case anySubmitted:
		// Selection always lands on approved, pending or rejected, so this
		// branch is unreachable; keep missing as the safe answer.
		return GroupMissing
	default:
		return GroupMissing
	}
}

// selectRelevant picks the instance that counts for a type: an approved one
// first, then the latest primary, then the latest of any flag.
func selectRelevant(candidates []*models.Document) *models.Document {
	var approved, latestPrimary, latest *models.Document
	for _, doc := range candidates {
		if doc.Status == models.VerificationApproved {
			if approved == nil || doc.CreatedAt.After(approved.CreatedAt) {
				approved = doc
			}
		}
		if doc.IsPrimary {
			if latestPrimary == nil || doc.CreatedAt.After(latestPrimary.CreatedAt) {
				latestPrimary = doc
			}
		}
		if latest == nil || doc.CreatedAt.After(latest.CreatedAt) {
			latest = doc
		}
	}
	if approved != nil {
		return approved
	}
	if latestPrimary != nil {
		return latestPrimary
	}
	return latest
}
