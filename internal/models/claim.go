package models

import (
	"fmt"
	"time"
)

// ClaimStatus is the lifecycle state of a claim
type ClaimStatus string

const (
	StatusPending  ClaimStatus = "pending"
	StatusApproved ClaimStatus = "approved"
	StatusRejected ClaimStatus = "rejected"
)

// ParseClaimStatus validates a status string
func ParseClaimStatus(s string) (ClaimStatus, error) {
	switch ClaimStatus(s) {
	case StatusPending, StatusApproved, StatusRejected:
		return ClaimStatus(s), nil
	default:
		return "", fmt.Errorf("invalid status %q", s)
	}
}

// Terminal reports whether no further transition is possible
func (s ClaimStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// Only pending -> approved and pending -> rejected exist.
func (s ClaimStatus) CanTransition(next ClaimStatus) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusApproved || next == StatusRejected
}

// Claim represents a reimbursement request submitted by a patient
type Claim struct {
	ID              string      `json:"id" bson:"_id"`
	PatientID       string      `json:"patient" bson:"patient"`
	Name            string      `json:"name" bson:"name"`
	Email           string      `json:"email" bson:"email"`
	ClaimAmount     float64     `json:"claimAmount" bson:"claim_amount"`
	Description     string      `json:"description" bson:"description"`
	DocumentKey     string      `json:"documentKey,omitempty" bson:"document_key,omitempty"`
	DocumentURL     string      `json:"documentUrl,omitempty" bson:"document_url,omitempty"`
	DocumentName    string      `json:"documentName,omitempty" bson:"document_name,omitempty"`
	DocumentType    string      `json:"documentType,omitempty" bson:"document_type,omitempty"`
	Status          ClaimStatus `json:"status" bson:"status"`
	ApprovedAmount  *float64    `json:"approvedAmount,omitempty" bson:"approved_amount,omitempty"`
	InsurerComments string      `json:"insurerComments,omitempty" bson:"insurer_comments,omitempty"`
	SubmissionDate  time.Time   `json:"submissionDate" bson:"submission_date"`
	LastUpdated     time.Time   `json:"lastUpdated" bson:"last_updated"`
}

// OwnedBy reports whether userID is the owning patient
func (c *Claim) OwnedBy(userID string) bool {
	return c.PatientID == userID
}

// HasDocument reports whether a document reference is attached
func (c *Claim) HasDocument() bool {
	return c.DocumentKey != ""
}

// ClaimFilter narrows claim listings. Zero values mean "no constraint".
type ClaimFilter struct {
	PatientID string
	Status    ClaimStatus
	From      *time.Time
	To        *time.Time
	MinAmount *float64
	MaxAmount *float64
}

// Decision is an insurer verdict on a pending claim
type Decision struct {
	Status          ClaimStatus `json:"status"`
	ApprovedAmount  *float64    `json:"approvedAmount"`
	InsurerComments string      `json:"insurerComments"`
}
