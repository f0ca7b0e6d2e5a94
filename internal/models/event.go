package models

import "time"

// Claim lifecycle event names published on the notification channel
const (
	EventClaimCreated = "claimCreated"
	EventClaimUpdated = "claimUpdated"
	EventClaimDeleted = "claimDeleted"
	EventWelcome      = "welcome"
)

// Event is a single notification. Claim events carry either the full record
// or, for deletions, only the id. Explicit emits use Data.
type Event struct {
	Type      string    `json:"type"`
	Claim     *Claim    `json:"claim,omitempty"`
	ClaimID   string    `json:"claimId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
