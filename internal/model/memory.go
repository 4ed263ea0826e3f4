// Package model defines the core memory data types.
package model

import "time"

// MemoryItem represents a stored memory record. Content is always
// post-redaction: raw input never reaches a storage backend.
type MemoryItem struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	Scope            string    `json:"scope"`
	Content          string    `json:"content"`
	SensitivityTier  string    `json:"sensitivity_tier"`
	RedactionApplied bool      `json:"redaction_applied"`
	EntropyScore     *float64  `json:"entropy_score,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ValidScopes are the allowed memory scopes.
var ValidScopes = map[string]bool{
	"personal":     true,
	"team":         true,
	"organization": true,
}
