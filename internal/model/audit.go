package model

import "time"

// RedactionAudit is one immutable audit record per redaction invocation,
// including invocations where nothing was redacted.
type RedactionAudit struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	OwnerID          string    `json:"owner_id"`
	ContextID        string    `json:"context_id,omitempty"`
	RequestID        string    `json:"request_id"`
	RedactionApplied bool      `json:"redaction_applied"`
	RedactionTypes   []string  `json:"redaction_types,omitempty"`
	SensitivityTier  string    `json:"sensitivity_tier"`
	PatternsMatched  []string  `json:"patterns_matched,omitempty"`
	EntropyScore     float64   `json:"entropy_score"`
	OriginalLength   int       `json:"original_length"`
	RedactedLength   int       `json:"redacted_length"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
}
