// Package memory implements the write and recall pipeline: validation,
// redaction, audit, then storage through the substrate.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/memvault/memvault/internal/audit"
	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/provider"
	"github.com/memvault/memvault/internal/redact"
)

// MaxContentBytes caps raw input size. Oversized content is rejected before
// any detector or provider work happens.
const MaxContentBytes = 1 << 20

// Substrate is the storage routing layer the service writes through.
type Substrate interface {
	Write(ctx context.Context, item *model.MemoryItem) (string, error)
	Read(ctx context.Context, p provider.RecallParams) ([]model.MemoryItem, error)
	List(ctx context.Context, p provider.ListParams) ([]model.MemoryItem, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// WriteParams are the inputs for one memory write.
type WriteParams struct {
	OwnerID         string
	Scope           string
	Content         string
	SensitivityTier string
	ContextID       string
}

// WriteResult reports what was stored and what the pipeline did to it.
type WriteResult struct {
	ID               string   `json:"id"`
	RequestID        string   `json:"request_id"`
	SensitivityTier  string   `json:"sensitivity_tier"`
	RedactionApplied bool     `json:"redaction_applied"`
	RedactionTypes   []string `json:"redaction_types,omitempty"`
	PatternsMatched  []string `json:"patterns_matched,omitempty"`
}

// Service is the memory pipeline facade. Every write is redacted and audited
// before it reaches a storage backend; raw content is never persisted.
type Service struct {
	processor *redact.Processor
	auditor   audit.Logger
	substrate Substrate
	log       *logrus.Logger
}

// NewService creates the pipeline over the given stages.
func NewService(processor *redact.Processor, auditor audit.Logger, substrate Substrate, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		processor: processor,
		auditor:   auditor,
		substrate: substrate,
		log:       log,
	}
}

// Write validates, redacts, audits, and stores one memory. The audit record
// is written before storage is attempted, so a storage outage still leaves a
// trace of the redaction decision.
func (s *Service) Write(ctx context.Context, p WriteParams) (*WriteResult, error) {
	if err := validateWrite(p); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	res := s.processor.Process(p.Content, p.SensitivityTier)

	s.auditor.Record(ctx, &model.RedactionAudit{
		Timestamp:        time.Now().UTC(),
		OwnerID:          p.OwnerID,
		ContextID:        p.ContextID,
		RequestID:        requestID,
		RedactionApplied: res.Applied,
		RedactionTypes:   res.RedactionTypes,
		SensitivityTier:  p.SensitivityTier,
		PatternsMatched:  res.PatternsMatched,
		EntropyScore:     res.EntropyScore,
		OriginalLength:   len(p.Content),
		RedactedLength:   len(res.RedactedText),
		ProcessingTimeMs: res.ProcessingTimeMs,
	})

	item := &model.MemoryItem{
		OwnerID:          p.OwnerID,
		Scope:            p.Scope,
		Content:          res.RedactedText,
		SensitivityTier:  p.SensitivityTier,
		RedactionApplied: res.Applied,
		CreatedAt:        time.Now().UTC(),
	}
	if res.EntropyScore > 0 {
		score := res.EntropyScore
		item.EntropyScore = &score
	}

	id, err := s.substrate.Write(ctx, item)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"component":  "memory",
			"request_id": requestID,
			"owner_id":   p.OwnerID,
		}).WithError(err).Error("memory write failed after redaction")
		return nil, fmt.Errorf("store memory: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"component":  "memory",
		"request_id": requestID,
		"memory_id":  id,
		"tier":       p.SensitivityTier,
		"redacted":   res.Applied,
	}).Info("memory stored")

	return &WriteResult{
		ID:               id,
		RequestID:        requestID,
		SensitivityTier:  p.SensitivityTier,
		RedactionApplied: res.Applied,
		RedactionTypes:   res.RedactionTypes,
		PatternsMatched:  res.PatternsMatched,
	}, nil
}

// Recall returns stored memories matching the query. Content comes back as
// stored, already sanitized.
func (s *Service) Recall(ctx context.Context, p provider.RecallParams) ([]model.MemoryItem, error) {
	if p.OwnerID == "" {
		return nil, fmt.Errorf("owner_id is required: %w", provider.ErrValidation)
	}
	if p.Scope != "" && !model.ValidScopes[p.Scope] {
		return nil, fmt.Errorf("invalid scope %q: %w", p.Scope, provider.ErrValidation)
	}
	return s.substrate.Read(ctx, p)
}

// List enumerates an owner's memories, optionally filtered by scope and tier.
func (s *Service) List(ctx context.Context, p provider.ListParams) ([]model.MemoryItem, error) {
	if p.OwnerID == "" {
		return nil, fmt.Errorf("owner_id is required: %w", provider.ErrValidation)
	}
	if p.Scope != "" && !model.ValidScopes[p.Scope] {
		return nil, fmt.Errorf("invalid scope %q: %w", p.Scope, provider.ErrValidation)
	}
	if p.Tier != "" && !model.ValidTiers[p.Tier] {
		return nil, fmt.Errorf("invalid tier %q: %w", p.Tier, provider.ErrValidation)
	}
	return s.substrate.List(ctx, p)
}

// Delete removes one memory by id.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("id is required: %w", provider.ErrValidation)
	}
	return s.substrate.Delete(ctx, id)
}

func validateWrite(p WriteParams) error {
	if p.OwnerID == "" {
		return fmt.Errorf("owner_id is required: %w", provider.ErrValidation)
	}
	if !model.ValidScopes[p.Scope] {
		return fmt.Errorf("invalid scope %q: %w", p.Scope, provider.ErrValidation)
	}
	if !model.ValidTiers[p.SensitivityTier] {
		return fmt.Errorf("invalid sensitivity tier %q: %w", p.SensitivityTier, provider.ErrValidation)
	}
	if p.Content == "" {
		return fmt.Errorf("content is required: %w", provider.ErrValidation)
	}
	if len(p.Content) > MaxContentBytes {
		return fmt.Errorf("content exceeds %d bytes: %w", MaxContentBytes, provider.ErrValidation)
	}
	return nil
}
