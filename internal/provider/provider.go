// Package provider defines the storage backend contract and its
// implementations. Exactly four error kinds cross this boundary.
package provider

import (
	"context"
	"errors"

	"github.com/memvault/memvault/internal/model"
)

// Sentinel errors. Implementations wrap backend faults into one of these;
// nothing else crosses the interface boundary. Caller cancellation is passed
// through untranslated so it is never mistaken for a provider fault.
var (
	ErrTimeout     = errors.New("provider timeout")
	ErrUnavailable = errors.New("provider unavailable")
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
)

// RecallParams holds parameters for querying memories.
type RecallParams struct {
	OwnerID string
	Scope   string
	Query   string
	Limit   int
}

// ListParams holds parameters for listing memories.
type ListParams struct {
	OwnerID string
	Scope   string
	Tier    string
	Limit   int
}

// MemoryProvider is the narrow contract every storage backend satisfies.
// Implementations are interchangeable from the substrate's perspective.
type MemoryProvider interface {
	// Remember persists an item and returns its id.
	Remember(ctx context.Context, item *model.MemoryItem) (string, error)

	// Recall returns items matching the query, newest first.
	Recall(ctx context.Context, p RecallParams) ([]model.MemoryItem, error)

	// List returns items for an owner with optional filters.
	List(ctx context.Context, p ListParams) ([]model.MemoryItem, error)

	// Delete removes an item. Returns false when the id does not exist.
	Delete(ctx context.Context, id string) (bool, error)

	// HealthCheck is a cheap probe of backend availability.
	HealthCheck(ctx context.Context) error

	Close() error
}
