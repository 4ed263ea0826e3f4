// Package audit persists the immutable redaction audit trail.
package audit

import (
	"context"

	"github.com/memvault/memvault/internal/model"
)

// Logger records one audit event per redaction invocation. Record is
// fire-and-forget: persistence failures must never fail the enclosing write.
type Logger interface {
	Record(ctx context.Context, a *model.RedactionAudit)

	// ErrorCount reports how many records failed to persist.
	ErrorCount() int64

	Close() error
}
