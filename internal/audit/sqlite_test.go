package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/model"
)

func newTestLogger(t *testing.T) *SQLiteLogger {
	t.Helper()
	l, err := NewSQLiteLogger(filepath.Join(t.TempDir(), "audit.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndRecall(t *testing.T) {
	ctx := context.Background()
	l := newTestLogger(t)

	l.Record(ctx, &model.RedactionAudit{
		OwnerID:          "user-1",
		RequestID:        "req-1",
		RedactionApplied: true,
		RedactionTypes:   []string{"pattern"},
		SensitivityTier:  model.TierConfidential,
		PatternsMatched:  []string{"aws_access_key"},
		EntropyScore:     4.2,
		OriginalLength:   24,
		RedactedLength:   22,
	})

	got, err := l.ByRequestID(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].RedactionApplied)
	assert.Equal(t, []string{"aws_access_key"}, got[0].PatternsMatched)
	assert.Equal(t, model.TierConfidential, got[0].SensitivityTier)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestRecordNoOpRedaction(t *testing.T) {
	// No-op redactions still produce exactly one record.
	ctx := context.Background()
	l := newTestLogger(t)

	l.Record(ctx, &model.RedactionAudit{
		OwnerID:         "user-1",
		RequestID:       "req-2",
		SensitivityTier: model.TierPublic,
		OriginalLength:  10,
		RedactedLength:  10,
	})

	got, err := l.ByRequestID(ctx, "req-2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].RedactionApplied)
}

func TestRecordFailureDoesNotPropagate(t *testing.T) {
	ctx := context.Background()
	l := newTestLogger(t)
	require.NoError(t, l.db.Close())

	// Closed database: Record must swallow the failure and count it.
	l.Record(ctx, &model.RedactionAudit{OwnerID: "u", RequestID: "r", SensitivityTier: model.TierPublic})
	assert.Equal(t, int64(1), l.ErrorCount())
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	l := newTestLogger(t)

	for _, id := range []string{"a", "b", "c"} {
		l.Record(ctx, &model.RedactionAudit{OwnerID: "u", RequestID: id, SensitivityTier: model.TierPublic})
	}

	got, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
