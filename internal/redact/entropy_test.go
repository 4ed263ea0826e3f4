package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memvault/memvault/internal/model"
)

func TestShannonRepeatedChars(t *testing.T) {
	// A constant string carries no information.
	assert.Equal(t, 0.0, Shannon("aaaaaaaaaa"))
	assert.Less(t, Shannon("aaaaaaaaaa"), 3.5)
}

func TestShannonRandomToken(t *testing.T) {
	// 40 distinct characters: entropy is log2(40) ~= 5.32 bits/char,
	// above the secrets threshold.
	token := "kZ8q3Wf0TxN5vJ2mYh7RbL4cPd9GsE6uA1DoHiXw"
	assert.Greater(t, Shannon(token), 5.0)
}

func TestCheckRespectsMinLength(t *testing.T) {
	d := NewEntropyDetector(0, nil)

	flagged, score := d.Check("kZ8q3Wf0TxN5vJ2mYh7RbL4cPd9GsE6uA1DoHiXw", model.TierSecrets)
	assert.True(t, flagged)
	assert.Greater(t, score, 5.0)

	// Below the 20-char minimum: never evaluated.
	flagged, score = d.Check("kZ8q3Wf0TxN", model.TierPublic)
	assert.False(t, flagged)
	assert.Equal(t, 0.0, score)
}

func TestDetectFindsEmbeddedToken(t *testing.T) {
	d := NewEntropyDetector(0, nil)
	text := "deploy notes: token kZ8q3Wf0TxN5vJ2mYh7RbL4cPd9GsE6uA1DoHiXw expires friday"

	spans, max := d.Detect(text, model.TierInternal)
	assert.Len(t, spans, 1)
	assert.Equal(t, KindHighEntropy, spans[0].Kind)
	assert.Equal(t, "kZ8q3Wf0TxN5vJ2mYh7RbL4cPd9GsE6uA1DoHiXw", text[spans[0].Start:spans[0].End])
	assert.Greater(t, max, 5.0)
}

func TestDetectSkipsPlaceholderTokens(t *testing.T) {
	// Placeholders this pipeline emits carry enough entropy to clear the
	// public threshold; they must never become candidates themselves.
	d := NewEntropyDetector(0, nil)

	spans, _ := d.Detect("session <REDACTED_HIGH_ENTROPY> resumed", model.TierPublic)
	assert.Empty(t, spans)

	spans, _ = d.Detect("token <REDACTED_GITHUB_TOKEN> rotated", model.TierPublic)
	assert.Empty(t, spans)

	flagged, score := d.Check("REDACTED_HIGH_ENTROPY", model.TierPublic)
	assert.False(t, flagged)
	assert.Equal(t, 0.0, score)
}

func TestDetectIgnoresProse(t *testing.T) {
	d := NewEntropyDetector(0, nil)
	spans, _ := d.Detect("the quick brown fox jumps over the lazy dog", model.TierPublic)
	assert.Empty(t, spans)
}

func TestThresholdFallsBackToPublic(t *testing.T) {
	d := NewEntropyDetector(0, nil)
	assert.Equal(t, 3.5, d.Threshold("bogus"))
	assert.Equal(t, 5.0, d.Threshold(model.TierSecrets))
}
