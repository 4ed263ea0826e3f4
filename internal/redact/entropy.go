// Package redact implements the sensitivity-aware redaction pipeline:
// entropy scoring, pattern matching, and tier-based span replacement.
package redact

import (
	"math"
	"regexp"
	"strings"

	"github.com/memvault/memvault/internal/model"
)

// placeholderShape matches tokens this pipeline emits as redaction
// placeholders. Such tokens are never entropy candidates, so reprocessing
// already-sanitized output is a no-op.
var placeholderShape = regexp.MustCompile(`^<?[A-Z][A-Z_]*>?$`)

// DefaultMinTokenLength is the shortest token considered for entropy scoring.
// Embedded secrets are typically contiguous tokens; short tokens produce
// unstable entropy estimates.
const DefaultMinTokenLength = 20

// DefaultEntropyThresholds returns the per-tier entropy cutoffs in bits/char.
func DefaultEntropyThresholds() map[string]float64 {
	return map[string]float64{
		model.TierPublic:       3.5,
		model.TierInternal:     4.0,
		model.TierConfidential: 4.5,
		model.TierRestricted:   4.5,
		model.TierSecrets:      5.0,
	}
}

// EntropyDetector flags high-entropy tokens as likely secrets.
type EntropyDetector struct {
	minLength  int
	thresholds map[string]float64
}

// NewEntropyDetector creates a detector. Zero minLength and nil thresholds
// fall back to defaults.
func NewEntropyDetector(minLength int, thresholds map[string]float64) *EntropyDetector {
	if minLength <= 0 {
		minLength = DefaultMinTokenLength
	}
	if thresholds == nil {
		thresholds = DefaultEntropyThresholds()
	}
	return &EntropyDetector{minLength: minLength, thresholds: thresholds}
}

// Threshold returns the entropy cutoff for a tier. Unknown tiers get the
// public cutoff (least restrictive).
func (d *EntropyDetector) Threshold(tier string) float64 {
	if t, ok := d.thresholds[tier]; ok {
		return t
	}
	return d.thresholds[model.TierPublic]
}

// Shannon computes Shannon entropy in bits per character over the rune
// distribution of s.
func Shannon(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	total := 0
	for _, r := range s {
		freq[r]++
		total++
	}
	var h float64
	for _, n := range freq {
		p := float64(n) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

// Check evaluates a single token against the tier threshold.
func (d *EntropyDetector) Check(token, tier string) (bool, float64) {
	if len(token) < d.minLength || placeholderShape.MatchString(token) {
		return false, 0
	}
	score := Shannon(token)
	return score > d.Threshold(tier), score
}

// Detect scans whitespace/punctuation-delimited tokens and returns spans for
// every token whose entropy exceeds the tier threshold, plus the highest
// score observed across all candidate tokens.
func (d *EntropyDetector) Detect(text, tier string) ([]Span, float64) {
	var spans []Span
	var maxScore float64

	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		token := text[start:end]
		if len(token) >= d.minLength && !placeholderShape.MatchString(token) {
			score := Shannon(token)
			if score > maxScore {
				maxScore = score
			}
			if score > d.Threshold(tier) {
				spans = append(spans, Span{
					Start:       start,
					End:         end,
					Kind:        KindHighEntropy,
					Placeholder: PlaceholderHighEntropy,
				})
			}
		}
		start = -1
	}

	for i, r := range text {
		if isTokenDelimiter(r) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(text))

	return spans, maxScore
}

// isTokenDelimiter splits candidate tokens. Characters common inside
// credential-shaped strings (=, :, /, ., -, _) do not split.
func isTokenDelimiter(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return strings.ContainsRune("\"'`,;()[]{}<>|", r)
}
