package redact

import (
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/memvault/memvault/internal/model"
)

// Redaction type labels recorded in the audit trail.
const (
	TypePattern     = "pattern"
	TypeHighEntropy = "high_entropy"
	TypePartialMask = "partial_mask"
	TypeMandatory   = "mandatory"
	TypeFailClosed  = "fail_closed"
)

// Result is the outcome of one Process call.
type Result struct {
	RedactedText     string
	Redactions       []Span
	EntropyScore     float64
	ProcessingTimeMs float64
	Applied          bool
	PatternsMatched  []string
	RedactionTypes   []string
}

// Processor combines detector output with tier policy to produce sanitized
// text. It never returns an error: any internal detector failure redacts the
// whole input instead (fail closed), so unsanitized content cannot escape.
type Processor struct {
	entropy  *EntropyDetector
	patterns *PatternDetector
	log      *logrus.Logger
}

// NewProcessor creates a redaction processor.
func NewProcessor(entropy *EntropyDetector, patterns *PatternDetector, log *logrus.Logger) *Processor {
	if log == nil {
		log = logrus.New()
	}
	return &Processor{entropy: entropy, patterns: patterns, log: log}
}

// Process sanitizes text according to the sensitivity tier.
func (p *Processor) Process(text, tier string) (result Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logrus.Fields{
				"component": "redact",
				"tier":      tier,
				"panic":     r,
			}).Error("detector failure, failing closed")
			result = Result{
				RedactedText:     PlaceholderContent,
				Applied:          true,
				RedactionTypes:   []string{TypeFailClosed},
				ProcessingTimeMs: msSince(start),
			}
		}
	}()

	patternSpans := p.patterns.Detect(text, tier)
	entropySpans, maxEntropy := p.entropy.Detect(text, tier)

	spans := mergeSpans(patternSpans, entropySpans)

	patterns, types := classify(spans)

	// Mandatory redaction: at the secrets tier the entire field is replaced,
	// detector outcome notwithstanding.
	if tier == model.TierSecrets {
		return Result{
			RedactedText:     PlaceholderContent,
			Redactions:       spans,
			EntropyScore:     maxEntropy,
			Applied:          true,
			PatternsMatched:  patterns,
			RedactionTypes:   appendUnique(types, TypeMandatory),
			ProcessingTimeMs: msSince(start),
		}
	}

	redacted, types := applySpans(text, tier, spans, types)

	return Result{
		RedactedText:     redacted,
		Redactions:       spans,
		EntropyScore:     maxEntropy,
		Applied:          len(spans) > 0,
		PatternsMatched:  patterns,
		RedactionTypes:   types,
		ProcessingTimeMs: msSince(start),
	}
}

// mergeSpans combines both detectors' output into one ordered list.
// Pattern matches are more specific, so overlapping entropy spans are dropped.
func mergeSpans(patterns, entropy []Span) []Span {
	spans := make([]Span, 0, len(patterns)+len(entropy))
	spans = append(spans, patterns...)
	for _, e := range entropy {
		overlaps := false
		for _, m := range patterns {
			if e.Start < m.End && m.Start < e.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			spans = append(spans, e)
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// applySpans replaces each span left-to-right, preserving unmatched text
// verbatim. Emails at the confidential tier are partially masked rather than
// fully replaced; at restricted and above all PII spans get the placeholder.
func applySpans(text, tier string, spans []Span, types []string) (string, []string) {
	if len(spans) == 0 {
		return text, types
	}
	var b strings.Builder
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.Start])
		if s.Kind == "email" && tier == model.TierConfidential {
			b.WriteString(maskEmail(text[s.Start:s.End]))
			types = appendUnique(types, TypePartialMask)
		} else {
			b.WriteString(s.Placeholder)
		}
		last = s.End
	}
	b.WriteString(text[last:])
	return b.String(), types
}

// maskEmail keeps the first character of the local part and the domain:
// jane@example.com becomes j***@example.com. The masked form no longer
// matches the email signature, so reprocessing is a no-op.
func maskEmail(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at <= 0 {
		return "<REDACTED_EMAIL>"
	}
	return addr[:1] + "***" + addr[at:]
}

func classify(spans []Span) (patterns, types []string) {
	for _, s := range spans {
		if s.Kind == KindHighEntropy {
			types = appendUnique(types, TypeHighEntropy)
			continue
		}
		patterns = appendUnique(patterns, s.Kind)
		types = appendUnique(types, TypePattern)
	}
	return patterns, types
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
