package redact

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/memvault/memvault/internal/model"
)

// Span kinds produced by the detectors.
const (
	KindHighEntropy = "high_entropy"

	PlaceholderHighEntropy = "<REDACTED_HIGH_ENTROPY>"
	// PlaceholderContent replaces the entire field for mandatory redaction
	// (secrets tier) and fail-closed handling.
	PlaceholderContent = "<REDACTED_CONTENT>"
)

// Span is a half-open [Start, End) byte range matched by a detector.
type Span struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Kind        string `json:"kind"`
	Placeholder string `json:"placeholder"`
}

// Pattern is one named signature in the registry. MinTier is the lowest tier
// at which the pattern fires; lower tiers skip it.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	MinTier     string
	Placeholder string
}

// PatternSeed is the declarative form used by configuration.
type PatternSeed struct {
	Name        string `toml:"name" mapstructure:"name"`
	Regex       string `toml:"regex" mapstructure:"regex"`
	MinTier     string `toml:"min_tier" mapstructure:"min_tier"`
	Placeholder string `toml:"placeholder" mapstructure:"placeholder"`
}

// defaultPatterns seeds the registry. The list is data, not a closed set;
// config can append to it.
func defaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "aws_access_key",
			Regex:       regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
			MinTier:     model.TierPublic,
			Placeholder: "<REDACTED_AWS_KEY>",
		},
		{
			Name:        "private_key",
			Regex:       regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
			MinTier:     model.TierPublic,
			Placeholder: "<REDACTED_PRIVATE_KEY>",
		},
		{
			Name:        "bearer_token",
			Regex:       regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]{16,}=*`),
			MinTier:     model.TierPublic,
			Placeholder: "<REDACTED_BEARER_TOKEN>",
		},
		{
			Name:        "jwt",
			Regex:       regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`),
			MinTier:     model.TierPublic,
			Placeholder: "<REDACTED_JWT>",
		},
		{
			Name:        "db_url",
			Regex:       regexp.MustCompile(`\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^\s"']+`),
			MinTier:     model.TierPublic,
			Placeholder: "<REDACTED_DB_URL>",
		},
		{
			Name:        "slack_token",
			Regex:       regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
			MinTier:     model.TierPublic,
			Placeholder: "<REDACTED_SLACK_TOKEN>",
		},
		{
			Name:        "github_token",
			Regex:       regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
			MinTier:     model.TierPublic,
			Placeholder: "<REDACTED_GITHUB_TOKEN>",
		},
		{
			Name:        "credential_assignment",
			Regex:       regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret[_-]?key|auth[_-]?token|passwd|password)\s*[=:]\s*\S{8,}`),
			MinTier:     model.TierInternal,
			Placeholder: "<REDACTED_CREDENTIAL>",
		},
		{
			Name:        "email",
			Regex:       regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			MinTier:     model.TierConfidential,
			Placeholder: "<REDACTED_EMAIL>",
		},
	}
}

// PatternDetector matches a named registry of signatures against text.
type PatternDetector struct {
	patterns []Pattern
}

// NewPatternDetector builds a detector from the default registry plus any
// extra seeds from configuration.
func NewPatternDetector(extra ...PatternSeed) (*PatternDetector, error) {
	d := &PatternDetector{patterns: defaultPatterns()}
	for _, seed := range extra {
		p, err := compileSeed(seed)
		if err != nil {
			return nil, err
		}
		d.patterns = append(d.patterns, p)
	}
	return d, nil
}

func compileSeed(seed PatternSeed) (Pattern, error) {
	if seed.Name == "" {
		return Pattern{}, fmt.Errorf("pattern seed missing name")
	}
	re, err := regexp.Compile(seed.Regex)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %s: %w", seed.Name, err)
	}
	minTier := seed.MinTier
	if minTier == "" {
		minTier = model.TierPublic
	}
	placeholder := seed.Placeholder
	if placeholder == "" {
		placeholder = "<REDACTED>"
	}
	return Pattern{Name: seed.Name, Regex: re, MinTier: minTier, Placeholder: placeholder}, nil
}

// Register appends a pattern to the registry.
func (d *PatternDetector) Register(p Pattern) {
	d.patterns = append(d.patterns, p)
}

// Detect returns an ordered list of non-overlapping matches for the given
// tier. On overlap the earlier match wins; ties prefer the longer match.
func (d *PatternDetector) Detect(text, tier string) []Span {
	var all []Span
	for _, p := range d.patterns {
		if !model.TierAtLeast(tier, p.MinTier) {
			continue
		}
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			all = append(all, Span{
				Start:       loc[0],
				End:         loc[1],
				Kind:        p.Name,
				Placeholder: p.Placeholder,
			})
		}
	}
	if len(all) == 0 {
		return nil
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End > all[j].End
	})

	out := all[:1]
	for _, s := range all[1:] {
		if s.Start < out[len(out)-1].End {
			continue
		}
		out = append(out, s)
	}
	return out
}
