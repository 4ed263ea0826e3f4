package model

// Sensitivity tiers, least to most restrictive.
const (
	TierPublic       = "public"
	TierInternal     = "internal"
	TierConfidential = "confidential"
	TierRestricted   = "restricted"
	TierSecrets      = "secrets"
)

// tierRank orders tiers for comparison. Unknown tiers rank below public.
var tierRank = map[string]int{
	TierPublic:       0,
	TierInternal:     1,
	TierConfidential: 2,
	TierRestricted:   3,
	TierSecrets:      4,
}

// ValidTiers are the allowed sensitivity tiers.
var ValidTiers = map[string]bool{
	TierPublic:       true,
	TierInternal:     true,
	TierConfidential: true,
	TierRestricted:   true,
	TierSecrets:      true,
}

// TierAtLeast reports whether tier is at or above min in restrictiveness.
func TierAtLeast(tier, min string) bool {
	return tierRank[tier] >= tierRank[min]
}
