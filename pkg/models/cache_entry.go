package models

import "time"

// CostTier is a bucket of generative-model expense used to route tasks
type CostTier string

const (
	TierEconomy  CostTier = "economy"
	TierStandard CostTier = "standard"
	TierPremium  CostTier = "premium"
)

// Valid reports whether the tier is one of the known buckets
func (t CostTier) Valid() bool {
	switch t {
	case TierEconomy, TierStandard, TierPremium:
		return true
	}
	return false
}

// CacheEntry is a stored generation response addressed by its digest key
type CacheEntry struct {
	Key            string    `json:"key"`
	CostTier       CostTier  `json:"cost_tier"`
	Payload        []byte    `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int64     `json:"access_count"`
}
