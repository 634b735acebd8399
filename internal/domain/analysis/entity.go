package analysis

import "time"

// Type enum
type Type string

const (
	TypeCodeExplanation Type = "code_explanation"
	TypeAttackScenario  Type = "attack_scenario"
	TypeMitigation      Type = "mitigation"
)

// Valid reports whether t is one of the supported analysis types.
func (t Type) Valid() bool {
	switch t {
	case TypeCodeExplanation, TypeAttackScenario, TypeMitigation:
		return true
	}
	return false
}

// Key identifies one cache slot: at most one live entry per key.
type Key struct {
	FunctionID   int64  `json:"function_id"`
	AnalysisType Type   `json:"analysis_type"`
	Model        string `json:"model"`
}

// CacheEntry is a stored, TTL-bounded analysis result. Expiry is checked
// lazily at read time; an expired entry is overwritten on the next miss.
type CacheEntry struct {
	Key        Key       `json:"key"`
	Result     string    `json:"result"`
	TokenUsage int       `json:"token_usage"`
	Cost       float64   `json:"cost_usd"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Live reports whether the entry is still visible at the given instant.
func (e *CacheEntry) Live(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Result of GetOrCompute: the analysis text plus whether it was served from
// cache without touching the budget or the provider.
type Result struct {
	Key        Key       `json:"key"`
	Result     string    `json:"result"`
	TokenUsage int       `json:"token_usage"`
	Cached     bool      `json:"cached"`
	CreatedAt  time.Time `json:"created_at"`
}
