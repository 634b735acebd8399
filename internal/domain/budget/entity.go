package budget

import "time"

// LedgerEntry is one calendar day of analysis spend. Values only grow within
// a day; a new day simply starts a new row.
type LedgerEntry struct {
	Day          string    `json:"day"` // YYYY-MM-DD in the configured zone
	TotalCost    float64   `json:"total_cost"`
	TotalTokens  int64     `json:"total_tokens"`
	RequestCount int64     `json:"request_count"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Reservation is the token returned by CheckAndReserve. The estimated cost is
// already charged to the ledger; Commit reconciles it against actual figures
// and Release backs it out entirely.
type Reservation struct {
	ID        string  `json:"id"`
	Day       string  `json:"day"`
	Estimated float64 `json:"estimated_cost"`
}
