package budget

import "errors"

// ErrExceeded indicates the daily budget would be overshot by the request.
// The ledger is left untouched when this is returned.
var ErrExceeded = errors.New("daily analysis budget exceeded")
