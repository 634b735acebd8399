package analysis

import "errors"

// ErrAnalysisFailed indicates the provider kept failing after the bounded
// retry attempts; the budget reservation has been released by then.
var ErrAnalysisFailed = errors.New("analysis failed")

// ErrUnknownType indicates an unsupported analysis type was requested.
var ErrUnknownType = errors.New("unknown analysis type")
