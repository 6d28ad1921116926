package analysis

import "errors"

// Common errors returned by the analysis package
var (
	// ErrAnalysisFailed is returned when analysis fails for any general reason
	ErrAnalysisFailed = errors.New("failed to analyze payload")

	// ErrInvalidResponse is returned when the provider response cannot be parsed or is empty
	ErrInvalidResponse = errors.New("invalid response from analysis provider")

	// ErrContentBlocked is returned when the provider refuses the content on safety grounds
	ErrContentBlocked = errors.New("content blocked by analysis provider safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during analysis")

	// ErrInvalidConfig is returned when the analyzer configuration is invalid
	ErrInvalidConfig = errors.New("invalid analyzer configuration")
)
