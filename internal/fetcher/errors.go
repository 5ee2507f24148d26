package fetcher

import (
	"errors"
	"fmt"
)

// ErrAPIKeyMissing means no Gemini API key is configured. The fetch is
// rejected before any cache or network access happens.
var ErrAPIKeyMissing = errors.New("gemini API key is not configured (set SUREODDS_GEMINI_API_KEY or gemini.api_key)")

// ErrNoPicks means the model replied with a well-formed but empty list,
// usually because no fixtures matched the criteria today.
var ErrNoPicks = errors.New("no suitable matches found, try again later")

// MalformedResponseError means the model reply could not be turned into
// predictions: no JSON array present, unparseable JSON, or an entry that
// fails validation.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid prediction data (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid prediction data (%s)", e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// RateLimitError replaces a raw quota error with a message the UI can show
// as-is. The original error stays reachable through Unwrap.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return "the prediction service has hit its request limit, wait a minute or two and try again"
}

func (e *RateLimitError) Unwrap() error { return e.Err }
