package services

import "errors"

// BGG client error taxonomy. Pipelines and the task runner use errors.Is
// against these sentinels to decide between retry and terminal failure.
var (
	// ErrRateLimited means the call could not proceed inside the allowed
	// request budget. Internal to the client's retry loop, never surfaced.
	ErrRateLimited = errors.New("bgg: rate limited")

	// ErrRetryExhausted means the external service never produced a usable
	// response within the configured attempt ceiling
	ErrRetryExhausted = errors.New("bgg: retry attempts exhausted")

	// ErrAuthenticationFailed means the supplied credentials were rejected.
	// Terminal: retrying bad credentials never helps.
	ErrAuthenticationFailed = errors.New("bgg: authentication failed")

	// ErrMalformedResponse means the response body could not be parsed.
	// Record-scoped where possible so one bad record never aborts a batch.
	ErrMalformedResponse = errors.New("bgg: malformed response")

	// ErrPermanentClient covers 4xx responses other than auth and rate
	// limiting. Terminal, no retry.
	ErrPermanentClient = errors.New("bgg: permanent client error")

	// ErrTransientNetwork covers network failures and 5xx responses,
	// retryable with exponential backoff
	ErrTransientNetwork = errors.New("bgg: transient network error")

	// ErrMissingExternalMapping means an outbound submission was requested
	// for a play whose board game has no BGG id. Terminal precondition
	// failure, no retry.
	ErrMissingExternalMapping = errors.New("bgg: board game has no external mapping")
)

// IsTerminalError reports whether the error must not be retried
func IsTerminalError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrPermanentClient) ||
		errors.Is(err, ErrMissingExternalMapping)
}
