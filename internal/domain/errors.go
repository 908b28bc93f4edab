package domain

import "errors"

// Error kinds for the dispatch pipeline. Handlers match these with
// errors.Is and map each to a user-visible reply; anything unmatched
// falls back to the generic apology.
var (
	ErrUnauthenticated     = errors.New("unauthenticated sender")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrSubscriptionExpired = errors.New("subscription expired")
	ErrBackendTimeout      = errors.New("backend timed out")
	ErrBackendUnavailable  = errors.New("backend unavailable")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrMediaDownload       = errors.New("media download failed")
	ErrConfiguration       = errors.New("missing configuration record")
	ErrResponseTooLong     = errors.New("response too long for provider")
)
