package marketdata

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when the provider signalled throttling or the
// sticky cooldown is still active. It aborts the whole run that hit it.
var ErrRateLimited = errors.New("price provider rate limit exceeded")

// ErrNoAPIKey is returned when neither the user nor the shared configuration
// provides a provider key. It is a hard stop for price jobs.
var ErrNoAPIKey = errors.New("no price provider api key configured")

// InvalidSymbolError is a non-retryable domain error for a single security;
// callers flag the security and continue with the next one.
type InvalidSymbolError struct {
	Symbol string
	Reason string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("invalid symbol %q: %s", e.Symbol, e.Reason)
}
