package marketdata

import "context"

// KeyResolver yields the provider API key for a user, falling back to an
// admin-shared key. Implementations return ErrNoAPIKey when neither exists.
type KeyResolver interface {
	APIKey(ctx context.Context, userID string) (string, error)
}

// StaticKeyResolver resolves keys from a fixed map with a shared fallback.
// Used in tests and as a wrapper around config-provided keys.
type StaticKeyResolver struct {
	PerUser map[string]string
	Shared  string
}

func (r StaticKeyResolver) APIKey(_ context.Context, userID string) (string, error) {
	if k, ok := r.PerUser[userID]; ok && k != "" {
		return k, nil
	}
	if r.Shared != "" {
		return r.Shared, nil
	}
	return "", ErrNoAPIKey
}
