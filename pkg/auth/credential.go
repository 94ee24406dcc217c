package auth

import "time"

// SafetyMargin is subtracted from the expiry when deciding whether a
// credential is still usable, so a token is never presented to the
// platform moments before it expires.
const SafetyMargin = 5 * time.Minute

// Credential is a bearer token together with its expiry. It is an
// immutable value: renewal produces a new Credential, it never mutates
// an existing one.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Usable reports whether the credential can still authenticate a call
// at the given instant, honoring the safety margin.
func (c Credential) Usable(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	return now.Before(c.ExpiresAt.Add(-SafetyMargin))
}

// IsZero reports whether no credential has been obtained yet.
func (c Credential) IsZero() bool {
	return c.Token == "" && c.ExpiresAt.IsZero()
}
