package domain

import (
	"context"
	"time"
)

// Credentials is an opaque bearer token plus its expiry.
type Credentials struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
}

// Expired reports whether the credentials are past (or within skew of) expiry.
func (c Credentials) Expired(skew time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(skew).After(c.Expiry)
}

// Authorizer yields credentials for the mail and calendar backends,
// refreshing them as needed.
type Authorizer interface {
	// Token returns valid credentials, refreshing if the cached ones expired.
	Token(ctx context.Context) (Credentials, error)
}
