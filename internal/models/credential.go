// Package models defines data structures and domain types.
package models

import "time"

// Credential is the bearer token set obtained from the magic-link exchange.
// It is replaced atomically on refresh, never mutated in place.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the access token is usable, leaving skew headroom
// before the actual expiry.
func (c *Credential) Valid(skew time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return time.Now().Add(skew).Before(c.ExpiresAt)
}
