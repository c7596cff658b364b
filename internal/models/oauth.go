package models

import "time"

// TokenSet is an OAuth token pair. RefreshToken is always in sealed form;
// a newly fetched TokenSet replaces the stored one entirely, since the
// remote service rotates the refresh token on every use.
type TokenSet struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresIn    int64     `json:"expiresIn"`
	Scope        string    `json:"scope"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the access token expires within leeway of now.
func (t TokenSet) Expired(now time.Time, leeway time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(t.ExpiresAt)
}

// Site is a remote site a tenant has authorized.
type Site struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes"`
	AvatarURL string   `json:"avatarUrl,omitempty"`
}
