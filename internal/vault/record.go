package vault

import "time"

// Record is the token bundle stored for one account. A record with a
// non-empty RefreshToken can always be refreshed; one without is dead once
// Expiry passes.
type Record struct {
	AccountID     string    `json:"account_id"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	TokenEndpoint string    `json:"token_endpoint"`
	ClientID      string    `json:"client_id"`
	ClientSecret  string    `json:"client_secret"`
	Scopes        []string  `json:"scopes"`
	Expiry        time.Time `json:"expiry"`
}

// Expired reports whether the record's access token has expired at the
// given instant. A zero Expiry means the token has no known expiry and is
// treated as live.
func (r Record) Expired(now time.Time) bool {
	return !r.Expiry.IsZero() && !now.Before(r.Expiry)
}
