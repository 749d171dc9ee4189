package authrelay

// Credential holds the result of a completed authorization code grant: the
// tokens issued by Twitch, plus the identity of the user who granted access.
// The access and refresh tokens are secrets and must never appear in a
// response to the browser or in log output; they are only ever surfaced
// through the one-time handoff endpoint.
type Credential struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Username     string `json:"username,omitempty"`
	UserId       string `json:"userId,omitempty"`
}
