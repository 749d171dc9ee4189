package authrelay

import "strings"

// ScopeList is a set of Twitch OAuth scopes to be requested during an
// authorization code grant flow
type ScopeList []string

// Scopes declares all of the OAuth scopes that our app requests when a user
// connects their Twitch account
var Scopes = ScopeList{
	"user_read",
	"channel:bot",
	"user:read:chat",
	"user:write:chat",
	"moderator:manage:announcements",
}

// Join renders the scope list in the space-delimited format expected by the
// Twitch authorization and token endpoints
func (s ScopeList) Join() string {
	return strings.Join(s, " ")
}
