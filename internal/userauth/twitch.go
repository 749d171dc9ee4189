package userauth

import (
	"fmt"
	"net/http"

	"github.com/nicklaw5/helix/v2"

	"github.com/gdlqbot/authrelay"
)

// TwitchClient represents the subset of Twitch API client functionality used
// to exchange an authorization code for tokens and resolve the identity of
// the user who granted them
type TwitchClient interface {
	RequestUserAccessToken(code string) (*helix.UserAccessTokenResponse, error)
	SetUserAccessToken(token string)
	GetUsers(params *helix.UsersParams) (*helix.UsersResponse, error)
}

// exchangeCode redeems an authorization code at the Twitch token endpoint and
// builds a credential from the result, enriched with the login and user ID of
// the granting user. The returned error may carry details from the Twitch API
// response; it is for server-side diagnostics only and must never be written
// back to the browser.
func exchangeCode(c TwitchClient, code string) (*authrelay.Credential, error) {
	r, err := c.RequestUserAccessToken(code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if r.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("got response %d from RequestUserAccessToken request: %s", r.StatusCode, r.ErrorMessage)
	}

	// Authenticate as the granting user to resolve their own identity: with
	// no lookup params, GetUsers describes the owner of the access token
	c.SetUserAccessToken(r.Data.AccessToken)
	u, err := c.GetUsers(&helix.UsersParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to get user details: %w", err)
	}
	if u.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("got response %d from GetUsers request: %s", u.StatusCode, u.ErrorMessage)
	}
	if len(u.Data.Users) == 0 {
		return nil, fmt.Errorf("got empty user list from GetUsers request")
	}

	user := u.Data.Users[0]
	return &authrelay.Credential{
		AccessToken:  r.Data.AccessToken,
		RefreshToken: r.Data.RefreshToken,
		Username:     user.Login,
		UserId:       user.ID,
	}, nil
}
