package userauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/nicklaw5/helix/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdlqbot/authrelay"
	"github.com/gdlqbot/authrelay/internal/handoff"
)

type mockTwitchClient struct {
	tokenResponse *helix.UserAccessTokenResponse
	tokenErr      error
	usersResponse *helix.UsersResponse
	usersErr      error

	exchangedCodes  []string
	userAccessToken string
}

func (m *mockTwitchClient) RequestUserAccessToken(code string) (*helix.UserAccessTokenResponse, error) {
	m.exchangedCodes = append(m.exchangedCodes, code)
	if m.tokenErr != nil {
		return nil, m.tokenErr
	}
	return m.tokenResponse, nil
}

func (m *mockTwitchClient) SetUserAccessToken(token string) {
	m.userAccessToken = token
}

func (m *mockTwitchClient) GetUsers(params *helix.UsersParams) (*helix.UsersResponse, error) {
	if m.usersErr != nil {
		return nil, m.usersErr
	}
	return m.usersResponse, nil
}

func okTokenResponse(accessToken, refreshToken string) *helix.UserAccessTokenResponse {
	return &helix.UserAccessTokenResponse{
		ResponseCommon: helix.ResponseCommon{StatusCode: 200},
		Data: helix.AccessCredentials{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		},
	}
}

func okUsersResponse(id, login string) *helix.UsersResponse {
	return &helix.UsersResponse{
		ResponseCommon: helix.ResponseCommon{StatusCode: 200},
		Data: helix.ManyUsers{
			Users: []helix.User{
				{ID: id, Login: login},
			},
		},
	}
}

func newTestServer(store *handoff.Store, c *mockTwitchClient) *Server {
	return &Server{
		callbackUrl:    "https://my-cool-relay.com/auth/callback",
		clientUrl:      "http://localhost:24363",
		twitchClientId: "my-cool-client-id",
		scopes:         authrelay.Scopes,
		states:         newStateBuffer(),
		handoffs:       store,
		newTwitchClient: func(ctx context.Context) (TwitchClient, error) {
			return c, nil
		},
	}
}

func issueState(s *Server, value string) {
	s.states.mu.Lock()
	defer s.states.mu.Unlock()
	s.states.states = append(s.states.states, pendingState{
		value:     value,
		expiresAt: time.Now().Add(stateTtl),
	})
}

func Test_Server_handleInit(t *testing.T) {
	store, err := handoff.NewStore(time.Hour)
	require.NoError(t, err)
	defer store.Stop()
	s := newTestServer(store, &mockTwitchClient{})

	req := httptest.NewRequest(http.MethodGet, "/auth/init", nil)
	res := httptest.NewRecorder()
	s.handleInit(res, req)

	assert.Equal(t, 200, res.Code)
	var payload struct {
		Url   string `json:"url"`
		State string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	assert.NotEmpty(t, payload.State)

	u, err := url.Parse(payload.Url)
	require.NoError(t, err)
	assert.Equal(t, "id.twitch.tv", u.Host)
	assert.Equal(t, "/oauth2/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "my-cool-client-id", q.Get("client_id"))
	assert.Equal(t, "https://my-cool-relay.com/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, authrelay.Scopes.Join(), q.Get("scope"))
	assert.Equal(t, payload.State, q.Get("state"))
	assert.Equal(t, "true", q.Get("force_verify"))

	// The issued state must be redeemable exactly once
	assert.True(t, s.states.check(payload.State))
	assert.False(t, s.states.check(payload.State))
}

func Test_Server_handleCallback(t *testing.T) {
	tests := []struct {
		name              string
		issuedState       string
		query             string
		c                 *mockTwitchClient
		wantStatus        int
		wantBody          string
		wantExchangeCalls int
	}{
		{
			"missing code is rejected before any exchange",
			"abc123",
			"state=abc123",
			&mockTwitchClient{},
			400,
			`{"success":false,"error":"'code' and 'state' are required"}`,
			0,
		},
		{
			"missing state is rejected before any exchange",
			"abc123",
			"code=code1",
			&mockTwitchClient{},
			400,
			`{"success":false,"error":"'code' and 'state' are required"}`,
			0,
		},
		{
			"state we never issued is rejected before any exchange",
			"abc123",
			"code=code1&state=xyz999",
			&mockTwitchClient{},
			401,
			`{"success":false,"error":"state verification failed"}`,
			0,
		},
		{
			"provider rejecting the code yields a generic failure",
			"abc123",
			"code=bad&state=abc123",
			&mockTwitchClient{
				tokenResponse: &helix.UserAccessTokenResponse{
					ResponseCommon: helix.ResponseCommon{
						StatusCode:   400,
						ErrorMessage: "Invalid authorization code",
					},
				},
			},
			500,
			`{"success":false,"error":"authorization could not be completed"}`,
			1,
		},
		{
			"user lookup failure yields a generic failure",
			"abc123",
			"code=code1&state=abc123",
			&mockTwitchClient{
				tokenResponse: okTokenResponse("tok1", "ref1"),
				usersResponse: &helix.UsersResponse{
					ResponseCommon: helix.ResponseCommon{
						StatusCode:   401,
						ErrorMessage: "Invalid OAuth token",
					},
				},
			},
			500,
			`{"success":false,"error":"authorization could not be completed"}`,
			1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := handoff.NewStore(time.Hour)
			require.NoError(t, err)
			defer store.Stop()

			s := newTestServer(store, tt.c)
			issueState(s, tt.issuedState)

			req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+tt.query, nil)
			res := httptest.NewRecorder()
			s.handleCallback(res, req)

			b, err := io.ReadAll(res.Body)
			require.NoError(t, err)
			body := strings.TrimSuffix(string(b), "\n")
			assert.Equal(t, tt.wantStatus, res.Code)
			assert.Equal(t, tt.wantBody, body)
			assert.Len(t, tt.c.exchangedCodes, tt.wantExchangeCalls)

			// Provider error details stay out of the response body
			assert.NotContains(t, body, "Invalid authorization code")
			assert.NotContains(t, body, "Invalid OAuth token")

			// No failure path may leave a credential behind
			assert.Equal(t, 0, store.Len())
		})
	}
}

func Test_Server_handleCallback_successRedirectsWithHandoffKey(t *testing.T) {
	store, err := handoff.NewStore(time.Hour)
	require.NoError(t, err)
	defer store.Stop()

	c := &mockTwitchClient{
		tokenResponse: okTokenResponse("tok1", "ref1"),
		usersResponse: okUsersResponse("90790024", "gdlqbot"),
	}
	s := newTestServer(store, c)
	issueState(s, "abc123")

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=code1&state=abc123", nil)
	res := httptest.NewRecorder()
	s.handleCallback(res, req)

	require.Equal(t, 302, res.Code)
	location := res.Header().Get("location")
	require.True(t, strings.HasPrefix(location, "http://localhost:24363/twitch/success?key="), location)

	// The redirect exposes only the handoff key, never the tokens
	assert.NotContains(t, location, "tok1")
	assert.NotContains(t, location, "ref1")
	assert.Equal(t, []string{"code1"}, c.exchangedCodes)
	assert.Equal(t, "tok1", c.userAccessToken)

	key := strings.TrimPrefix(location, "http://localhost:24363/twitch/success?key=")
	record, err := store.TakeOnce(key)
	assert.NoError(t, err)
	assert.Equal(t, authrelay.Credential{
		AccessToken:  "tok1",
		RefreshToken: "ref1",
		Username:     "gdlqbot",
		UserId:       "90790024",
	}, record)
}

func Test_Server_handleCallback_replayedStateIsRejected(t *testing.T) {
	store, err := handoff.NewStore(time.Hour)
	require.NoError(t, err)
	defer store.Stop()

	c := &mockTwitchClient{
		tokenResponse: okTokenResponse("tok1", "ref1"),
		usersResponse: okUsersResponse("90790024", "gdlqbot"),
	}
	s := newTestServer(store, c)
	issueState(s, "abc123")

	first := httptest.NewRecorder()
	s.handleCallback(first, httptest.NewRequest(http.MethodGet, "/auth/callback?code=code1&state=abc123", nil))
	require.Equal(t, 302, first.Code)

	// Replaying the same callback fails verification: the state was consumed
	second := httptest.NewRecorder()
	s.handleCallback(second, httptest.NewRequest(http.MethodGet, "/auth/callback?code=code2&state=abc123", nil))
	assert.Equal(t, 401, second.Code)
	assert.Equal(t, []string{"code1"}, c.exchangedCodes)
}

// Test_Flow_endToEnd walks the full relay: initiation, provider callback,
// one-time credential collection
func Test_Flow_endToEnd(t *testing.T) {
	store, err := handoff.NewStore(time.Hour)
	require.NoError(t, err)
	defer store.Stop()

	c := &mockTwitchClient{
		tokenResponse: okTokenResponse("tok1", "ref1"),
		usersResponse: okUsersResponse("90790024", "gdlqbot"),
	}
	s := newTestServer(store, c)

	r := mux.NewRouter()
	s.RegisterRoutes(r)
	handoff.NewServer(store).RegisterRoutes(r)

	// Initiate: we get back an authorization URL and a state value
	initRes := httptest.NewRecorder()
	r.ServeHTTP(initRes, httptest.NewRequest(http.MethodGet, "/auth/init", nil))
	require.Equal(t, 200, initRes.Code)
	var initPayload struct {
		Url   string `json:"url"`
		State string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(initRes.Body).Decode(&initPayload))

	// Simulate Twitch redirecting the user back to us
	callbackRes := httptest.NewRecorder()
	r.ServeHTTP(callbackRes, httptest.NewRequest(http.MethodGet, "/auth/callback?code=code1&state="+initPayload.State, nil))
	require.Equal(t, 302, callbackRes.Code)
	location := callbackRes.Header().Get("location")
	key := strings.TrimPrefix(location, "http://localhost:24363/twitch/success?key=")
	require.NotEqual(t, location, key)

	// Collect the credential through the handoff endpoint
	dataRes := httptest.NewRecorder()
	r.ServeHTTP(dataRes, httptest.NewRequest(http.MethodGet, "/auth/data/"+key, nil))
	b, err := io.ReadAll(dataRes.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, dataRes.Code)
	assert.Equal(t, `{"success":true,"data":{"accessToken":"tok1","refreshToken":"ref1","username":"gdlqbot","userId":"90790024"}}`, strings.TrimSuffix(string(b), "\n"))

	// The key was good for exactly one collection
	repeatRes := httptest.NewRecorder()
	r.ServeHTTP(repeatRes, httptest.NewRequest(http.MethodGet, "/auth/data/"+key, nil))
	b, err = io.ReadAll(repeatRes.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"success":false,"message":"Invalid or expired auth key"}`, strings.TrimSuffix(string(b), "\n"))
}
