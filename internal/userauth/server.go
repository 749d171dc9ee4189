package userauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/nicklaw5/helix/v2"

	"github.com/gdlqbot/authrelay"
	"github.com/gdlqbot/authrelay/internal/entry"
	"github.com/gdlqbot/authrelay/internal/events"
	"github.com/gdlqbot/authrelay/internal/handoff"
)

// exchangeTimeout bounds each outbound call to the Twitch API during the
// callback leg of the flow
const exchangeTimeout = 10 * time.Second

type NewTwitchClientFunc func(ctx context.Context) (TwitchClient, error)

// EventProducer accepts serialized messages announcing completed
// authorizations, e.g. for publication to an AMQP exchange
type EventProducer interface {
	Send(ctx context.Context, body []byte) error
}

type Server struct {
	callbackUrl     string
	clientUrl       string
	twitchClientId  string
	scopes          authrelay.ScopeList
	states          *stateBuffer
	handoffs        *handoff.Store
	newTwitchClient NewTwitchClientFunc
	producer        EventProducer
}

// NewServer prepares a Server that issues authorization URLs for the Twitch
// app identified by twitchClientId and parks exchanged credentials in the
// given handoff store. producer may be nil, in which case no authorization
// events are emitted.
func NewServer(callbackUrl, clientUrl, twitchClientId, twitchClientSecret string, handoffs *handoff.Store, producer EventProducer) *Server {
	return &Server{
		callbackUrl:    callbackUrl,
		clientUrl:      clientUrl,
		twitchClientId: twitchClientId,
		scopes:         authrelay.Scopes,
		states:         newStateBuffer(),
		handoffs:       handoffs,
		newTwitchClient: func(ctx context.Context) (TwitchClient, error) {
			return helix.NewClient(&helix.Options{
				ClientID:     twitchClientId,
				ClientSecret: twitchClientSecret,
				RedirectURI:  callbackUrl,
				HTTPClient:   &http.Client{Timeout: exchangeTimeout},
			})
		},
		producer: producer,
	}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.Path("/auth/init").Methods("GET").HandlerFunc(s.handleInit)
	r.Path("/auth/callback").Methods("GET").HandlerFunc(s.handleCallback)
}

// handleInit (GET /auth/init) builds a Twitch authorization URL carrying a
// freshly generated anti-forgery state value, and returns both to the caller.
// The caller is responsible for sending the user's browser to the URL; the
// state is recorded server-side and verified when the callback arrives.
func (s *Server) handleInit(res http.ResponseWriter, req *http.Request) {
	u, err := url.Parse("https://id.twitch.tv/oauth2/authorize")
	if err != nil {
		panic(err)
	}
	state := s.states.generate()
	q := u.Query()
	q.Add("client_id", s.twitchClientId)
	q.Add("redirect_uri", s.callbackUrl)
	q.Add("response_type", "code")
	q.Add("scope", s.scopes.Join())
	q.Add("state", state)
	q.Add("force_verify", "true")
	u.RawQuery = q.Encode()

	res.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(res).Encode(struct {
		Url   string `json:"url"`
		State string `json:"state"`
	}{
		Url:   u.String(),
		State: state,
	}); err != nil {
		entry.Log(req).Error("Failed to encode response", "error", err)
	}
}

// handleCallback (GET /auth/callback) completes the flow once Twitch
// redirects the user's browser back to us: it verifies the echoed state,
// exchanges the authorization code for tokens, stores the resulting
// credential, and redirects onward to the client application with the handoff
// key as the sole query parameter
func (s *Server) handleCallback(res http.ResponseWriter, req *http.Request) {
	logger := entry.Log(req)

	code := req.URL.Query().Get("code")
	stateValue := req.URL.Query().Get("state")
	if code == "" || stateValue == "" {
		respondError(res, http.StatusBadRequest, "'code' and 'state' are required")
		return
	}

	// Verify the anti-forgery state before touching the token endpoint: a
	// value we never issued (or one already redeemed) means the callback
	// cannot be trusted
	if !s.states.check(stateValue) {
		logger.Error("State verification failed")
		respondError(res, http.StatusUnauthorized, "state verification failed")
		return
	}

	// If the caller is already gone, abandon the flow before spending the
	// single-use authorization code
	if err := req.Context().Err(); err != nil {
		logger.Error("Request abandoned before token exchange", "error", err)
		respondError(res, http.StatusBadRequest, "request canceled")
		return
	}

	// Once the exchange begins it runs to completion even if the caller
	// disconnects: the code has been spent at that point, so the credential
	// belongs in the handoff store rather than nowhere
	ctx := context.WithoutCancel(req.Context())
	c, err := s.newTwitchClient(ctx)
	if err != nil {
		logger.Error("Failed to initialize Twitch API client", "error", err)
		respondError(res, http.StatusInternalServerError, "authorization could not be completed")
		return
	}
	record, err := exchangeCode(c, code)
	if err != nil {
		logger.Error("Failed to exchange authorization code", "error", err)
		respondError(res, http.StatusInternalServerError, "authorization could not be completed")
		return
	}

	key := s.handoffs.Put(*record)
	logger.Info("Issued credential handoff key",
		"username", record.Username,
		"userId", record.UserId,
	)

	if s.producer != nil {
		data, err := json.Marshal(events.CredentialIssued{
			UserId:   record.UserId,
			Username: record.Username,
			IssuedAt: time.Now().UTC(),
		})
		if err == nil {
			err = s.producer.Send(ctx, data)
		}
		if err != nil {
			// Event publication is best-effort; the flow has already
			// succeeded from the user's point of view
			logger.Error("Failed to publish authorization event", "error", err)
		}
	}

	res.Header().Set("location", fmt.Sprintf("%s/twitch/success?key=%s", s.clientUrl, key))
	res.WriteHeader(http.StatusFound)
}

func respondError(res http.ResponseWriter, status int, message string) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)
	json.NewEncoder(res).Encode(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{
		Success: false,
		Error:   message,
	})
}
