package handoff

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gdlqbot/authrelay"
	"github.com/gdlqbot/authrelay/internal/entry"
)

type Server struct {
	store *Store
}

func NewServer(store *Store) *Server {
	return &Server{
		store: store,
	}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.Path("/auth/data/{key}").Methods("GET").HandlerFunc(s.handleGetData)
}

// handleGetData (GET /auth/data/{key}) collects the credential stored under
// the given handoff key, consuming it: the first request for a valid key
// succeeds and every subsequent request for the same key fails
func (s *Server) handleGetData(res http.ResponseWriter, req *http.Request) {
	logger := entry.Log(req)
	key := mux.Vars(req)["key"]

	record, err := s.store.TakeOnce(key)
	res.Header().Set("Content-Type", "application/json")
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Error("Failed to collect credential", "error", err)
		}
		json.NewEncoder(res).Encode(struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}{
			Success: false,
			Message: "Invalid or expired auth key",
		})
		return
	}

	logger.Info("Credential collected", "username", record.Username, "userId", record.UserId)
	if err := json.NewEncoder(res).Encode(struct {
		Success bool                 `json:"success"`
		Data    authrelay.Credential `json:"data"`
	}{
		Success: true,
		Data:    record,
	}); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}
