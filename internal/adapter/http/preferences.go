package http

import (
	"encoding/json"
	"errors"
	"net/http"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/google/uuid"

	"github.com/couchcryptid/region-compare-service/internal/preference"
)

const (
	clientIDCookie = "client_id"
	clientIDMaxAge = 365 * 24 * 60 * 60
)

type languageResponse struct {
	Language  string   `json:"language"`
	Saved     bool     `json:"saved"`
	Supported []string `json:"supported"`
}

type languageRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleGetLanguage(w http.ResponseWriter, r *http.Request) {
	clientID := s.clientID(w, r)

	saved, err := s.prefs.Get(r.Context(), clientID)
	switch {
	case errors.Is(err, preference.ErrNotFound):
		s.observePreference("get", "success")
	case err != nil:
		// Resolution still succeeds from the request headers.
		s.observePreference("get", "error")
		s.logger.Warn("load language preference", "client_id", clientID, "error", err)
		saved = ""
	default:
		s.observePreference("get", "success")
	}

	sharedobs.WriteJSON(w, http.StatusOK, languageResponse{
		Language:  preference.Resolve(saved, r.Header.Get("Accept-Language")),
		Saved:     preference.IsSupported(saved),
		Supported: preference.Supported,
	})
}

func (s *Server) handlePutLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !preference.IsSupported(req.Language) {
		writeError(w, http.StatusBadRequest, "unsupported language")
		return
	}

	clientID := s.clientID(w, r)
	lang := preference.Resolve(req.Language, "")
	if err := s.prefs.Set(r.Context(), clientID, lang); err != nil {
		s.observePreference("put", "error")
		s.logger.Error("save language preference", "client_id", clientID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save preference")
		return
	}
	s.observePreference("put", "success")

	sharedobs.WriteJSON(w, http.StatusOK, languageResponse{
		Language:  lang,
		Saved:     true,
		Supported: preference.Supported,
	})
}

// clientID returns the caller's client id cookie, issuing a new one when the
// request carries none.
func (s *Server) clientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(clientIDCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     clientIDCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   clientIDMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *Server) observePreference(op, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.PreferenceOps.WithLabelValues(op, outcome).Inc()
}
