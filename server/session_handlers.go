package server

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/bdevloed/graph-login-service/internal/errors"
)

type createSessionRequest struct {
	AuthorizationCode string `json:"authorizationCode"`
}

// jsonapiDocument is the response shape for successful logins and session
// introspection.
type jsonapiDocument struct {
	Links         map[string]string          `json:"links,omitempty"`
	Data          jsonapiResource            `json:"data"`
	Relationships map[string]jsonapiRelation `json:"relationships,omitempty"`
}

type jsonapiResource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type jsonapiRelation struct {
	Links map[string]string `json:"links,omitempty"`
	Data  jsonapiIdentifier `json:"data"`
}

type jsonapiIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type jsonapiErrors struct {
	Errors []jsonapiError `json:"errors"`
}

type jsonapiError struct {
	Title string `json:"title"`
}

// CreateSessionHandler handles POST /sessions: the login protocol.
func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createSessionRequest
		if r.Body != nil {
			// An unreadable body is equivalent to a missing code.
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		result, err := s.engine.Login(r.Context(), sessionToken(r), body.AuthorizationCode)
		if err != nil {
			s.metrics.LoginRejected(outcomeForError(err))
			s.writeLoginError(w, r, err)
			return
		}

		s.metrics.LoginSucceeded()
		w.Header().Set(allowedGroupsHeader, allowedGroupsClear)
		writeJSON(w, http.StatusCreated, jsonapiDocument{
			Links: map[string]string{"self": "/sessions/current"},
			Data: jsonapiResource{
				Type: "sessions",
				ID:   result.SessionID,
				Attributes: map[string]any{
					"roles": result.Roles,
				},
			},
			Relationships: map[string]jsonapiRelation{
				"account": {
					Links: map[string]string{"related": "/accounts/" + result.Account.ID},
					Data:  jsonapiIdentifier{Type: "accounts", ID: result.Account.ID},
				},
				"group": {
					Links: map[string]string{"related": "/groups/" + result.Group.ID},
					Data:  jsonapiIdentifier{Type: "groups", ID: result.Group.ID},
				},
			},
		})
	}
}

// DeleteSessionHandler handles DELETE /sessions/current: the logout
// protocol.
func (s *Server) DeleteSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.engine.Logout(r.Context(), sessionToken(r))
		if err != nil {
			s.metrics.LogoutRejected(outcomeForError(err))
			switch {
			case errors.Is(err, apperrors.ErrMissingSessionToken):
				writeError(w, http.StatusBadRequest, "Session header is missing")
			case errors.Is(err, apperrors.ErrInvalidSession):
				writeError(w, http.StatusBadRequest, "Invalid session")
			default:
				s.serverFault(w, r, err)
			}
			return
		}

		s.metrics.LogoutSucceeded()
		w.Header().Set(allowedGroupsHeader, allowedGroupsClear)
		w.WriteHeader(http.StatusNoContent)
	}
}

// CurrentSessionHandler handles GET /sessions/current: session
// introspection.
func (s *Server) CurrentSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.engine.CurrentSession(r.Context(), sessionToken(r))
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrMissingSessionToken):
				writeError(w, http.StatusBadRequest, "Session header is missing")
			case errors.Is(err, apperrors.ErrInvalidSession):
				writeError(w, http.StatusBadRequest, "Invalid session")
			default:
				s.serverFault(w, r, err)
			}
			return
		}

		roles := session.Roles
		if roles == nil {
			roles = []string{}
		}
		writeJSON(w, http.StatusOK, jsonapiDocument{
			Links: map[string]string{"self": "/sessions/current"},
			Data: jsonapiResource{
				Type: "sessions",
				ID:   session.ID,
				Attributes: map[string]any{
					"roles": roles,
				},
			},
			Relationships: map[string]jsonapiRelation{
				"group": {
					Links: map[string]string{"related": "/groups/" + session.GroupID},
					Data:  jsonapiIdentifier{Type: "groups", ID: session.GroupID},
				},
			},
		})
	}
}

func (s *Server) writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperrors.ErrMissingSessionToken):
		writeError(w, http.StatusBadRequest, "Session header is missing")
	case errors.Is(err, apperrors.ErrMissingAuthorizationCode):
		writeError(w, http.StatusBadRequest, "Authorization code is missing")
	case errors.Is(err, apperrors.ErrVerificationRejected):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrNoTenant):
		w.Header().Set(allowedGroupsHeader, allowedGroupsClear)
		w.WriteHeader(http.StatusForbidden)
	default:
		s.serverFault(w, r, err)
	}
}

// serverFault reports an internal failure without leaking detail.
func (s *Server) serverFault(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "Something went wrong")
}

func writeError(w http.ResponseWriter, status int, title string) {
	writeJSON(w, status, jsonapiErrors{Errors: []jsonapiError{{Title: title}}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
