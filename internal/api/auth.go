package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/wtap-core/internal/auth"
)

// loginRequest is the request body for POST /api/v1/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /api/v1/auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleLogin checks the admin password and returns an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.admin == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "admin login not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	token, _, err := s.admin.Login(req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrBadLogin):
		s.logger.Warn("admin login failed", "username", req.Username, "remote", r.RemoteAddr)
		writeUnauthorized(w, "invalid credentials")
		return
	default:
		s.logger.Error("issuing access token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.admin.TTL().Seconds()),
	})
}
