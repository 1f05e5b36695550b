// Package auth issues service tokens for callers holding the shared
// service key. Token validation lives in the middleware package.
package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mediavault/service/internal/config"
	"github.com/mediavault/service/internal/response"
)

const tokenTTL = 24 * time.Hour

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	cfg *config.Config
}

// NewHandler creates a new auth Handler.
func NewHandler(cfg *config.Config) *Handler {
	return &Handler{cfg: cfg}
}

type tokenRequest struct {
	ServiceKey string `json:"serviceKey"`
	Subject    string `json:"subject" example:"cms-backend"`
}

type tokenData struct {
	Token     string `json:"token" example:"eyJhbGci..."`
	ExpiresAt string `json:"expiresAt" example:"2026-09-02T14:48:34Z"`
}

// IssueToken godoc
//
//	@Summary		Issue a service token
//	@Description	Exchanges the shared service key for a Bearer JWT used on mutating endpoints.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		tokenRequest	true	"service key and caller name"
//	@Success		200		{object}	response.Envelope{data=tokenData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Router			/auth/token [post]
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if h.cfg.ServiceKey == "" || req.ServiceKey != h.cfg.ServiceKey {
		response.Unauthorized(w, "invalid service key")
		return
	}
	if req.Subject == "" {
		response.BadRequest(w, "subject is required")
		return
	}

	expiresAt := time.Now().Add(tokenTTL)
	claims := jwt.MapClaims{
		"sub": req.Subject,
		"iat": time.Now().Unix(),
		"exp": expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, tokenData{Token: token, ExpiresAt: expiresAt.UTC().Format(time.RFC3339)})
}
