/**
 * @description
 * HTTP handlers for registration, login, session refresh, logout, password
 * change, and email verification. Login attempts pass through the Redis
 * rate limiter before credentials are checked.
 */

package api

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/fintra/banking-service/internal/domain"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// RegisterHandler handles new user registration.
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// LoginHandler authenticates a user and opens a session.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	subject := strings.ToLower(strings.TrimSpace(req.Email))
	if subject == "" {
		subject = clientIP(r)
	}
	if h.limiter != nil {
		count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), "login", subject, h.loginRateLimit, h.loginRateWindow)
		if err != nil {
			log.Printf("level=warn component=api endpoint=login msg=\"rate limiter unavailable, allowing request\" err=%v", err)
		} else if h.loginRateLimit > 0 && count > h.loginRateLimit {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
			return
		}
	}

	session, err := h.auth.Login(r.Context(), req, domain.ClientInfo{
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// RefreshHandler rotates a refresh token and returns a new token pair.
func (h *Handlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.auth.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// LogoutHandler revokes the presented refresh token.
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePasswordHandler swaps the caller's password and revokes all sessions.
func (h *Handlers) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.auth.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// VerifyEmailHandler consumes a verification token from the query string.
func (h *Handlers) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	user, err := h.auth.VerifyEmail(r.Context(), token)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "email verified", "user": user})
}

// clientIP extracts the caller's address, preferring the forwarding header
// set by the edge proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
