package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/talk2text/internal/identity"
)

// AuthHandler proxies the browser client's account flows to Supabase Auth.
type AuthHandler struct {
	gotrue *identity.GoTrue
}

func NewAuthHandler(g *identity.GoTrue) *AuthHandler {
	return &AuthHandler{gotrue: g}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c credentials) valid() bool {
	return strings.TrimSpace(c.Email) != "" && c.Password != ""
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil || !req.valid() {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, session, err := h.gotrue.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.upstreamError(w, "sign up", err)
		return
	}

	resp := map[string]any{"message": "Success", "user": user}
	if session != nil {
		resp["session"] = session
	} else {
		resp["message"] = "Check your email to confirm your account"
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil || !req.valid() {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	session, err := h.gotrue.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.upstreamError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Success", "session": session})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.gotrue.SignOut(r.Context(), identity.BearerToken(r)); err != nil {
		h.upstreamError(w, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signed out"})
}

func (h *AuthHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		RedirectTo string `json:"redirect_to"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	if err := h.gotrue.Recover(r.Context(), req.Email, req.RedirectTo); err != nil {
		h.upstreamError(w, "recover", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset email sent"})
}

func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Password is required")
		return
	}

	user, err := h.gotrue.UpdatePassword(r.Context(), identity.BearerToken(r), req.Password)
	if err != nil {
		h.upstreamError(w, "update password", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password updated", "user": user})
}

func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	user, err := h.gotrue.GetUser(r.Context(), identity.BearerToken(r))
	if err != nil {
		h.upstreamError(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Success", "user": user})
}

// upstreamError relays Supabase's 4xx answers and hides everything else behind a 502.
func (h *AuthHandler) upstreamError(w http.ResponseWriter, op string, err error) {
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	slog.Error("identity request failed", "op", op, "error", err)
	writeError(w, http.StatusBadGateway, "Identity service unavailable")
}
