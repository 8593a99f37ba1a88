package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx answer from Supabase Auth.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase auth (%d): %s", e.Status, e.Message)
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// GoTrue is a client for the Supabase Auth REST API using the project's anon key.
// It also verifies tokens remotely when no JWT secret is configured.
type GoTrue struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

func NewGoTrue(supabaseURL, anonKey string) *GoTrue {
	return &GoTrue{
		baseURL:    strings.TrimSuffix(supabaseURL, "/") + "/auth/v1",
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *GoTrue) Verify(ctx context.Context, token string) (*Owner, error) {
	u, err := g.GetUser(ctx, token)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: user has no id", ErrInvalidToken)
	}
	return &Owner{ID: u.ID, Email: u.Email, Role: u.Role}, nil
}

func (g *GoTrue) GetUser(ctx context.Context, token string) (*User, error) {
	var u User
	if err := g.call(ctx, http.MethodGet, "/user", token, nil, &u); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// SignUp registers a user. Session is nil when the project requires email confirmation.
func (g *GoTrue) SignUp(ctx context.Context, email, password string) (*User, *Session, error) {
	var raw json.RawMessage
	body := map[string]string{"email": email, "password": password}
	if err := g.call(ctx, http.MethodPost, "/signup", "", body, &raw); err != nil {
		return nil, nil, fmt.Errorf("sign up: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err == nil && s.AccessToken != "" {
		return s.User, &s, nil
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, nil, fmt.Errorf("sign up: parse response: %w", err)
	}
	return &u, nil, nil
}

func (g *GoTrue) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := g.call(ctx, http.MethodPost, "/token?grant_type=password", "", body, &s); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return &s, nil
}

func (g *GoTrue) SignOut(ctx context.Context, token string) error {
	if err := g.call(ctx, http.MethodPost, "/logout", token, nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Recover sends a password reset email. redirectTo may be empty.
func (g *GoTrue) Recover(ctx context.Context, email, redirectTo string) error {
	path := "/recover"
	if redirectTo != "" {
		path += "?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	}
	if err := g.call(ctx, http.MethodPost, path, "", map[string]string{"email": email}, nil); err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	return nil
}

func (g *GoTrue) UpdatePassword(ctx context.Context, token, password string) (*User, error) {
	var u User
	if err := g.call(ctx, http.MethodPut, "/user", token, map[string]string{"password": password}, &u); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	return &u, nil
}

func (g *GoTrue) call(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", g.anonKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// errorMessage picks whichever of GoTrue's error fields is set.
func errorMessage(data []byte) string {
	var e struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil {
		for _, m := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
			if m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(data))
}
