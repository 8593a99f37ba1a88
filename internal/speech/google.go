package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// GoogleConfig holds configuration for the Google Cloud Speech-to-Text backend.
type GoogleConfig struct {
	Endpoint        string // default: "https://speech.googleapis.com/v1"
	APIKey          string // optional; used instead of service account credentials
	CredentialsFile string // service account JSON; falls back to application default credentials
}

// GoogleRecognizer calls the speech:recognize REST method.
type GoogleRecognizer struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewGoogleRecognizer resolves credentials once and returns a recognizer sharing one HTTP client.
func NewGoogleRecognizer(ctx context.Context, cfg GoogleConfig) (*GoogleRecognizer, error) {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://speech.googleapis.com/v1"
	}

	if cfg.APIKey != "" {
		return &GoogleRecognizer{
			endpoint:   endpoint,
			apiKey:     cfg.APIKey,
			httpClient: &http.Client{Timeout: 5 * time.Minute},
		}, nil
	}

	var creds *google.Credentials
	data, err := readCredentials(cfg.CredentialsFile)
	switch {
	case err != nil:
		return nil, err
	case data != nil:
		creds, err = google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("parse google credentials %s: %w", cfg.CredentialsFile, err)
		}
	default:
		creds, err = google.FindDefaultCredentials(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("find google credentials: %w", err)
		}
	}

	return NewGoogleRecognizerWithClient(endpoint, oauth2.NewClient(ctx, creds.TokenSource)), nil
}

// readCredentials returns nil data when the file does not exist, so the caller can fall back to
// application default credentials. Any other read failure is an error.
func readCredentials(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read google credentials %s: %w", path, err)
	}
	return data, nil
}

// NewGoogleRecognizerWithClient uses an already authenticated HTTP client.
func NewGoogleRecognizerWithClient(endpoint string, client *http.Client) *GoogleRecognizer {
	return &GoogleRecognizer{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: client,
	}
}

func (g *GoogleRecognizer) Name() string { return "google-speech" }

func (g *GoogleRecognizer) Recognize(ctx context.Context, req RecognizeRequest) ([]Segment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal recognize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/speech:recognize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create recognize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Kept out of the URL so transport errors never carry it.
	if g.apiKey != "" {
		httpReq.Header.Set("X-Goog-Api-Key", g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("recognize request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("recognize failed (status %d, %s): %s", resp.StatusCode, apiErr.Error.Status, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("recognize failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Results []Segment `json:"results"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return apiResp.Results, nil
}
