package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nikhilbhutani/talk2text/internal/models"
)

// Supabase talks to the audio_files table through PostgREST with the service role key.
type Supabase struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewSupabase(supabaseURL, serviceKey string) *Supabase {
	return &Supabase{
		baseURL:    strings.TrimSuffix(supabaseURL, "/") + "/rest/v1",
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type supabaseRow struct {
	ID            int64     `json:"id"`
	FileName      string    `json:"file_name"`
	Transcription string    `json:"transcription"`
	UserID        string    `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r supabaseRow) model() models.Transcript {
	return models.Transcript{
		ID:            r.ID,
		OwnerID:       r.UserID,
		FileName:      r.FileName,
		Transcription: r.Transcription,
		CreatedAt:     r.CreatedAt,
	}
}

func (s *Supabase) Insert(ctx context.Context, ownerID, fileName, text string) (*models.Transcript, error) {
	if err := checkInsert(ownerID, text); err != nil {
		return nil, err
	}

	payload, err := json.Marshal([]map[string]string{{
		"file_name":     fileName,
		"transcription": text,
		"user_id":       ownerID,
	}})
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audio_files", bytes.NewReader(payload))
	if err != nil {
		return nil, storageError("create insert request", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	var rows []supabaseRow
	if err := s.do(req, &rows); err != nil {
		return nil, storageError("insert transcript", err)
	}
	if len(rows) != 1 {
		return nil, storageError("insert transcript", fmt.Errorf("expected 1 row back, got %d", len(rows)))
	}

	t := rows[0].model()
	return &t, nil
}

func (s *Supabase) ListByOwner(ctx context.Context, ownerID string) ([]models.Transcript, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("select", "id,file_name,transcription,user_id,created_at")
	q.Set("user_id", "eq."+ownerID)
	q.Set("order", "created_at.desc,id.desc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/audio_files?"+q.Encode(), nil)
	if err != nil {
		return nil, storageError("create list request", err)
	}
	s.authorize(req)

	var rows []supabaseRow
	if err := s.do(req, &rows); err != nil {
		return nil, storageError("list transcripts", err)
	}

	out := make([]models.Transcript, 0, len(rows))
	for _, r := range rows {
		// The filter is applied remotely; a row for anyone else means the filter was not.
		if r.UserID != ownerID {
			return nil, storageError("list transcripts", fmt.Errorf("row %d belongs to another owner", r.ID))
		}
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Supabase) authorize(req *http.Request) {
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
}

func (s *Supabase) do(req *http.Request, dest any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("postgrest request failed (%d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
