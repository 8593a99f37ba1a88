// Package history answers "what have I transcribed so far" for one owner.
package history

import (
	"context"
	"strings"
	"time"

	"github.com/nikhilbhutani/talk2text/internal/identity"
	"github.com/nikhilbhutani/talk2text/internal/transcript"
)

// Entry is one row of a history listing.
type Entry struct {
	ID            int64     `json:"id"`
	FileName      string    `json:"file_name"`
	Transcription string    `json:"transcription"`
	CreatedAt     time.Time `json:"created_at"`
}

type Service struct {
	repo   transcript.Repository
	policy identity.Policy
}

func NewService(repo transcript.Repository, policy identity.Policy) *Service {
	return &Service{repo: repo, policy: policy}
}

// List returns the requested owner's transcripts, newest first. The caller must be that owner,
// or anonymous under a policy that trusts client-supplied ids.
func (s *Service) List(ctx context.Context, requested string) ([]Entry, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return nil, transcript.ErrInvalidOwner
	}
	if err := s.policy.Authorize(ctx, requested); err != nil {
		return nil, err
	}

	records, err := s.repo.ListByOwner(ctx, requested)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, Entry{
			ID:            r.ID,
			FileName:      r.FileName,
			Transcription: r.Transcription,
			CreatedAt:     r.CreatedAt,
		})
	}
	return entries, nil
}
