// Package transcript persists transcripts and reads back per-owner history.
// Records are append-only: nothing here updates or deletes a row.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/talk2text/internal/models"
)

var (
	// ErrStorage wraps every failure of the underlying store.
	ErrStorage = errors.New("transcript store failure")

	ErrInvalidOwner    = errors.New("owner id is required")
	ErrEmptyTranscript = errors.New("transcript text is empty")
)

// Repository is the transcript store contract.
type Repository interface {
	// Insert writes one record atomically and returns it with id and created_at filled in.
	Insert(ctx context.Context, ownerID, fileName, text string) (*models.Transcript, error)
	// ListByOwner returns the owner's records, newest first. Unknown owners get an empty slice.
	ListByOwner(ctx context.Context, ownerID string) ([]models.Transcript, error)
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func checkInsert(ownerID, text string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrInvalidOwner
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyTranscript
	}
	return nil
}

func checkOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrInvalidOwner
	}
	return nil
}
