package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/talk2text/internal/queue"
)

// Sweeper is the part of the staging area the worker needs.
type Sweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

type SweepWorker struct {
	area Sweeper
}

func NewSweepWorker(area Sweeper) *SweepWorker {
	return &SweepWorker{area: area}
}

func (w *SweepWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.StagingSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.MaxAgeSeconds <= 0 {
		return fmt.Errorf("max_age_seconds must be positive, got %d: %w", payload.MaxAgeSeconds, asynq.SkipRetry)
	}

	removed, err := w.area.Sweep(payload.MaxAge())
	if err != nil {
		slog.Error("staging sweep incomplete", "removed", removed, "error", err)
		return fmt.Errorf("sweep staging area: %w", err)
	}

	slog.Info("staging sweep finished", "removed", removed, "max_age", payload.MaxAge().String())
	return nil
}
