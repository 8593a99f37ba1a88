package queue

import "time"

const (
	TypeStagingSweep = "staging:sweep"

	QueueMaintenance = "maintenance"
)

// StagingSweepPayload asks a worker to remove staged uploads older than MaxAgeSeconds.
type StagingSweepPayload struct {
	MaxAgeSeconds int64 `json:"max_age_seconds"`
}

func NewStagingSweepPayload(maxAge time.Duration) StagingSweepPayload {
	return StagingSweepPayload{MaxAgeSeconds: int64(maxAge / time.Second)}
}

func (p StagingSweepPayload) MaxAge() time.Duration {
	return time.Duration(p.MaxAgeSeconds) * time.Second
}
