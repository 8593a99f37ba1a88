package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/talk2text/internal/config"
)

type Client struct {
	client *asynq.Client
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueStagingSweep schedules one sweep. Duplicates within a minute are dropped.
func (c *Client) EnqueueStagingSweep(maxAge time.Duration) error {
	task, err := NewStagingSweepTask(maxAge)
	if err != nil {
		return err
	}
	_, err = c.client.Enqueue(task, asynq.Unique(time.Minute))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeStagingSweep, err)
	}
	return nil
}

// NewStagingSweepTask builds the task shared by the client and the worker's scheduler.
func NewStagingSweepTask(maxAge time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(NewStagingSweepPayload(maxAge))
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeStagingSweep, data,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(2),
		asynq.Timeout(2*time.Minute),
	), nil
}
