package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"stayscraper/internal/platform/redis"
)

const (
	TaskTypeCrawl = "listings:crawl"
	QueueDefault  = "default"
)

// CrawlPayload carries only the job id; the job store holds the request.
type CrawlPayload struct {
	JobID string `json:"job_id"`
}

func NewCrawlTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(CrawlPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCrawl, payload), nil
}

func ParseCrawlTask(t *asynq.Task) (CrawlPayload, error) {
	var p CrawlPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	return p, nil
}

type Client struct{ c *asynq.Client }

func New(r *redis.Service) *Client { return &Client{c: asynq.NewClient(r.AsynqRedisOpt())} }

func (t *Client) Enqueue(ctx context.Context, task *asynq.Task, queue string, maxRetries int) error {
	_, err := t.c.EnqueueContext(ctx, task, asynq.Queue(queue), asynq.MaxRetry(maxRetries))
	return err
}

func (t *Client) Close() error { return t.c.Close() }
