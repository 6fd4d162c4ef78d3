package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"stayscraper/internal/logger"
)

// Mux routes queued tasks to their handlers and logs each run.
type Mux struct {
	mux *asynq.ServeMux
	log *logger.Logger
}

func NewMux() *Mux {
	m := &Mux{mux: asynq.NewServeMux(), log: logger.New("Worker")}
	m.mux.Use(m.logging)
	return m
}

func (m *Mux) HandleFunc(t string, h func(ctx context.Context, task *asynq.Task) error) {
	m.mux.HandleFunc(t, h)
}

func (m *Mux) Mux() *asynq.ServeMux { return m.mux }

func (m *Mux) logging(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		if err != nil {
			m.log.LogWarnf("task %s failed after %v: %v", t.Type(), time.Since(start).Round(time.Millisecond), err)
			return err
		}
		m.log.LogDebugf("task %s done in %v", t.Type(), time.Since(start).Round(time.Millisecond))
		return nil
	})
}
