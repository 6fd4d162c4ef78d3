package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"stayscraper/internal/logger"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs submitted functions in the background, at most size at a
// time. Functions receive the pool's context, which Shutdown cancels
// when its deadline passes.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	log    *logger.Logger
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
		log:    logger.New("WorkerPool"),
	}
}

// Submit queues fn and returns immediately. fn starts once a slot frees up.
func (p *Pool) Submit(fn func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.log.LogErrorf("worker panicked: %v", r)
			}
		}()
		fn(p.ctx)
	}()
	return nil
}

// Wait blocks until every submitted function has returned.
func (p *Pool) Wait() { p.wg.Wait() }

// Shutdown stops accepting work and waits for running work, cancelling
// it once ctx expires.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.log.LogWarnf("shutdown timeout, cancelling running crawls")
		p.cancel()
		<-done
	}
	p.cancel()
}
