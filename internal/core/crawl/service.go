package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"stayscraper/internal/core/export"
	"stayscraper/internal/core/job"
	"stayscraper/internal/core/listing"
	"stayscraper/internal/logger"
	tasks "stayscraper/internal/platform/tasks"
	"stayscraper/internal/worker"
)

// Runner is the crawl a job executes.
type Runner interface {
	Run(ctx context.Context, searchURL string, maxPages int, onPage PageFunc) ([]listing.Record, error)
}

// Uploader publishes a finished export and returns its download URL.
type Uploader interface {
	Upload(ctx context.Context, jobID, filename, contentType string, data []byte) (string, error)
}

// Dispatcher starts a job somewhere other than the caller's goroutine.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

type CrawlService struct {
	jobs     *job.Store
	crawler  Runner
	dispatch Dispatcher
	uploader Uploader
	log      *logger.Logger
}

// NewCrawlService wires the job lifecycle. uploader may be nil.
func NewCrawlService(jobs *job.Store, crawler Runner, uploader Uploader) *CrawlService {
	return &CrawlService{jobs: jobs, crawler: crawler, uploader: uploader, log: logger.New("CrawlService")}
}

// UseDispatcher sets where Enqueue sends jobs.
func (s *CrawlService) UseDispatcher(d Dispatcher) { s.dispatch = d }

// Enqueue validates the request, registers a pending job and hands it to
// the dispatcher. It never waits for the crawl.
func (s *CrawlService) Enqueue(ctx context.Context, searchURL string, maxPages int) (job.Job, error) {
	if err := ValidateRequest(searchURL, maxPages); err != nil {
		return job.Job{}, err
	}
	if s.dispatch == nil {
		return job.Job{}, errors.New("no dispatcher configured")
	}
	j := s.jobs.Create(searchURL, maxPages)
	if err := s.dispatch.Dispatch(ctx, j.JobID); err != nil {
		_ = s.jobs.SetFailed(j.JobID, "dispatch: "+err.Error())
		return job.Job{}, fmt.Errorf("dispatch job %s: %w", j.JobID, err)
	}
	s.log.LogInfof("enqueued crawl job %s for %s with max pages %d", j.JobID, searchURL, maxPages)
	return j, nil
}

// Execute runs a registered job to completion and records the outcome.
// A panic during the crawl fails the job instead of leaving it running.
func (s *CrawlService) Execute(ctx context.Context, jobID string) (err error) {
	j, err := s.jobs.Get(jobID)
	if err != nil {
		return err
	}
	if err := s.jobs.SetRunning(jobID); err != nil {
		return err
	}
	log := s.log.With("job_id", jobID)
	defer func() {
		if r := recover(); r != nil {
			log.LogErrorf("crawl panicked: %v", r)
			_ = s.jobs.SetFailed(jobID, logger.StripANSI(fmt.Sprint(r)))
			err = fmt.Errorf("job %s panicked: %v", jobID, r)
		}
	}()
	log.LogInfof("processing crawl job for %s", j.SearchURL)

	records, err := s.crawler.Run(ctx, j.SearchURL, j.MaxPages, func(page int, _, all []listing.Record) error {
		return s.jobs.SetPage(jobID, page, all)
	})
	if err != nil {
		msg := logger.StripANSI(err.Error())
		if re, ok := IsRunError(err); ok {
			log.LogErrorf("crawl failed on page %d with %d listings gathered: %v", re.Page, len(records), re.Err)
		} else {
			log.LogErrorf("crawl failed: %v", err)
		}
		_ = s.jobs.SetFailed(jobID, msg)
		return err
	}

	if err := s.jobs.SetCompleted(jobID, records); err != nil {
		return err
	}
	log.LogSuccessf("crawl job completed with %d listings", len(records))

	if s.uploader != nil && len(records) > 0 {
		s.publish(ctx, jobID, records)
	}
	return nil
}

// publish uploads the workbook. A failed upload leaves the job completed.
func (s *CrawlService) publish(ctx context.Context, jobID string, records []listing.Record) {
	data, err := export.Bytes(records)
	if err != nil {
		s.log.LogWarnf("job %s: build export: %v", jobID, err)
		return
	}
	link, err := s.uploader.Upload(ctx, jobID, export.Filename(time.Now()), export.ContentType, data)
	if err != nil {
		s.log.LogWarnf("job %s: upload export: %v", jobID, err)
		return
	}
	_ = s.jobs.SetExportURL(jobID, link)
}

// HandleCrawlTask is the queue entry point for a crawl job.
func (s *CrawlService) HandleCrawlTask(ctx context.Context, task *asynq.Task) error {
	p, err := tasks.ParseCrawlTask(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := s.Execute(ctx, p.JobID); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return fmt.Errorf("job %s: %v: %w", p.JobID, err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// PoolDispatcher runs jobs on the in-process worker pool.
type PoolDispatcher struct {
	pool *worker.Pool
	exec func(ctx context.Context, jobID string) error
}

func NewPoolDispatcher(pool *worker.Pool, exec func(ctx context.Context, jobID string) error) *PoolDispatcher {
	return &PoolDispatcher{pool: pool, exec: exec}
}

func (d *PoolDispatcher) Dispatch(_ context.Context, jobID string) error {
	return d.pool.Submit(func(ctx context.Context) {
		_ = d.exec(ctx, jobID)
	})
}

// enqueuer is the part of the task client used by QueueDispatcher.
type enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, queue string, maxRetries int) error
}

// QueueDispatcher sends jobs through asynq.
type QueueDispatcher struct {
	tasks      enqueuer
	maxRetries int
}

func NewQueueDispatcher(client *tasks.Client, maxRetries int) *QueueDispatcher {
	return &QueueDispatcher{tasks: client, maxRetries: maxRetries}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, jobID string) error {
	task, err := tasks.NewCrawlTask(jobID)
	if err != nil {
		return err
	}
	return d.tasks.Enqueue(ctx, task, tasks.QueueDefault, d.maxRetries)
}
