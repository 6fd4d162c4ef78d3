package job

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"stayscraper/internal/core/listing"
	"stayscraper/internal/logger"
)

var ErrNotFound = errors.New("job not found")

type entry struct {
	mu  sync.Mutex
	job Job
}

// Store keeps jobs in process memory. The map lock only guards
// membership; each job has its own lock, so updates to different jobs
// never wait on each other.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*entry
	now  func() time.Time
	log  *logger.Logger
}

func NewStore() *Store {
	return &Store{jobs: map[string]*entry{}, now: time.Now, log: logger.New("JobStore")}
}

// Create registers a pending job and returns a copy of it.
func (s *Store) Create(searchURL string, maxPages int) Job {
	now := s.now().UTC()
	e := &entry{job: Job{
		JobID:     uuid.New().String(),
		Status:    StatusPending,
		SearchURL: searchURL,
		MaxPages:  maxPages,
		Listings:  []listing.Record{},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.mu.Lock()
	s.jobs[e.job.JobID] = e
	s.mu.Unlock()
	return e.job.clone()
}

// Get returns a snapshot of the job; later updates do not affect it.
func (s *Store) Get(id string) (Job, error) {
	e, ok := s.entry(id)
	if !ok {
		return Job{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.clone(), nil
}

func (s *Store) SetRunning(id string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusRunning
	})
}

// SetPage records a finished page and the listings gathered so far.
func (s *Store) SetPage(id string, page int, cumulative []listing.Record) error {
	return s.update(id, func(j *Job) {
		j.CurrentPage = page
		j.Listings = listing.Clone(cumulative)
		j.TotalListings = len(cumulative)
		j.ProgressPercent = Progress(page, j.MaxPages)
	})
}

// SetCompleted stores the final listings. A completed job always reports
// 100% on its last page, even when pagination ran out early.
func (s *Store) SetCompleted(id string, records []listing.Record) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Listings = listing.Clone(records)
		if j.Listings == nil {
			j.Listings = []listing.Record{}
		}
		j.TotalListings = len(records)
		j.CurrentPage = j.MaxPages
		j.ProgressPercent = 100
	})
}

func (s *Store) SetFailed(id, msg string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.ErrorMessage = msg
	})
}

func (s *Store) SetExportURL(id, exportURL string) error {
	return s.update(id, func(j *Job) {
		j.ExportURL = exportURL
	})
}

// Prune drops finished jobs untouched for longer than ttl and returns how
// many went.
func (s *Store) Prune(ttl time.Duration) int {
	cutoff := s.now().UTC().Add(-ttl)

	s.mu.RLock()
	var stale []string
	for id, e := range s.jobs {
		e.mu.Lock()
		if e.job.Status.Finished() && e.job.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}
	s.mu.Lock()
	for _, id := range stale {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	s.log.LogDebugf("pruned %d finished jobs", len(stale))
	return len(stale)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Store) entry(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	return e, ok
}

func (s *Store) update(id string, fn func(*Job)) error {
	e, ok := s.entry(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.job)
	e.job.UpdatedAt = s.now().UTC()
	return nil
}

// Progress is page/maxPages as a percentage rounded to one decimal.
func Progress(page, maxPages int) float64 {
	if maxPages <= 0 {
		return 0
	}
	return math.Round(1000*float64(page)/float64(maxPages)) / 10
}
