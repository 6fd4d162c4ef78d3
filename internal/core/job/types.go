package job

import (
	"time"

	"stayscraper/internal/core/listing"
)

// Status of a crawl job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Finished reports whether the job reached a terminal state.
func (s Status) Finished() bool { return s == StatusCompleted || s == StatusFailed }

// Job is one crawl request and everything known about its progress.
type Job struct {
	JobID           string           `json:"job_id"`
	Status          Status           `json:"status"`
	SearchURL       string           `json:"search_url"`
	MaxPages        int              `json:"max_pages"`
	CurrentPage     int              `json:"current_page"`
	TotalListings   int              `json:"total_listings"`
	Listings        []listing.Record `json:"listings,omitempty"`
	ProgressPercent float64          `json:"progress_percent"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	ExportURL       string           `json:"export_url,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (j Job) clone() Job {
	j.Listings = listing.Clone(j.Listings)
	return j
}
