package crawl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"stayscraper/internal/core/export"
	"stayscraper/internal/core/job"
)

const defaultMaxPages = 5

type CreateRequest struct {
	SearchURL string `json:"search_url"`
	MaxPages  *int   `json:"max_pages,omitempty"`
}

type CreateResponse struct {
	Success bool       `json:"success"`
	JobID   string     `json:"job_id"`
	Status  job.Status `json:"status"`
}

type StatusResponse struct {
	Success bool `json:"success"`
	job.Job
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type Handler struct {
	jobs   *job.Store
	crawl  *CrawlService
	stream time.Duration
}

func NewCrawlHandler(jobs *job.Store, crawl *CrawlService) *Handler {
	return &Handler{jobs: jobs, crawl: crawl, stream: time.Second}
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Success: false, Error: msg})
}

func (h *Handler) HandleCreateCrawl(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	maxPages := defaultMaxPages
	if req.MaxPages != nil {
		maxPages = *req.MaxPages
	}
	if err := ValidateRequest(req.SearchURL, maxPages); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	j, err := h.crawl.Enqueue(c.UserContext(), req.SearchURL, maxPages)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(CreateResponse{Success: true, JobID: j.JobID, Status: j.Status})
}

func (h *Handler) HandleGetCrawl(c *fiber.Ctx) error {
	j, err := h.jobs.Get(c.Params("jobId"))
	if err != nil {
		return fail(c, fiber.StatusNotFound, "not_found")
	}
	if !c.QueryBool("include_listings", true) {
		j.Listings = nil
	}
	return c.JSON(StatusResponse{Success: true, Job: j})
}

// HandleStreamCrawl pushes the job status as server-sent events until the
// job finishes or the client goes away.
func (h *Handler) HandleStreamCrawl(c *fiber.Ctx) error {
	id := c.Params("jobId")
	if _, err := h.jobs.Get(id); err != nil {
		return fail(c, fiber.StatusNotFound, "not_found")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	interval := h.stream
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for {
			j, err := h.jobs.Get(id)
			if err != nil {
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", `{"success":false,"error":"not_found"}`)
				_ = w.Flush()
				return
			}
			payload, err := json.Marshal(StatusResponse{Success: true, Job: j})
			if err != nil {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			if err := w.Flush(); err != nil {
				return
			}
			if j.Status.Finished() {
				return
			}
			time.Sleep(interval)
		}
	}))
	return nil
}

func (h *Handler) HandleDownload(c *fiber.Ctx) error {
	j, err := h.jobs.Get(c.Params("jobId"))
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "not_found")
		}
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	if j.Status != job.StatusCompleted {
		return fail(c, fiber.StatusBadRequest, fmt.Sprintf("job is %s; export is available once completed", j.Status))
	}

	data, err := export.Bytes(j.Listings)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	c.Attachment(export.Filename(time.Now()))
	c.Set(fiber.HeaderContentType, export.ContentType)
	return c.Send(data)
}
