package crawl

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"stayscraper/internal/core/export"
	"stayscraper/internal/core/job"
)

func newTestApp(t *testing.T, r Runner) (*fiber.App, *job.Store, *Handler) {
	t.Helper()
	svc, store := newService(r, nil)
	h := NewCrawlHandler(store, svc)
	h.stream = 10 * time.Millisecond

	app := fiber.New()
	app.Post("/v1/crawl", h.HandleCreateCrawl)
	app.Get("/v1/crawl/:jobId", h.HandleGetCrawl)
	app.Get("/v1/crawl/:jobId/stream", h.HandleStreamCrawl)
	app.Get("/v1/crawl/:jobId/download", h.HandleDownload)
	return app, store, h
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, body
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateCrawlValidation(t *testing.T) {
	app, store, _ := newTestApp(t, &fakeRunner{})

	for name, body := range map[string]string{
		"broken json":    `{"search_url":`,
		"missing url":    `{"max_pages":2}`,
		"relative url":   `{"search_url":"/s/Seoul/homes"}`,
		"zero pages":     `{"search_url":"https://www.airbnb.co.kr/s/Seoul/homes","max_pages":0}`,
		"too many pages": `{"search_url":"https://www.airbnb.co.kr/s/Seoul/homes","max_pages":21}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, body := do(t, app, postJSON(body))
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

			var e ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.False(t, e.Success)
			assert.NotEmpty(t, e.Error)
		})
	}
	assert.Zero(t, store.Len())
}

func TestCreateAndGetCrawl(t *testing.T) {
	app, store, _ := newTestApp(t, &fakeRunner{records: recs("1", "2")})

	resp, body := do(t, app, postJSON(`{"search_url":"https://www.airbnb.co.kr/s/Seoul/homes?adults=2"}`))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var created CreateResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.Success)
	require.NotEmpty(t, created.JobID)

	j, err := store.Get(created.JobID)
	require.NoError(t, err)
	assert.Equal(t, defaultMaxPages, j.MaxPages)

	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/v1/crawl/"+created.JobID, nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.Success)
	assert.Equal(t, job.StatusCompleted, status.Status)
	assert.Len(t, status.Listings, 2)
	assert.Equal(t, 100.0, status.ProgressPercent)

	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/v1/crawl/"+created.JobID+"?include_listings=false", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.NotContains(t, raw, "listings")
	assert.EqualValues(t, 2, raw["total_listings"])
}

func TestGetUnknownCrawl(t *testing.T) {
	app, _, _ := newTestApp(t, &fakeRunner{})

	for _, path := range []string{"/v1/crawl/nope", "/v1/crawl/nope/stream", "/v1/crawl/nope/download"} {
		resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, path)
	}
}

func TestDownload(t *testing.T) {
	app, store, _ := newTestApp(t, &fakeRunner{})

	pending := store.Create(searchURL, 2)
	resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/v1/crawl/"+pending.JobID+"/download", nil))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	done := store.Create(searchURL, 2)
	require.NoError(t, store.SetCompleted(done.JobID, recs("7", "8", "9")))
	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/v1/crawl/"+done.JobID+"/download", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "listings_")

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, "Stay 9", rows[3][1])
}

func frames(body []byte) []StatusResponse {
	var out []StatusResponse
	for _, line := range strings.Split(string(body), "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var s StatusResponse
		if json.Unmarshal([]byte(data), &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

func TestStreamFinishedJob(t *testing.T) {
	app, store, _ := newTestApp(t, &fakeRunner{})
	j := store.Create(searchURL, 1)
	require.NoError(t, store.SetFailed(j.JobID, "page 1: navigate: timeout"))

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/v1/crawl/"+j.JobID+"/stream", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	got := frames(body)
	require.Len(t, got, 1)
	assert.Equal(t, job.StatusFailed, got[0].Status)
	assert.Equal(t, "page 1: navigate: timeout", got[0].ErrorMessage)
}

func TestStreamFollowsProgress(t *testing.T) {
	app, store, _ := newTestApp(t, &fakeRunner{})
	j := store.Create(searchURL, 2)
	require.NoError(t, store.SetRunning(j.JobID))

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = store.SetPage(j.JobID, 1, recs("1"))
		time.Sleep(30 * time.Millisecond)
		_ = store.SetCompleted(j.JobID, recs("1", "2"))
	}()

	_, body := do(t, app, httptest.NewRequest(http.MethodGet, "/v1/crawl/"+j.JobID+"/stream", nil))
	got := frames(body)
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, job.StatusRunning, got[0].Status)
	last := got[len(got)-1]
	assert.Equal(t, job.StatusCompleted, last.Status)
	assert.Equal(t, 2, last.TotalListings)
}
