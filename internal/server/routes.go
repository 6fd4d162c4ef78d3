package server

import (
	"bytes"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"stayscraper/internal/core/crawl"
	"stayscraper/internal/core/job"
	"stayscraper/internal/health"
	"stayscraper/internal/platform/redis"
)

type Dependencies struct {
	Jobs  *job.Store
	Crawl *crawl.CrawlService
	// Redis is nil when jobs run on the in-process pool.
	Redis *redis.Service
}

// NewApp builds the fiber app with the shared middleware. JSON output
// keeps URLs and Korean text unescaped.
func NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Stayscraper",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})
	app.Use(recover.New())
	app.Use(cors.New())
	return app
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	healthHandler := health.NewHealthHandler()
	if d.Redis != nil {
		healthHandler.AddCheck("redis", d.Redis.HealthCheck)
	}
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	crawlHandler := crawl.NewCrawlHandler(d.Jobs, d.Crawl)
	api.Post("/crawl", crawlHandler.HandleCreateCrawl)
	api.Get("/crawl/:jobId", crawlHandler.HandleGetCrawl)
	api.Get("/crawl/:jobId/stream", crawlHandler.HandleStreamCrawl)
	api.Get("/crawl/:jobId/download", crawlHandler.HandleDownload)

	return healthHandler
}
