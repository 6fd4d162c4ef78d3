package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"stayscraper/internal/browser"
	"stayscraper/internal/config"
	"stayscraper/internal/core/crawl"
	"stayscraper/internal/core/extract"
	"stayscraper/internal/core/job"
	"stayscraper/internal/core/ladder"
	"stayscraper/internal/core/paginate"
	"stayscraper/internal/logger"
	rds "stayscraper/internal/platform/redis"
	"stayscraper/internal/platform/storage"
	tasks "stayscraper/internal/platform/tasks"
	"stayscraper/internal/server"
	"stayscraper/internal/worker"
)

func main() {
	cfg := config.Load()
	logr := logger.New("main")
	logr.LogInfof("starting at %s (env=%s)", cfg.HTTPAddr, cfg.AppEnv)

	selectors, err := ladder.Load(cfg.SelectorsFile)
	if err != nil {
		logr.LogFatalf("selectors: %v", err)
	}

	browsers := browser.NewManager(browser.Options{
		Engine:     browser.Engine(cfg.BrowserEngine),
		Stealth:    cfg.UseStealth,
		Headless:   cfg.BrowserHeadless,
		Bin:        cfg.BrowserBin,
		UserAgent:  cfg.UserAgent,
		Lang:       cfg.BrowserLang,
		NavTimeout: cfg.NavTimeout,
	})
	crawler := crawl.NewCrawler(
		browsers,
		extract.New(selectors, cfg.BaseURL),
		paginate.New(selectors.Pagination.Next, browser.Pause),
		browser.Pause,
	)

	var uploader crawl.Uploader
	if cfg.UsesStorage() {
		exports, err := storage.New(storage.Options{
			URL:        cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseServiceKey,
			Bucket:     cfg.SupabaseBucket,
			AppEnv:     cfg.AppEnv,
		})
		if err != nil {
			logr.LogWarnf("export upload disabled: %v", err)
		} else {
			uploader = exports
		}
	}

	jobs := job.NewStore()
	crawlSvc := crawl.NewCrawlService(jobs, crawler, uploader)

	// Queue mode: the job store is process local, so this process also
	// runs the asynq worker.
	var (
		redisSvc    *rds.Service
		asynqServer *asynq.Server
		taskClient  *tasks.Client
		pool        *worker.Pool
	)
	if cfg.UsesQueue() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisSvc, err = rds.New(ctx, rds.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		cancel()
		if err != nil {
			logr.LogFatalf("%v", err)
		}
		defer redisSvc.Close()

		taskClient = tasks.New(redisSvc)
		defer taskClient.Close()
		crawlSvc.UseDispatcher(crawl.NewQueueDispatcher(taskClient, cfg.TaskMaxRetries))

		asynqServer = asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues:      map[string]int{tasks.QueueDefault: 1},
		})
		mux := worker.NewMux()
		mux.HandleFunc(tasks.TaskTypeCrawl, crawlSvc.HandleCrawlTask)
		if err := asynqServer.Start(mux.Mux()); err != nil {
			logr.LogFatalf("start worker: %v", err)
		}
		logr.LogInfof("dispatching crawls through redis at %s", cfg.RedisAddr)
	} else {
		pool = worker.NewPool(cfg.WorkerConcurrency)
		crawlSvc.UseDispatcher(crawl.NewPoolDispatcher(pool, crawlSvc.Execute))
		logr.LogInfof("dispatching crawls in process (%d workers)", cfg.WorkerConcurrency)
	}

	app := server.NewApp()
	healthHandler := server.RegisterRoutes(app, server.Dependencies{
		Jobs:  jobs,
		Crawl: crawlSvc,
		Redis: redisSvc,
	})
	healthHandler.SetReady()

	pruneCtx, stopPrune := context.WithCancel(context.Background())
	go prune(pruneCtx, jobs, cfg.JobTTL, logr)

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			logr.LogFatalf("server listen: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	logr.LogInfo("Shutting down...")
	stopPrune()
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logr.LogWarnf("http shutdown: %v", err)
	}
	if asynqServer != nil {
		asynqServer.Shutdown()
	}
	if pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		pool.Shutdown(ctx)
		cancel()
	}
	logr.LogSuccessf("stopped")
}

// prune drops finished jobs past their TTL.
func prune(ctx context.Context, jobs *job.Store, ttl time.Duration, log *logger.Logger) {
	t := time.NewTicker(min(ttl, 10*time.Minute))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := jobs.Prune(ttl); n > 0 {
				log.LogInfof("pruned %d expired jobs", n)
			}
		}
	}
}
