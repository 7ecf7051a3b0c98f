// Command agent is the engagement-agent process: it wires the crawl
// scheduler, analysis pipeline, posting queue, and auto-post worker into
// one running service and exposes its REST surface, health routes and
// /metrics over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/reachby3c/engagement-agent/internal/api"
	"github.com/reachby3c/engagement-agent/internal/automation"
	"github.com/reachby3c/engagement-agent/internal/clustering"
	"github.com/reachby3c/engagement-agent/internal/crawl"
	redditcrawl "github.com/reachby3c/engagement-agent/internal/crawl/adapters/reddit"
	"github.com/reachby3c/engagement-agent/internal/crawl/adapters/serpapi"
	"github.com/reachby3c/engagement-agent/internal/crawl/adapters/twitter"
	"github.com/reachby3c/engagement-agent/internal/crisis"
	"github.com/reachby3c/engagement-agent/internal/domain/organization"
	"github.com/reachby3c/engagement-agent/internal/llm"
	"github.com/reachby3c/engagement-agent/internal/metrics"
	"github.com/reachby3c/engagement-agent/internal/middleware"
	"github.com/reachby3c/engagement-agent/internal/pipeline"
	"github.com/reachby3c/engagement-agent/internal/platform/config"
	"github.com/reachby3c/engagement-agent/internal/platform/credentials"
	"github.com/reachby3c/engagement-agent/internal/platform/logging"
	"github.com/reachby3c/engagement-agent/internal/platform/servicetoken"
	"github.com/reachby3c/engagement-agent/internal/posting"
	redditpost "github.com/reachby3c/engagement-agent/internal/posting/adapters/reddit"
	twitterpost "github.com/reachby3c/engagement-agent/internal/posting/adapters/twitter"
	"github.com/reachby3c/engagement-agent/internal/ratelimit"
	"github.com/reachby3c/engagement-agent/internal/storage"
	"github.com/reachby3c/engagement-agent/pkg/response"
)

func main() {
	flags := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.App.Env, cfg.App.LogLevel, os.Stdout)
	logger.Info("engagement agent starting", "env", cfg.App.Env)
	metrics.Register()
	response.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Analysis pipeline ---
	llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.OpenAIAPIKey, cfg.LLM.RequestTimeout)
	skills := &pipeline.Skills{
		LLM:      llmClient,
		Crisis:   crisis.New(),
		Model:    cfg.LLM.Model,
		Temp:     cfg.LLM.Temperature,
		MaxToken: cfg.LLM.MaxTokens,
		Logger:   logger,
	}
	driver := pipeline.NewPipelineDriver(skills)

	// --- Crawl scheduler + durable handoff + processor ---
	box := credentials.New(cfg.Security.EncryptionKey) // shared by every posting adapter below

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	jobQueue := crawl.NewJobQueue(redisClient, logger)

	store, orgStore := openStore(cfg, logger)
	clusterSink := clustering.NewNopSink(logger)
	processor := crawl.NewProcessor(store, driver, clusterSink, logger)

	// The scheduler's callback only enqueues: a dedicated consumer per
	// config drains jobQueue and runs the processor, so a processor
	// restart never loses a crawl result already produced.
	scheduler := crawl.NewScheduler(logger, func(configName string, result *crawl.CrawlResult) {
		if _, err := jobQueue.Enqueue(ctx, configName, *result); err != nil {
			logger.Error("enqueue crawl result failed", "config", configName, "error", err)
		}
	})

	configNames := []string{}
	if cfg.Crawlers.RedditClientID != "" {
		scheduler.RegisterCrawler(redditcrawl.New(redditcrawl.Config{
			ClientID: cfg.Crawlers.RedditClientID, ClientSecret: cfg.Crawlers.RedditSecret,
			Username: cfg.Crawlers.RedditUsername, Password: cfg.Crawlers.RedditPassword,
			UserAgent: cfg.Crawlers.RedditUserAgent,
		}))
		_ = scheduler.AddConfig(crawl.CrawlConfig{
			Name: "reddit-default", Platform: "reddit", Keywords: defaultKeywords,
			Frequency: crawl.FrequencyEvery6Hours, Limit: 25, Enabled: true,
		})
		configNames = append(configNames, "reddit-default")
	}
	if cfg.Crawlers.TwitterBearer != "" {
		scheduler.RegisterCrawler(twitter.New(twitter.Config{BearerToken: cfg.Crawlers.TwitterBearer}))
		_ = scheduler.AddConfig(crawl.CrawlConfig{
			Name: "twitter-default", Platform: "twitter", Keywords: defaultKeywords,
			Frequency: crawl.FrequencyHourly, Limit: 25, Enabled: true,
		})
		configNames = append(configNames, "twitter-default")
	}
	if cfg.Crawlers.SerpAPIKey != "" {
		scheduler.RegisterCrawler(serpapi.New(serpapi.Config{APIKey: cfg.Crawlers.SerpAPIKey}))
		_ = scheduler.AddConfig(crawl.CrawlConfig{
			Name: "google-default", Platform: "google", Keywords: defaultKeywords,
			Frequency: crawl.FrequencyDaily, Limit: 25, Enabled: true,
		})
		configNames = append(configNames, "google-default")
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	for _, name := range configNames {
		go runCrawlConsumer(ctx, jobQueue, processor, name, logger)
	}

	// --- Posting queue ---
	posters := buildPosters(cfg, box)
	// Submission pacing per platform, on top of the per-org policy the
	// OrgLimitManager enforces: a 429 from a platform backs off every
	// worker posting there, not just the item that observed it.
	postLimiters := ratelimit.NewManager(ratelimit.Config{
		PerMinute: 2, PerHour: 30, PerDay: 200,
		MinDelay: 30 * time.Second, BackoffBase: time.Minute, BackoffMult: 2, MaxBackoff: 30 * time.Minute,
	})
	postQueue := posting.New(posting.DefaultConfig(), logger)
	postQueue.Start(ctx, 3, dispatchPost(posters, postLimiters), func(item *posting.QueueItem) {
		logger.Warn("posting queue item failed permanently", "item_id", item.ID, "error", item.LastError)
	})
	defer postQueue.Stop(10 * time.Second)

	// --- Automation: org limits, eligibility, periodic worker ---
	limitManager := automation.NewOrgLimitManager()
	limitManager.SetLimits("default", organization.DefaultLimits())
	if orgStore != nil {
		if orgs, err := orgStore.ListActive(ctx); err != nil {
			logger.Warn("failed to seed org limits from database", "error", err)
		} else {
			for _, org := range orgs {
				limitManager.SetLimits(org.Slug(), org.Limits())
			}
		}
	}
	checker := automation.NewChecker(limitManager)

	taskRunner := automation.NewTaskRunner(logger)
	worker := automation.NewWorker(checker, limitManager, postQueue,
		noopCandidateSource, orgLimitsSource(orgStore), noopStatusUpdater, logger)
	worker.RegisterOn(taskRunner)
	taskRunner.Start(ctx)
	defer taskRunner.Stop()

	go sampleQueueDepth(ctx, postQueue)

	// --- HTTP surface ---
	tokenIssuer := servicetoken.New(cfg.Security.JWTSecret)
	pipelineHandler := api.NewPipelineHandler(driver)
	skillsHandler := api.NewSkillsHandler(skills)
	crawlHandler := api.NewCrawlHandler(scheduler)
	postingHandler := api.NewPostingHandler(postQueue, limitManager, checker, taskRunner)
	healthHandler := api.NewHealthHandler(postQueue, scheduler)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Recoverer(logger))
	router.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"}}))

	healthHandler.RegisterRoutes(router)
	router.Handle("/metrics", metrics.Handler())

	// Public routes get a per-IP request cap distinct from the domain rate
	// limiters (ratelimit.Limiter, OrgLimitManager): this guards the process
	// itself from being overwhelmed by a single caller, not a platform's
	// posting quota.
	router.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(100, time.Minute))
		pipelineHandler.RegisterRoutes(r)
		skillsHandler.RegisterRoutes(r)
		crawlHandler.RegisterRoutes(r)
		postingHandler.RegisterRoutes(r)
	})

	router.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(100, time.Minute))
		r.Use(api.RequirePrivileged(tokenIssuer, logger))
		crawlHandler.RegisterPrivilegedRoutes(r)
		postingHandler.RegisterPrivilegedRoutes(r)
	})

	srv := &http.Server{Addr: cfg.Server.Host + ":" + cfg.Server.Port, Handler: router}
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("engagement agent shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

var defaultKeywords = []string{"feeling overwhelmed", "need advice", "struggling with"}

// buildPosters constructs one breaker-wrapped Poster per platform with
// configured credentials, encrypting them at rest with box up front so the
// adapters' Decrypt-at-call-time contract is satisfied uniformly whether
// the plaintext came from env vars (here) or a secrets store (production).
func buildPosters(cfg *config.Config, box *credentials.Box) map[string]posting.Poster {
	posters := make(map[string]posting.Poster)

	if cfg.Crawlers.RedditPassword != "" {
		encPassword, err := box.Encrypt(cfg.Crawlers.RedditPassword)
		if err == nil {
			posters["reddit"] = posting.NewBreakerPoster("reddit", redditpost.New(redditpost.Config{
				ClientID: cfg.Crawlers.RedditClientID, ClientSecret: cfg.Crawlers.RedditSecret,
				Username: cfg.Crawlers.RedditUsername, EncryptedPassword: encPassword,
				UserAgent: cfg.Crawlers.RedditUserAgent,
			}, box))
		}
	}
	if cfg.Crawlers.TwitterBearer != "" {
		encToken, err := box.Encrypt(cfg.Crawlers.TwitterBearer)
		if err == nil {
			posters["twitter"] = posting.NewBreakerPoster("twitter", twitterpost.New(twitterpost.Config{
				EncryptedBearerToken: encToken,
			}, box))
		}
	}
	return posters
}

// dispatchPost routes a queue item to its platform's Poster, pacing
// submissions through that platform's limiter.
func dispatchPost(posters map[string]posting.Poster, limiters *ratelimit.Manager) posting.PostFunc {
	return func(ctx context.Context, item *posting.QueueItem) posting.PostResult {
		poster, ok := posters[item.Platform]
		if !ok {
			return posting.PostResult{Success: false, ErrorCode: "MISSING_CREDENTIALS", Retryable: false}
		}

		limiter := limiters.GetOrCreate("post:"+item.Platform, nil)
		if err := limiter.Acquire(ctx); err != nil {
			return posting.PostResult{Success: false, ErrorCode: "RATELIMIT", Retryable: true}
		}

		result, err := poster.Post(ctx, item.ResponseText, item.TargetURL, true, len(item.ResponseText), nil)
		if err != nil && result.ErrorCode == "" {
			result.ErrorCode = "PLATFORM_ERROR"
			result.Retryable = true
		}
		switch {
		case result.Success:
			limiter.RecordSuccess()
		case result.ErrorCode == "RATELIMIT":
			limiter.RecordRateLimitHit()
		default:
			limiter.RecordFailure()
		}

		outcome := "success"
		if !result.Success {
			outcome = result.ErrorCode
		}
		metrics.PostingResultsTotal.WithLabelValues(item.Platform, outcome).Inc()
		return result
	}
}

// runCrawlConsumer drains one config's durable job queue and hands each
// batch to the processor, so a processor restart never loses a crawl
// result the scheduler already produced.
func runCrawlConsumer(ctx context.Context, q *crawl.JobQueue, p *crawl.Processor, configName string, logger logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := q.Dequeue(ctx, configName, 5*time.Second)
		if err != nil {
			logger.Error("crawl consumer dequeue failed", "config", configName, "error", err)
			continue
		}
		if job == nil {
			continue
		}

		stats := p.Process(ctx, configName, &job.Result)
		recordCrawlStats(configName, stats)
		if err := q.Complete(ctx, configName, job.ID); err != nil {
			logger.Error("crawl consumer complete failed", "config", configName, "job_id", job.ID, "error", err)
		}
	}
}

// recordCrawlStats translates one batch's ProcessStats into the crawl
// counters /metrics exposes.
func recordCrawlStats(configName string, stats crawl.ProcessStats) {
	outcome := "ok"
	if stats.Errors > 0 && stats.NewPosts == 0 {
		outcome = "error"
	}
	metrics.CrawlJobsTotal.WithLabelValues(configName, outcome).Inc()
	metrics.CrawlPostsDiscovered.WithLabelValues(configName, "new").Add(float64(stats.NewPosts))
	metrics.CrawlPostsDiscovered.WithLabelValues(configName, "duplicate").Add(float64(stats.Duplicates))
	metrics.CrawlPostsDiscovered.WithLabelValues(configName, "queued").Add(float64(stats.Queued))
	metrics.CrawlPostsDiscovered.WithLabelValues(configName, "error").Add(float64(stats.Errors))
}

func noopCandidateSource(ctx context.Context, limit int) ([]automation.ResponseData, error) {
	return nil, nil
}

func noopStatusUpdater(ctx context.Context, resp automation.ResponseData, status automation.ResponseStatus, auditNote string) error {
	return nil
}

// sampleQueueDepth polls the posting queue's size on a short interval so
// /metrics reflects current depth rather than only point-in-time events.
func sampleQueueDepth(ctx context.Context, q *posting.Queue) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := q.Stats()
			metrics.PostingQueueDepth.WithLabelValues("queued").Set(float64(stats.Queued))
			metrics.PostingQueueDepth.WithLabelValues("processing").Set(float64(stats.Processing))
		}
	}
}

// openStore attempts to open the Postgres-backed crawl.Store and
// organization repository; on any failure (no database configured, not
// reachable yet) it falls back to the in-memory store so the rest of the
// spine still runs, logging the degradation rather than failing startup.
func openStore(cfg *config.Config, logger logging.Logger) (crawl.Store, *storage.OrgStore) {
	sqlDB, err := storage.OpenSQL(cfg.Database)
	if err != nil {
		logger.Warn("database unavailable, falling back to in-memory post store", "error", err)
		return newInMemoryStore(), nil
	}

	gormDB, err := storage.OpenGorm(cfg.Database)
	if err != nil {
		logger.Warn("gorm connection failed, organization persistence disabled", "error", err)
		return storage.NewPostStore(sqlDB), nil
	}

	orgStore := storage.NewOrgStore(gormDB)
	if err := orgStore.Migrate(context.Background()); err != nil {
		logger.Warn("organization table migration failed", "error", err)
	}
	return storage.NewPostStore(sqlDB), orgStore
}

// orgLimitsSource adapts an *storage.OrgStore (which may be nil when
// persistence is unavailable) into an automation.OrgLimitsSource, falling
// back to DefaultLimits so the worker keeps running degraded.
func orgLimitsSource(orgStore *storage.OrgStore) automation.OrgLimitsSource {
	return func(ctx context.Context, orgID string) (organization.Limits, error) {
		if orgStore == nil {
			return organization.DefaultLimits(), nil
		}
		id, err := uuid.Parse(orgID)
		if err != nil {
			return organization.DefaultLimits(), nil
		}
		org, err := orgStore.FindByID(ctx, id)
		if err != nil {
			return organization.DefaultLimits(), nil
		}
		return org.Limits(), nil
	}
}
