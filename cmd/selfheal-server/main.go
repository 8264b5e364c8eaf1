// Command selfheal-server is the autonomous CI/CD self-healing pipeline's
// bootstrap entrypoint: it loads configuration, wires every stage
// collaborator into an orchestrator.Engine, starts the worker pool that
// advances claimable fix_pipeline_runs, and serves the HTTP surface
// (webhooks, run inspection, approvals, dashboard stream) over gin.
// Grounded on the teacher's cmd/tarsy/main.go: flag-parsed config
// directory, godotenv, then a sequential build-up of every collaborator
// before the router starts listening.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/selfheal/pipeline/pkg/adapters"
	"github.com/selfheal/pipeline/pkg/api"
	"github.com/selfheal/pipeline/pkg/artifact"
	"github.com/selfheal/pipeline/pkg/config"
	"github.com/selfheal/pipeline/pkg/coordination"
	"github.com/selfheal/pipeline/pkg/ingest"
	"github.com/selfheal/pipeline/pkg/intelligence"
	"github.com/selfheal/pipeline/pkg/llmprovider"
	"github.com/selfheal/pipeline/pkg/orchestrator"
	"github.com/selfheal/pipeline/pkg/patchgen"
	"github.com/selfheal/pipeline/pkg/policy"
	"github.com/selfheal/pipeline/pkg/postmerge"
	"github.com/selfheal/pipeline/pkg/redact"
	"github.com/selfheal/pipeline/pkg/sandbox"
	"github.com/selfheal/pipeline/pkg/store"
	"github.com/selfheal/pipeline/pkg/vcs"
	"github.com/selfheal/pipeline/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	log.Printf("starting %s", version.Full())

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	safetyPolicy, err := config.LoadSafetyPolicy(cfg.Safety.PolicyPath)
	if err != nil {
		log.Fatalf("failed to load safety policy: %v", err)
	}

	ctx := context.Background()

	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		log.Fatalf("failed to derive database config: %v", err)
	}
	client, err := store.NewClient(ctx, storeCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := client.DB().Close(); err != nil {
			log.Printf("error closing database connection: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL database")

	redisOpts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatalf("failed to parse REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("error closing redis connection: %v", err)
		}
	}()

	policyEngine, err := policy.New(safetyPolicy)
	if err != nil {
		log.Fatalf("failed to build safety policy engine: %v", err)
	}

	llmProvider, err := llmprovider.Configured(cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		log.Fatalf("failed to configure LLM provider: %v", err)
	}

	adapterRegistry := adapters.NewRegistry()

	redactor := redact.New(redact.DefaultPatterns())
	publisher := coordination.NewPublisher(redisClient)
	broadcaster := coordination.NewBroadcaster()
	go func() {
		if err := broadcaster.Run(ctx, redisClient); err != nil {
			slog.Error("dashboard broadcaster stopped", "error", err)
		}
	}()

	postMergeStore := coordination.NewPostMergeStore(redisClient)
	postMergeMonitor := postmerge.NewMonitor(postMergeStore, publisher, time.Duration(cfg.Queue.CooldownSeconds)*time.Second)

	vcsClient := vcs.New(cfg.VCS.Token, cfg.VCS.BaseURL)
	prBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pr-open",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	engine := &orchestrator.Engine{
		Store:     client,
		Leaser:    coordination.NewRepoLeaser(redisClient),
		Cooldown:  coordination.NewCooldownGuard(redisClient),
		Publisher: publisher,
		Adapters:  adapterRegistry,
		RCA:       intelligence.NewRCAStage(llmProvider),
		Plan:      intelligence.NewPlanStage(llmProvider),
		Critic:    intelligence.NewCriticStage(llmProvider),
		Policy:    policyEngine,
		Patch:     patchgen.New(),
		DiffLLM:   llmProvider,
		Sandbox:   sandbox.NewRunner(cfg.Safety.FailOnVulnSeverity),
		Artifact:  artifact.NewBuilder(redactor),
		Redactor:  redactor,
		PostMerge: postMergeMonitor,
		VCS:       vcsClient,
		PRBreaker: prBreaker,
		Config:    cfg.OrchestratorConfig(safetyPolicy),
	}

	pool := orchestrator.NewWorkerPool(getEnv("POD_ID", "selfheal-server"), client.DB(), engine, orchestrator.DefaultPoolConfig())
	pool.Start(ctx)
	defer pool.Stop()

	ingestor := ingest.New(client)
	server := api.NewServer(engine, ingestor, client, broadcaster, redactor, cfg.VCS.WebhookSecret, cfg.Server.Production)

	gin.SetMode(getEnv("GIN_MODE", cfg.Server.GinMode))
	router := server.Router()

	slog.Info("http server listening", "port", cfg.Server.HTTPPort)
	if err := router.Run(":" + cfg.Server.HTTPPort); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
