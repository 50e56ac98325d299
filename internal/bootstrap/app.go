package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gmarmat/jotrack/internal/analysis"
	"github.com/gmarmat/jotrack/internal/config"
	"github.com/gmarmat/jotrack/internal/evidence"
	"github.com/gmarmat/jotrack/internal/guardrails"
	"github.com/gmarmat/jotrack/internal/llm"
	openai "github.com/gmarmat/jotrack/internal/llm/openai"
	"github.com/gmarmat/jotrack/internal/server"
	"github.com/gmarmat/jotrack/internal/services/health"
	"github.com/gmarmat/jotrack/internal/shared/storage/db"
	"github.com/gmarmat/jotrack/internal/variants"
)

// App holds shared dependencies wired from configuration.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB

	VariantsRepo variants.Repo
	SourcesRepo  variants.SourcesRepo
	RecordsRepo  analysis.RecordsRepo
	DepsRepo     analysis.DepsRepo

	VariantsService *variants.Service
	Engine          *analysis.Engine
	Tracker         *analysis.Tracker
	Runner          *analysis.Runner
	Sanitizer       *guardrails.Sanitizer
	ModelGate       *guardrails.ModelGate
	Taxonomy        *evidence.Taxonomy
	Health          *health.Service
	LLM             llm.Client
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB}
	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:           cfg,
		HealthService:    app.Health,
		VariantsHandler:  variants.NewHandler(app.VariantsService),
		AnalysisHandler:  analysis.NewHandler(app.Engine, app.Tracker, app.Runner),
		EvidenceHandler:  evidence.NewHandler(app.Taxonomy),
		GuardrailHandler: guardrails.NewHandler(app.Sanitizer),
	})
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildServices(app *App) error {
	cfg := app.Config

	if app.DB != nil {
		app.VariantsRepo = &variants.PGRepo{DB: app.DB}
		app.SourcesRepo = &variants.PGSourcesRepo{DB: app.DB}
		app.RecordsRepo = &analysis.PGRecordsRepo{DB: app.DB}
		app.DepsRepo = &analysis.PGDepsRepo{DB: app.DB}
	} else {
		app.VariantsRepo = variants.NewMemoryRepo()
		app.SourcesRepo = variants.NewMemorySourcesRepo()
		app.RecordsRepo = analysis.NewMemoryRecordsRepo()
		app.DepsRepo = analysis.NewMemoryDepsRepo()
	}

	patterns, err := guardrails.LoadPatternSet(cfg.GuardrailPatternsPath)
	if err != nil {
		return fmt.Errorf("load guardrail patterns: %w", err)
	}
	app.Sanitizer = guardrails.NewSanitizer(patterns)
	app.ModelGate = guardrails.NewModelGate(cfg.ModelAllowlist, cfg.AllowModelSubstitution)

	app.Taxonomy, err = evidence.LoadTaxonomy(cfg.TaxonomyPath)
	if err != nil {
		return fmt.Errorf("load taxonomy: %w", err)
	}

	app.VariantsService = &variants.Service{Repo: app.VariantsRepo, Sources: app.SourcesRepo}
	app.Engine = &analysis.Engine{
		Records:  app.RecordsRepo,
		Sources:  app.SourcesRepo,
		Variants: app.VariantsService,
	}
	app.Tracker = &analysis.Tracker{Deps: app.DepsRepo, Engine: app.Engine}
	app.VariantsService.Deps = app.Tracker

	app.LLM = llm.Client(llm.PlaceholderClient{})
	if cfg.LLMProvider == "openai" {
		if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
			client, err := openai.NewClient(key)
			if err != nil {
				return err
			}
			app.LLM = client
		} else {
			log.Printf("bootstrap: OPENAI_API_KEY empty; LLM calls will fail until configured")
		}
	}

	app.Runner = analysis.NewRunner(
		app.Engine,
		app.Tracker,
		app.VariantsService,
		app.SourcesRepo,
		app.Sanitizer,
		app.ModelGate,
		app.LLM,
		cfg.LLMModel,
		cfg.AnalysisCooldown,
		0,
	)
	app.Health = health.NewService(app.DB)
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
