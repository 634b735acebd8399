package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/codexray/malapi-catalog/internal/application"
	appanalysis "github.com/codexray/malapi-catalog/internal/application/analysis"
	appbudget "github.com/codexray/malapi-catalog/internal/application/budget"
	appfunctions "github.com/codexray/malapi-catalog/internal/application/functions"
	appmapping "github.com/codexray/malapi-catalog/internal/application/mapping"
	appmatrix "github.com/codexray/malapi-catalog/internal/application/matrix"
	apptaxonomy "github.com/codexray/malapi-catalog/internal/application/taxonomy"
	"github.com/codexray/malapi-catalog/internal/config"
	domanalysis "github.com/codexray/malapi-catalog/internal/domain/analysis"
	dombudget "github.com/codexray/malapi-catalog/internal/domain/budget"
	domfunctions "github.com/codexray/malapi-catalog/internal/domain/functions"
	dommapping "github.com/codexray/malapi-catalog/internal/domain/mapping"
	domtaxonomy "github.com/codexray/malapi-catalog/internal/domain/taxonomy"
	aiclient "github.com/codexray/malapi-catalog/internal/infra/ai/openai"
	mysqlp "github.com/codexray/malapi-catalog/internal/infra/db/mysql"
	postgresp "github.com/codexray/malapi-catalog/internal/infra/db/postgres"
	"github.com/codexray/malapi-catalog/internal/infra/httpserver"
	minioStore "github.com/codexray/malapi-catalog/internal/infra/storage"
	"github.com/codexray/malapi-catalog/internal/middleware"
)

type repositories struct {
	taxonomy domtaxonomy.Repository
	mapping  dommapping.Repository
	function domfunctions.Repository
	cache    domanalysis.CacheRepository
	budget   dombudget.Repository
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, repositories, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, repositories{}, err
		}
		return db, repositories{
			taxonomy: postgresp.NewTaxonomyRepository(db),
			mapping:  postgresp.NewMappingRepository(db),
			function: postgresp.NewFunctionRepository(db),
			cache:    postgresp.NewCacheRepository(db),
			budget:   postgresp.NewBudgetRepository(db),
		}, nil
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, repositories{}, err
		}
		return db, repositories{
			taxonomy: mysqlp.NewTaxonomyRepository(db),
			mapping:  mysqlp.NewMappingRepository(db),
			function: mysqlp.NewFunctionRepository(db),
			cache:    mysqlp.NewCacheRepository(db),
			budget:   mysqlp.NewBudgetRepository(db),
		}, nil
	default:
		return nil, repositories{}, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Analysis.Timezone)
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", cfg.Analysis.Timezone, err)
	}

	ctx := context.Background()

	// connect database
	db, repos, err := openDatabase(ctx, cfg)
	if err != nil {
		log.Fatalf("database connect error: %v", err)
	}
	defer db.Close()

	// init minio source store
	sources, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// init provider
	provider := aiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)

	clock := application.SystemClock{}

	// init services
	taxonomySvc := apptaxonomy.NewService(repos.taxonomy)
	mappingSvc := appmapping.NewService(repos.mapping, repos.taxonomy)
	matrixSvc := appmatrix.NewService(repos.taxonomy, repos.mapping)
	functionSvc := appfunctions.NewService(repos.function, mappingSvc)
	budgetSvc := appbudget.NewService(repos.budget, cfg.Analysis.DailyBudgetUSD, loc, clock)
	analysisSvc := appanalysis.NewService(repos.cache, provider, budgetSvc, repos.function, sources, clock, appanalysis.Options{
		CacheTTL:        time.Duration(cfg.Analysis.CacheTTLHours) * time.Hour,
		ProviderTimeout: time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second,
		RetryAttempts:   cfg.Analysis.RetryAttempts,
		EstimatedTokens: cfg.Analysis.EstimatedTokens,
		DefaultModel:    cfg.OpenAI.Model,
		Temperature:     cfg.OpenAI.Temperature,
		RatePerToken:    cfg.Analysis.RatePerToken,
		DefaultRate:     cfg.Analysis.DefaultRate,
	})

	// init router
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimitMiddleware(60, 10))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	mux.Get("/metrics", middleware.MetricsHandler)
	mux.Get("/healthz", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}))
	mux.Mount("/", httpserver.NewRouter(taxonomySvc, mappingSvc, matrixSvc, functionSvc, analysisSvc, budgetSvc))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
