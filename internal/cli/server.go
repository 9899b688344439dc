package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-ladder-service/internal/catalog"
	"quiz-ladder-service/internal/config"
	"quiz-ladder-service/internal/domain"
	"quiz-ladder-service/internal/game"
	"quiz-ladder-service/internal/infra/memory"
	pgstore "quiz-ladder-service/internal/infra/postgres"
	redisinfra "quiz-ladder-service/internal/infra/redis"
	transport "quiz-ladder-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz progression server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var loader catalog.Loader = memory.NewStaticCatalogLoader(sampleStages())
	var store game.Store
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pgstore.NewCatalogLoader(pool)

		db := openBun(cfg.Postgres.URL)
		defer db.Close()
		store = pgstore.NewStore(db)
	}

	var catalogs catalog.Repository = catalog.NewLoaderRepository(loader)
	if redisClient != nil {
		catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
		catalogs = redisinfra.NewCatalogCache(redisClient, loader, catalogTTL)
	}
	if store == nil {
		store = memory.NewStore(catalogs)
	}

	// Catalog invariants are configuration errors: fail startup, not requests.
	gameCfg := game.Config{
		RetryLimit:      cfg.Game.RetryLimit,
		HintLimit:       cfg.Game.HintLimit,
		LeaderboardSize: cfg.Game.LeaderboardSize,
		Stage:           cfg.Game.Stage,
	}
	service := game.NewService(store, catalogs, gameCfg)
	if stageID, err := service.ActiveStage(ctx); err == nil {
		if _, err := catalogs.GetStage(ctx, stageID); err != nil {
			return err
		}
	}

	wsHandler := transport.NewWSHandler(service)
	adminHandler := transport.NewAdminHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	adminHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz ladder service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleStages provides a minimal question ladder for running without a
// database; production content comes from Postgres.
func sampleStages() map[int64][]domain.Question {
	return map[int64][]domain.Question{
		1: {
			{
				ID: 1, Stage: 1, Text: "What is 2 + 2?", Weight: 10,
				Variants: []domain.Variant{
					{QuestionID: 1, ID: "a", Text: "3"},
					{QuestionID: 1, ID: "b", Text: "4", Correct: true},
					{QuestionID: 1, ID: "c", Text: "5"},
					{QuestionID: 1, ID: "d", Text: "22"},
				},
			},
			{
				ID: 2, Stage: 1, Text: "Which planet is closest to the sun?", Weight: 20,
				Variants: []domain.Variant{
					{QuestionID: 2, ID: "a", Text: "Venus"},
					{QuestionID: 2, ID: "b", Text: "Mars"},
					{QuestionID: 2, ID: "c", Text: "Mercury", Correct: true},
					{QuestionID: 2, ID: "d", Text: "Earth"},
				},
			},
		},
	}
}
