package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"competition-engine/internal/app"
	"competition-engine/internal/config"
	"competition-engine/internal/domain"
	"competition-engine/internal/infra/memory"
	pgstore "competition-engine/internal/infra/postgres"
	redisinfra "competition-engine/internal/infra/redis"
	transport "competition-engine/internal/transport/http"

	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the competition engine server",
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

	service, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	handler := transport.NewHandler(service, app.NewTokenAuthorizer(cfg.Admin.Token))
	stream := transport.NewLeaderboardStream(handler)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("GET /ws/leaderboard", stream.ServeWS)

	// Round boundaries are state transitions with no natural caller, so a
	// scheduled sweep evaluates termination and reconciles visibility on top
	// of the lazy read-path evaluation.
	sweepInterval := config.Duration(cfg.Engine.SweepInterval, 1*time.Minute)
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(func() { sweepPass(ctx, service) }),
	); err != nil {
		return err
	}
	scheduler.Start()
	defer func() { _ = scheduler.Shutdown() }()

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting competition engine on :%s", finalPort)
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

// buildService wires the store and engagement reader from config: Postgres
// and Redis when configured, in-memory fallbacks otherwise.
func buildService(ctx context.Context, cfg config.Config) (*app.CompetitionService, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var store app.Store
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		cleanups = append(cleanups, func() { _ = db.Close() })
		store = pgstore.NewStore(db)
	} else {
		memStore := memory.NewStore()
		memStore.SeedCompetition(sampleCompetition())
		store = memStore
	}

	cacheTTL := config.Duration(cfg.Engine.CacheTTL, 10*time.Minute)

	var engagement app.EngagementReader
	switch {
	case cfg.Redis.Addr != "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanups = append(cleanups, func() { _ = client.Close() })
		engagement = redisinfra.NewEngagementReader(client)
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, pool.Close)
		engagement = memory.NewCachedEngagementReader(pgstore.NewLikeCounter(pool), cacheTTL)
	default:
		engagement = memory.NewStaticEngagementReader()
	}

	settings := app.Settings{
		Enabled:             cfg.EngineEnabled(),
		EngagementTimeout:   config.Duration(cfg.Engine.EngagementTimeout, 10*time.Second),
		MaxConcurrentCounts: 8,
	}
	return app.NewCompetitionService(store, engagement, settings), cleanup, nil
}

// sampleCompetition seeds the in-memory store for local runs without a database.
func sampleCompetition() domain.Competition {
	now := time.Now()
	ten := 10
	return domain.Competition{
		ID:       "comp-1",
		Title:    "Weekly Photo Battle",
		IsActive: true,
		Rounds: []domain.Round{
			{ID: "round-1", Name: "Round 1", StartDate: now.Add(-time.Hour), EndDate: now.Add(24 * time.Hour)},
			{ID: "round-2", Name: "Round 2", StartDate: now.Add(24 * time.Hour), EndDate: now.Add(48 * time.Hour), LikesToPass: &ten},
		},
	}
}
