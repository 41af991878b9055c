package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quizroom/internal/app"
	"quizroom/internal/config"
	"quizroom/internal/domain"
	"quizroom/internal/infra/memory"
	pgbank "quizroom/internal/infra/postgres"
	redisstore "quizroom/internal/infra/redis"
	transport "quizroom/internal/transport/http"
)

// NewServeCmd builds the subcommand that runs the practice backend.
func NewServeCmd(configPath *string) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the practice trivia backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, port)
		},
	}
	cmd.Flags().StringVar(&port, "port", envOr("PORT", "8080"), "port to listen on")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	port := portFlag
	if port == "" {
		port = cfg.Server.Port
	}
	if port == "" {
		port = "8080"
	}

	var rooms app.RoomStore = memory.NewRoomStore()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rooms = redisstore.NewRoomStore(client, config.Duration(cfg.Redis.TTL, time.Hour), log)
	}

	var bank app.Bank = memory.NewStaticBank(sampleRounds())
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		bank = pgbank.NewBank(pool)
	}

	service := app.NewRoomService(rooms, bank, clockwork.NewRealClock())
	handler := transport.NewHandler(service, log)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("starting quizroom practice server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// sampleRounds seeds the static bank; swap in the Postgres bank for real
// content.
func sampleRounds() [][]domain.Question {
	return [][]domain.Question{
		{
			{
				ID:           "r1q1",
				Prompt:       "Which planet is closest to the sun?",
				Options:      []string{"Venus", "Mercury", "Mars"},
				CorrectIndex: 1,
				Explanation:  "Mercury orbits at about 58 million km.",
			},
			{
				ID:           "r1q2",
				Prompt:       "What is 2 + 2?",
				Options:      []string{"3", "4", "5"},
				CorrectIndex: 1,
			},
		},
		{
			{
				ID:           "r2q1",
				Prompt:       "Which ocean is the largest?",
				Options:      []string{"Atlantic", "Indian", "Pacific"},
				CorrectIndex: 2,
			},
			{
				ID:           "r2q2",
				Prompt:       "How many legs does a spider have?",
				Options:      []string{"6", "8", "10"},
				CorrectIndex: 1,
			},
		},
	}
}
