package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/config"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/repository"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/service"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-rooms/transport/rest"
	"github.com/rocketscienceinc/tictactoe-rooms/transport/websocket"
)

const shutdownTimeout = 10 * time.Second

// RunApp - runs the application until SIGINT or SIGTERM.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return Run(ctx, logger, conf)
}

// Run serves until ctx is done or a component fails.
func Run(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	joinMode, _ := repository.ParseJoinMode(conf.Rooms.JoinMode)
	difficulty, _ := entity.ParseDifficulty(conf.Rooms.DefaultDifficulty)

	registry := repository.NewRoomRegistry(joinMode, time.Now)
	hub := websocket.NewHub(logger)
	bot := service.NewBotService(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), difficulty) //nolint: gosec // it's ok

	var opts []usecase.GatewayOption
	if conf.Redis.Enabled {
		client, err := storage.NewRedisClient(ctx, conf.Redis.GetRedisAddr())
		if err != nil {
			return fmt.Errorf("could not connect to redis storage: %w", err)
		}

		defer func() {
			if err = client.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}()

		opts = append(opts, usecase.WithJournal(repository.NewResultJournal(client, conf.Redis.JournalKey, conf.Redis.JournalLimit)))
		log.Info("result journal enabled", "key", conf.Redis.JournalKey)
	}

	gateway := usecase.NewSessionGateway(logger, registry, bot, hub, difficulty, opts...)
	reaper := service.NewReaperService(logger, registry, hub, conf.Rooms.StaleAfter, conf.Rooms.ReapInterval)
	wsServer := websocket.New(logger, hub, gateway, websocket.NewIdentity(conf.JWTSecretKey))

	srv := &http.Server{
		Addr:         ":" + conf.SocketPort,
		Handler:      rest.NewRouter(logger, wsServer, registry, hub),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("Starting WebSocket server", "port", conf.SocketPort, "joinMode", joinMode)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("WebSocket server error: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		return reaper.Run(ctx)
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("Application context canceled, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		wsServer.Close()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}

		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}

	return nil
}
