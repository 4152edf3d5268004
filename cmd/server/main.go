// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grooveguessr/grooveguessr/internal/auth"
	"github.com/grooveguessr/grooveguessr/internal/cache"
	"github.com/grooveguessr/grooveguessr/internal/config"
	"github.com/grooveguessr/grooveguessr/internal/database"
	"github.com/grooveguessr/grooveguessr/internal/handlers"
	"github.com/grooveguessr/grooveguessr/internal/lobby"
)

const releaseVersion = "0.1.0"

func main() {
	cfg := &config.Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}

func newCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "grooveguessr-server",
		Short:         "HTTP API for GrooveGuessr lobbies.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.BindEnv(cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	config.RegisterServerFlags(cmd.Flags(), cfg)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("grooveguessr-server v{{.Version}}\n")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Logger()

	if cfg.PrivateKeyPath != "" {
		if err := auth.InitFromPath(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenExpire); err != nil {
			return err
		}
	} else {
		if err := auth.Init(cfg.TokenExpire); err != nil {
			return err
		}
		logger.Warn("no key pair configured, sessions will not survive a restart")
	}

	pool, err := database.ConnectDB(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	logger.Info("connected to database")

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	logger.WithField("addr", cfg.RedisAddr).Info("connected to redis")

	lobbies := database.NewLobbyStore(pool)
	svc := lobby.NewService(
		lobbies,
		database.NewContentStore(pool),
		database.NewGuessStore(pool),
		cache.NewPresence(rdb, cfg.PresenceTTL),
		lobby.Options{
			GuessingTime: cfg.GuessingTime,
			MinPlayers:   cfg.MinPlayers,
			IDLength:     cfg.LobbyIDLength,
			HostPolicy:   cfg.Policy(),
			Logger:       logger,
			Events:       cache.NewJournal(rdb, cfg.JournalQueue),
		},
	)

	api := handlers.NewAPIServer(svc, database.NewUserStore(pool), database.NewEventStore(pool), logger)
	api.BaseURL = cfg.BaseURL

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":        srv.Addr,
			"host_policy": svc.HostPolicy(),
			"version":     releaseVersion,
		}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("server exited: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
