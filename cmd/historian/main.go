// cmd/historian/main.go is an asynchronous worker that pops lobby events from
// the Redis journal and persists them to PostgreSQL.
package main

import (
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/grooveguessr/grooveguessr/internal/cache"
	"github.com/grooveguessr/grooveguessr/internal/config"
	"github.com/grooveguessr/grooveguessr/internal/database"
	"github.com/grooveguessr/grooveguessr/internal/historian"
)

func main() {
	cfg := &config.Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}

func newCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "grooveguessr-historian",
		Short:         "Persists the lobby activity journal.",
		Args:          cobra.ExactArgs(0),
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

			logger := cfg.Logger()

			pool, err := database.ConnectDB(ctx, cfg.DSN())
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.EnsureSchema(ctx, pool); err != nil {
				return err
			}

			rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
			if err != nil {
				return err
			}
			defer rdb.Close()

			h := historian.New(
				cache.NewJournal(rdb, cfg.JournalQueue),
				database.NewEventStore(pool),
				cfg.BatchSize,
				cfg.FlushInterval,
				logger.WithField("queue", cfg.JournalQueue),
			)
			return h.Run(ctx)
		},
	}
	config.RegisterHistorianFlags(cmd.Flags(), cfg)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	return cmd
}
