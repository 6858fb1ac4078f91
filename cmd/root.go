// Package cmd defines the CLI commands of the tiktok-monitor executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tiktok-monitor/internal/app"
	"github.com/JakeFAU/tiktok-monitor/internal/config"
	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
	"github.com/JakeFAU/tiktok-monitor/internal/logging"
)

// App is the surface commands use. *app.App satisfies it; tests inject a mock.
type App interface {
	Store() crawler.Store
	Manager() *crawler.Manager
	Serve(ctx context.Context) error
	Close() error
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// runtime carries what PersistentPreRunE prepared for a subcommand.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

type runtimeKey struct{}

type options struct {
	cfgFile string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "tiktok-monitor",
		Short: "Monitor TikTok videos and accounts.",
		Long: `tiktok-monitor crawls video and account statistics through the web
API, stores every snapshot, and re-crawls registered targets on a schedule.`,
		SilenceUsage: true,

		// Loads .env, configuration and the logger before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(config.ResolvePath(opts.cfgFile))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			ctx := context.WithValue(cmd.Context(), runtimeKey{}, &runtime{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey{}).(*runtime); ok {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "",
		"config file (default $"+config.PathEnv+")")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSignCmd())
	cmd.AddCommand(newTaskCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runtimeFrom(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// withApp builds the application, runs fn and closes the application.
func withApp(cmd *cobra.Command, fn func(rt *runtime, a App) error) (err error) {
	rt, err := runtimeFrom(cmd.Context())
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			rt.logger.Warn("close application services", zap.Error(closeErr))
		}
	}()
	return fn(rt, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
