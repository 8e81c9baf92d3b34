package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bandwatch/bandwatch/internal/api"
	"github.com/bandwatch/bandwatch/internal/config"
	"github.com/bandwatch/bandwatch/internal/jobs"
	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/bandwatch/bandwatch/internal/metrics"
	"github.com/bandwatch/bandwatch/internal/panel"
	"github.com/bandwatch/bandwatch/internal/scheduler"
	"github.com/bandwatch/bandwatch/internal/store"
	"github.com/bandwatch/bandwatch/internal/telegram"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "run"},
	Short:   "Start the Bandwatch service",
	Long: `Start the scheduler and the ops API.

The service collects usage snapshots from the configured panel on a fixed
cadence, computes daily usage windows, and delivers reports and warnings
over Telegram.

Example:
  bandwatch serve --config config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	level := logging.LogLevel(cfg.Server.LogLevel)
	if globalFlags.Verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(logging.WithLevel(level))
	m := metrics.NewMetrics("bandwatch")
	loc := cfg.Location()

	st, err := store.NewSQLiteStore(cfg.Database.Path, loc)
	if err != nil {
		return err
	}
	defer st.Close()

	panelClient := panel.NewClient(cfg.Panel, logger, m)

	var bot telegram.BotAPI
	if cfg.Telegram.Enabled {
		client, err := telegram.NewTGBotAPIClient(cfg.Telegram.BotToken)
		if err != nil {
			return err
		}
		bot = client
		telegram.Notify(cfg.Telegram.BotToken, cfg.Telegram.AdminChatIDs, "bandwatch started")
	} else {
		logger.Warn("telegram disabled, notifications will not be delivered")
	}

	engine := scheduler.NewEngine(cfg.Scheduler.TickInterval, logger, m)
	service := jobs.NewService(panelClient, st, bot, cfg.Scheduler, cfg.Telegram, loc, logger, m)
	service.RegisterAll(engine)
	engine.Start()
	defer engine.Stop()

	watcher, err := config.NewWatcher(loader, logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	var server *api.Server
	serverErr := make(chan error, 1)
	if cfg.API.Enabled {
		server = api.NewServer(cfg.Server, cfg.API, panelClient, st, m, logger)
		go func() {
			serverErr <- server.Start()
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", "error", err.Error())
		}
	}

	return nil
}
