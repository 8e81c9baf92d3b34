package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/bandwatch/bandwatch/internal/config"
	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/bandwatch/bandwatch/internal/panel"
	"github.com/bandwatch/bandwatch/internal/store"
	"github.com/spf13/cobra"
)

// checkCmd verifies configuration, database and panel connectivity.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration, database and panel connectivity",
	Long: `Run a one-shot health check: load the configuration, open the
database, and probe the panel API with the configured credentials.

Example:
  bandwatch check --config config.yaml`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fmt.Printf("config: ok (%s)\n", globalFlags.Config)

	loc := cfg.Location()
	st, err := store.NewSQLiteStore(cfg.Database.Path, loc)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	fmt.Printf("database: ok (%s)\n", cfg.Database.Path)
	for table, count := range stats {
		fmt.Printf("  %s: %d rows\n", table, count)
	}

	logger := logging.NewLogger(logging.WithLevel(logging.LevelError))
	client := panel.NewClient(cfg.Panel, logger, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.TestConnection(ctx); err != nil {
		return fmt.Errorf("panel: %w", err)
	}
	fmt.Printf("panel: ok (%s)\n", cfg.Panel.BaseURL)

	return nil
}
