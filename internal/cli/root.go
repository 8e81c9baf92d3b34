package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	Verbose bool
}

var globalFlags GlobalFlags

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "bandwatch",
	Short: "Bandwatch - per-account bandwidth accounting and reporting",
	Long: `Bandwatch tracks per-account bandwidth usage on a remote panel,
records periodic usage snapshots, and delivers scheduled reports
and warnings over Telegram.

Use "bandwatch [command] --help" for more information about a command.`,
}

// Execute runs the root command with the given arguments
func Execute(args []string) int {
	initRoot()

	RootCmd.SetArgs(args)
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func initRoot() {
	configPath := os.Getenv("BANDWATCH_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(checkCmd)
	RootCmd.AddCommand(versionCmd)
}

// versionCmd prints build information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Bandwatch",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bandwatch %s (%s, %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
