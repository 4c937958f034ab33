// Package cli implements the hearth command line.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/bdobrica/hearth/internal/hearth/app"
	"github.com/bdobrica/hearth/internal/hearth/config"
)

var rootCmd = &cobra.Command{
	Use:   "hearth",
	Short: "Household calendar assistant",
	Long: `hearth turns plain-language messages into calendar changes for a family.

Running 'hearth' without a subcommand is equivalent to 'hearth chat'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return chatCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(versionCmd)
	addIdentityFlags(rootCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to hearth.yaml (defaults plus HEARTH_* environment when omitted)")
}

// ExecuteContext runs the root command with ctx available to subcommands.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadApp reads configuration, installs the logger and builds the app.
func loadApp(cmd *cobra.Command) (*app.App, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	app.SetupLogging(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return app.New(cfg)
}
