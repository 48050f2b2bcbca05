// Package cli holds the review-service commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/forsitet/review-workflow-service/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "review-service",
	Short: "Code review workflow service",
	Long: `review-service tracks code reviews from creation to merge: reviewer
assignment by risk, approvals, SLA deadlines with escalation, ephemeral
preview environments and an audit trail.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the YAML config file")
	rootCmd.PersistentFlags().StringSlice("env-file", []string{".env"}, "env files loaded before the config")

	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, versionCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads env files and the config named by the persistent flags
// and builds the process logger from it.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return nil, nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, cfg.Log.Logger(os.Stderr), nil
}
