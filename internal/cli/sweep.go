package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sla-sweep",
	Short: "Run one SLA sweep and print the result as JSON",
	Long: `Run a single escalation sweep against the configured storage: escalate
reviews past their escalation threshold, send aging reminders and reap
expired environments. Useful from cron when serve runs with --no-sweep.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := openStorage(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	app, err := buildApp(cmd.Context(), cfg, st, nil, logger)
	if err != nil {
		return err
	}

	result, err := app.Escalations.Sweep(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
