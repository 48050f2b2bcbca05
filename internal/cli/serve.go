package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/forsitet/review-workflow-service/internal/api/http"
	"github.com/forsitet/review-workflow-service/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the SLA sweep loop",
	Long: `Start the HTTP API together with the periodic SLA sweep.

Endpoints:
  GET  /healthz            Health check
  GET  /metrics            Prometheus metrics
  *    /api/users/...      Users and roles
  *    /api/code-reviews/... Reviews, comments, environments, audit
  *    /api/sla/...        SLA summary, overdue list, manual sweep
  GET  /api/stats          Assignment and status counters`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address, overrides http.addr")
	serveCmd.Flags().Bool("no-sweep", false, "do not run the periodic SLA sweep")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	m := metrics.New()
	app, err := buildApp(ctx, cfg, st, m, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewRouter(httpapi.NewServer(app, logger), m, logger),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("review service started", "addr", srv.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if noSweep, _ := cmd.Flags().GetBool("no-sweep"); !noSweep {
		g.Go(func() error {
			return app.Escalations.Run(gctx, cfg.Escalation.SweepInterval)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down", "timeout", cfg.HTTP.ShutdownTimeout)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
