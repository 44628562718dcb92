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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/banshee-data/sourcemeter/internal/api"
	"github.com/banshee-data/sourcemeter/internal/config"
	"github.com/banshee-data/sourcemeter/internal/monitoring"
	"github.com/banshee-data/sourcemeter/internal/panel"
	"github.com/banshee-data/sourcemeter/internal/sweep"
)

func newServeCmd() *cobra.Command {
	var flags panelFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP control panel",
		Long: `Opens the instrument and serves the control panel API, live plot,
Prometheus metrics and the SCPI debug console. Without --port or
--simulate the panel still starts but sweeps cannot run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	flags.registerInstrument(cmd)
	flags.registerSweep(cmd)
	flags.registerServer(cmd)
	return cmd
}

func serve(ctx context.Context, cfg *config.PanelConfig) error {
	link, inst, err := openInstrument(cfg)
	switch {
	case errors.Is(err, errNoInstrument):
		logf("%v; sweeps are disabled", err)
	case err != nil:
		return err
	}
	defer link.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	p := panel.New(panel.Options{
		ExportDir: cfg.GetExportDir(),
		Metrics:   monitoring.NewMetrics(reg),
	})
	if inst != nil {
		if err := p.Attach(inst); err != nil {
			return err
		}
	}
	if _, err := p.ApplyConfig(cfg); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.GetListen(),
		Handler:           api.NewServer(p, link, reg).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logf("listening on http://%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logf("shutting down")

	// A run left going would keep the output on after exit.
	if err := p.Executor().Abort(); err == nil {
		logf("aborted running sweep")
	} else if !errors.Is(err, sweep.ErrNotRunning) {
		logf("abort on shutdown: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}
