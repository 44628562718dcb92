package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sourcemeter/internal/config"
	"github.com/banshee-data/sourcemeter/internal/fsutil"
	"github.com/banshee-data/sourcemeter/internal/panel"
	"github.com/banshee-data/sourcemeter/internal/plot"
	"github.com/banshee-data/sourcemeter/internal/security"
	"github.com/banshee-data/sourcemeter/internal/sweep"
	"github.com/banshee-data/sourcemeter/internal/units"
)

// runOutputs names the files a headless run writes. An empty Traces path
// saves under a timestamped name in the export directory.
type runOutputs struct {
	Traces string
	PNG    string
	HTML   string
}

func newRunCmd() *cobra.Command {
	var (
		flags panelFlags
		out   runOutputs
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sweep and save the traces",
		Long: `Runs a single sweep without the HTTP panel, printing each sample as it
is read. Ctrl-C aborts the sweep; the partial trace is still saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSweep(ctx, cmd.OutOrStdout(), cfg, out)
		},
	}
	flags.registerInstrument(cmd)
	flags.registerSweep(cmd)
	cmd.Flags().StringVar(&flags.exportDir, "export-dir", config.DefaultExportDir, "Directory for the default trace file name")
	cmd.Flags().StringVarP(&out.Traces, "out", "o", "", "Trace file to write")
	cmd.Flags().StringVar(&out.PNG, "png", "", "Also render the plot as a PNG")
	cmd.Flags().StringVar(&out.HTML, "html", "", "Also render the plot as an interactive HTML page")
	return cmd
}

func runSweep(ctx context.Context, w io.Writer, cfg *config.PanelConfig, out runOutputs) error {
	link, inst, err := openInstrument(cfg)
	if err != nil {
		return err
	}
	defer link.Close()

	dir, name := cfg.GetExportDir(), ""
	if out.Traces != "" {
		dir, name = filepath.Split(out.Traces)
		dir = filepath.Clean(dir)
	}
	p := panel.New(panel.Options{ExportDir: dir})
	if err := p.Attach(inst); err != nil {
		return err
	}
	plan, err := p.ApplyConfig(cfg)
	if err != nil {
		return err
	}
	mode := cfg.GetMode()
	fmt.Fprintf(w, "# %s sweep, %d setpoints\n", mode, len(plan))
	fmt.Fprintln(w, "# index\tbias\tV\tI")

	id, events := p.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for e := range events {
			if s := e.Sample; s != nil {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Index,
					units.Format(s.Bias, mode.Limits().BiasUnit), units.Format(s.V, units.Volt), units.Format(s.I, units.Amp))
			}
		}
	}()
	if err := p.Start(); err != nil {
		p.Unsubscribe(id)
		<-printed
		return err
	}

	done := make(chan struct{})
	go func() {
		_ = p.Wait(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logf("interrupted, aborting sweep")
		if err := p.Abort(); err != nil && !errors.Is(err, sweep.ErrNotRunning) {
			logf("abort: %v", err)
		}
		<-done
	}
	p.Unsubscribe(id)
	<-printed

	res, _ := p.Executor().LastResult()
	path, err := p.Save(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s: %d samples saved to %s\n", res.Outcome(), res.Record.Len(), path)

	series := p.Plot().Series()
	if out.PNG != "" {
		if err := writePlot(out.PNG, func(f io.Writer) error { return plot.RenderPNG(f, series, plot.Options{}) }); err != nil {
			return err
		}
	}
	if out.HTML != "" {
		if err := writePlot(out.HTML, func(f io.Writer) error { return plot.RenderHTML(f, series, plot.Options{}) }); err != nil {
			return err
		}
	}
	if res.ShutdownErr != nil {
		logf("instrument shutdown: %v", res.ShutdownErr)
	}
	return res.Err
}

func writePlot(path string, render func(io.Writer) error) (err error) {
	if err := security.ValidateExportPath(path); err != nil {
		return err
	}
	f, err := fsutil.OSFileSystem{}.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := render(f); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return nil
}
