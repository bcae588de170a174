// Package worker runs the startup script: print diagnostics, load the
// sentiment pipeline, classify the example texts, then idle until the
// context is cancelled.
package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gpuworker/internal/config"
	"gpuworker/internal/diag"
	"gpuworker/internal/pipeline"
	"gpuworker/pkg/types"
)

// Options wires the worker to its environment. Only Config is required.
type Options struct {
	Config config.Config
	// Out receives the user-facing script output. Defaults to os.Stdout.
	Out    io.Writer
	Logger *zerolog.Logger
	// Probe inspects accelerators. Defaults to diag.NewProbe(), or
	// diag.NoAccelerator when the device is forced to cpu.
	Probe     diag.Probe
	Publisher pipeline.EventPublisher
	Status    *Status
	// Adapter overrides the configured backend.
	Adapter pipeline.Adapter
}

// Run executes the script. It returns nil once ctx is cancelled during the
// idle phase (or earlier); load and inference failures are returned.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	log = log.With().Str("component", "worker").Logger()
	st := opts.Status
	if st == nil {
		st = NewStatus("")
	}
	probe := opts.Probe
	if probe == nil {
		probe = ProbeFor(cfg.Device)
	}

	// 1. diagnostics
	pcfg := PipelineConfig(cfg, pipeline.CPU)
	backend := diag.Backend{}
	if cfg.ModelSource != config.SourceNone {
		backend = pipeline.Describe(ctx, pcfg)
	}
	d := diag.Collect(ctx, probe, backend)
	st.setDiagnostics(d)
	if err := diag.Print(out, d); err != nil {
		return fmt.Errorf("print diagnostics: %w", err)
	}
	log.Debug().Bool("accelerator", d.AcceleratorAvailable).Str("backend", backend.Name).Msg("diagnostics collected")
	if opts.Publisher != nil {
		opts.Publisher.Publish(pipeline.Event{Name: pipeline.EventDiagnostics, Fields: map[string]any{"accelerator": d.AcceleratorAvailable, "devices": len(d.Devices)}})
	}

	var p *pipeline.Pipeline
	if cfg.ModelSource != config.SourceNone {
		dev, err := pipeline.ParseDevice(cfg.Device, d.AcceleratorAvailable)
		if err != nil {
			st.setError(err)
			return err
		}
		pcfg.Device = dev
		pcfg.Logger = &log
		pcfg.Publisher = opts.Publisher
		pcfg.Adapter = opts.Adapter

		// 2. load
		st.setState(StateLoading)
		fmt.Fprintln(out, "\nLoading sentiment analysis model...")
		p, err = pipeline.New(ctx, pcfg)
		if err != nil {
			if ctx.Err() != nil {
				return shutdown(out, log, st, nil)
			}
			st.setError(err)
			return fmt.Errorf("load model: %w", err)
		}
		st.setModel(p.Model(), p.Device().String())
		fmt.Fprintln(out, "Model loaded successfully!")

		// 3. examples
		st.setState(StateRunning)
		fmt.Fprintln(out, "\n--- Running sentiment analysis ---")
		results, err := p.ClassifyAll(ctx, cfg.Texts, func(r types.ExampleResult) {
			fmt.Fprintf(out, "Text: %s\n", r.Text)
			fmt.Fprintf(out, "Result: %s (confidence: %.4f)\n\n", r.Prediction.Label, r.Prediction.Score)
			st.addResult(r)
		})
		if err != nil {
			if ctx.Err() != nil {
				return shutdown(out, log, st, p)
			}
			st.setError(err)
			_ = p.Close()
			return fmt.Errorf("classify %q: %w", cfg.Texts[len(results)], err)
		}
	}

	// 4. idle
	st.markReady()
	fmt.Fprintln(out, "Container is running. Press Ctrl+C to stop.")
	idle(ctx, log, cfg.IdleInterval.Duration)
	return shutdown(out, log, st, p)
}

// idle blocks until ctx is done, logging a heartbeat every interval.
func idle(ctx context.Context, log zerolog.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = config.DefaultIdleInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			log.Debug().Dur("uptime", time.Since(start).Round(time.Second)).Msg("idle")
		}
	}
}

func shutdown(out io.Writer, log zerolog.Logger, st *Status, p *pipeline.Pipeline) error {
	st.setState(StateStopping)
	fmt.Fprintln(out, "\nShutting down...")
	log.Info().Msg("shutting down")
	if p == nil {
		return nil
	}
	if err := p.Close(); err != nil {
		log.Warn().Err(err).Msg("close pipeline")
	}
	return nil
}

// ProbeFor picks the accelerator probe for a device setting: forcing the CPU
// skips hardware inspection entirely.
func ProbeFor(device string) diag.Probe {
	if strings.EqualFold(strings.TrimSpace(device), "cpu") {
		return diag.NoAccelerator
	}
	return diag.NewProbe()
}
