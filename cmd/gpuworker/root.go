package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gpuworker/internal/config"
	"gpuworker/internal/httpapi"
	"gpuworker/internal/logging"
	"gpuworker/internal/pipeline"
	"gpuworker/internal/worker"
)

// loggedError marks an error that was already written to the process log.
type loggedError struct{ error }

func (e loggedError) Unwrap() error { return e.error }

type flagValues struct {
	configPath   string
	logLevel     string
	logFormat    string
	modelSource  string
	modelID      string
	cacheDir     string
	revision     string
	modelPath    string
	backend      string
	serverBin    string
	endpoint     string
	device       string
	texts        []string
	textsCSV     string
	idleInterval time.Duration
	metricsAddr  string
}

const envHelp = `Every flag can also be set through a GPUWORKER_* environment variable
(e.g. GPUWORKER_MODEL_SOURCE, GPUWORKER_DEVICE, GPUWORKER_IDLE_INTERVAL;
GPUWORKER_TEXTS is newline separated). Precedence, lowest first:
defaults, --config file, environment, flags.

The hub cache location follows HF_HUB_CACHE, then HF_HOME/hub, then
~/.cache/huggingface/hub.`

// runFunc executes the worker with a resolved configuration.
type runFunc func(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error

func newRootCmd(lookupEnv func(string) (string, bool)) *cobra.Command {
	return newRootCmdWith(lookupEnv, runWorker)
}

// newRootCmdWith constructs the command with an injectable run step.
func newRootCmdWith(lookupEnv func(string) (string, bool), run runFunc) *cobra.Command {
	def := config.Default()
	fv := &flagValues{}
	root := &cobra.Command{
		Use:           "gpuworker",
		Short:         "GPU worker template: diagnostics, sentiment model smoke test, then idle",
		Long:          "gpuworker prints an environment report, loads a sentiment-analysis model,\nclassifies a few example texts and then idles until SIGINT or SIGTERM.\n\n" + envHelp,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.Flags()
	f.StringVar(&fv.configPath, "config", "", "Config file (.yaml, .yml, .json, .toml)")
	f.StringVar(&fv.logLevel, "log-level", def.LogLevel, "Log level: debug|info|warn|error")
	f.StringVar(&fv.logFormat, "log-format", def.LogFormat, "Log format: console|json")
	f.StringVar(&fv.modelSource, "model-source", def.ModelSource, "Model loading strategy: cache|local|none")
	f.StringVar(&fv.modelID, "model-id", def.ModelID, "Hub model id for --model-source cache")
	f.StringVar(&fv.cacheDir, "cache-dir", "", "Hub cache directory (default from HF_HUB_CACHE/HF_HOME)")
	f.StringVar(&fv.revision, "revision", def.Revision, "Hub revision for --model-source cache")
	f.StringVar(&fv.modelPath, "model-path", def.ModelPath, "Model directory for --model-source local")
	f.StringVar(&fv.backend, "backend", def.Backend, "Inference backend: server|endpoint|llama")
	f.StringVar(&fv.serverBin, "server-bin", def.ServerBin, "Classification server binary for --backend server")
	f.StringVar(&fv.endpoint, "endpoint", "", "Classification server URL for --backend endpoint")
	f.StringVar(&fv.device, "device", def.Device, "Device: auto|cpu|cuda|cuda:N")
	f.StringArrayVar(&fv.texts, "text", nil, "Example text to classify (repeatable)")
	f.StringVar(&fv.textsCSV, "texts", "", "Comma-separated example texts")
	f.DurationVar(&fv.idleInterval, "idle-interval", def.IdleInterval.Duration, "Heartbeat interval while idle")
	f.StringVar(&fv.metricsAddr, "metrics-addr", "", "Ops listener address for /healthz, /readyz, /status, /metrics (off when empty)")

	root.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, invalid, err := resolveConfig(cmd, fv, lookupEnv)
		if err != nil {
			return err
		}
		if len(invalid) > 0 {
			log := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			for _, e := range invalid {
				log.Warn().Str("var", e.Name).Str("value", e.Value).Err(e.Err).Msg("ignoring invalid environment value")
			}
		}
		return run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	}
	return root
}

// resolveConfig merges defaults, the config file, the environment and the
// flags the user actually set, then validates the result. Environment values
// that could not be parsed are skipped and returned for the caller to report.
func resolveConfig(cmd *cobra.Command, fv *flagValues, lookupEnv func(string) (string, bool)) (config.Config, []config.InvalidEnv, error) {
	cfg := config.Default()
	path := fv.configPath
	if !cmd.Flags().Changed("config") {
		if v, ok := lookupEnv(config.EnvPrefix + "CONFIG"); ok {
			path = v
		}
	}
	if path != "" {
		fileCfg, err := config.Load(path)
		if err != nil {
			return cfg, nil, fmt.Errorf("load config: %w", err)
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, invalid := config.FromEnv(lookupEnv)
	cfg = cfg.Merge(envCfg)
	flagCfg, err := flagOverlay(cmd, fv)
	if err != nil {
		return cfg, invalid, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = cfg.Merge(flagCfg)
	if err := cfg.Validate(); err != nil {
		return cfg, invalid, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, invalid, nil
}

// flagOverlay returns the flags the user set. Zero means unset in Merge, so
// values that would collapse to zero are rejected here.
func flagOverlay(cmd *cobra.Command, fv *flagValues) (config.Config, error) {
	var over config.Config
	changed := cmd.Flags().Changed
	set := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}
	set("log-level", &over.LogLevel, fv.logLevel)
	set("log-format", &over.LogFormat, fv.logFormat)
	set("model-source", &over.ModelSource, fv.modelSource)
	set("model-id", &over.ModelID, fv.modelID)
	set("cache-dir", &over.CacheDir, fv.cacheDir)
	set("revision", &over.Revision, fv.revision)
	set("model-path", &over.ModelPath, fv.modelPath)
	set("backend", &over.Backend, fv.backend)
	set("server-bin", &over.ServerBin, fv.serverBin)
	set("endpoint", &over.Endpoint, fv.endpoint)
	set("device", &over.Device, fv.device)
	set("metrics-addr", &over.MetricsAddr, fv.metricsAddr)
	if changed("idle-interval") {
		if fv.idleInterval <= 0 {
			return over, fmt.Errorf("--idle-interval must be positive, got %s", fv.idleInterval)
		}
		over.IdleInterval = config.Duration{Duration: fv.idleInterval}
	}
	var texts []string
	if changed("text") {
		texts = append(texts, fv.texts...)
	}
	if changed("texts") {
		texts = append(texts, config.SplitCSV(fv.textsCSV)...)
	}
	over.Texts = texts
	return over, nil
}

func runWorker(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	runID := uuid.NewString()
	log := logging.New(cfg.LogLevel, cfg.LogFormat, stderr).With().Str("run_id", runID).Logger()
	log.Info().
		Str("model_source", cfg.ModelSource).
		Str("backend", cfg.Backend).
		Str("device", cfg.Device).
		Msg("gpuworker starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	status := worker.NewStatus(runID)
	pubs := pipeline.MultiPublisher{pipeline.LogPublisher{Logger: log.With().Str("component", "events").Logger()}}
	var wg sync.WaitGroup
	if cfg.MetricsAddr != "" {
		pubs = append(pubs, httpapi.MetricsPublisher{})
		httpapi.SetLogger(log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpapi.Serve(ctx, cfg.MetricsAddr, status); err != nil {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("ops listener failed")
			}
		}()
	}

	err := worker.Run(ctx, worker.Options{
		Config:    cfg,
		Out:       stdout,
		Logger:    &log,
		Publisher: pubs,
		Status:    status,
	})
	cancel()
	wg.Wait()
	if err != nil {
		logFailure(log, err)
		return loggedError{err}
	}
	log.Info().Msg("gpuworker stopped")
	return nil
}

func logFailure(log zerolog.Logger, err error) {
	ev := log.Error().Err(err)
	switch {
	case pipeline.IsNotCached(err):
		ev = ev.Str("hint", "model is not in the local cache; bake it into the image or use --model-source local")
	case pipeline.IsNotFound(err):
		ev = ev.Str("hint", "model path does not exist")
	case pipeline.IsDependencyUnavailable(err):
		ev = ev.Str("hint", "inference backend is not available in this image")
	}
	ev.Msg("gpuworker failed")
}

