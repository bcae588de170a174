package worker

import (
	"gpuworker/internal/config"
	"gpuworker/internal/pipeline"
)

// PipelineConfig maps user configuration onto pipeline construction
// parameters. Logger, publisher and adapter are left for the caller.
func PipelineConfig(cfg config.Config, dev pipeline.Device) pipeline.Config {
	return pipeline.Config{
		Source:    cfg.ModelSource,
		ModelID:   cfg.ModelID,
		CacheDir:  cfg.CacheDir,
		Revision:  cfg.Revision,
		ModelPath: cfg.ModelPath,
		Backend:   cfg.Backend,
		Device:    dev,
		Server: pipeline.ServerConfig{
			Bin:            cfg.ServerBin,
			Host:           cfg.ServerHost,
			PortMin:        cfg.ServerPortMin,
			PortMax:        cfg.ServerPortMax,
			ExtraArgs:      append([]string(nil), cfg.ServerArgs...),
			ReadyTimeout:   cfg.ReadyTimeout.Duration,
			RequestTimeout: cfg.RequestTimeout.Duration,
		},
		Endpoint:       cfg.Endpoint,
		RequestTimeout: cfg.RequestTimeout.Duration,
		Threads:        cfg.LlamaThreads,
		CtxSize:        cfg.LlamaCtx,
		GPULayers:      cfg.LlamaGPULayers,
		Prototypes:     pipeline.SentimentPrototypes,
	}
}
