package types

// Model describes a resolved model artifact on disk.
type Model struct {
	// Identifier the model was requested by (hub id or directory name).
	// example: distilbert-base-uncased-finetuned-sst-2-english
	ID string `json:"id" example:"distilbert-base-uncased-finetuned-sst-2-english"`
	// Human-friendly name.
	Name string `json:"name"`
	// Absolute path to the artifact (directory, or a weights file for GGUF backends).
	// example: /root/.cache/huggingface/hub/models--distilbert-base-uncased-finetuned-sst-2-english/snapshots/714eb0f/
	Path string `json:"path"`
	// Loading strategy that produced this model: "cache" or "local".
	// example: cache
	Source string `json:"source" example:"cache"`
	// Hub revision the cache entry was resolved from (cache source only).
	Revision string `json:"revision,omitempty"`
}

// Prediction is a single label/score pair returned by a classification pipeline.
type Prediction struct {
	// example: POSITIVE
	Label string `json:"label" example:"POSITIVE"`
	// Confidence in [0,1].
	// example: 0.9998
	Score float64 `json:"score" example:"0.9998"`
}

// ExampleResult pairs an input text with its top prediction.
type ExampleResult struct {
	Text       string     `json:"text"`
	Prediction Prediction `json:"prediction"`
}

// Device is a single accelerator reported by the probe.
type Device struct {
	Index         int    `json:"index"`
	Name          string `json:"name"`
	MemoryTotalMB uint64 `json:"memory_total_mb"`
	MemoryFreeMB  uint64 `json:"memory_free_mb"`
}

// Diagnostics is the environment report printed at startup.
type Diagnostics struct {
	GoVersion            string   `json:"go_version"`
	OS                   string   `json:"os"`
	Arch                 string   `json:"arch"`
	NumCPU               int      `json:"num_cpu"`
	Backend              string   `json:"backend"`
	BackendVersion       string   `json:"backend_version"`
	AcceleratorAvailable bool     `json:"accelerator_available"`
	DriverVersion        string   `json:"driver_version,omitempty"`
	CUDAVersion          string   `json:"cuda_version,omitempty"`
	Devices              []Device `json:"devices,omitempty"`
}

// DeviceName returns the name of the first accelerator, or "" when none.
func (d Diagnostics) DeviceName() string {
	if len(d.Devices) == 0 {
		return ""
	}
	return d.Devices[0].Name
}
