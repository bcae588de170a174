package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: not ready
	Error string `json:"error" example:"not ready"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}

// StatusResponse is returned by GET /status on the ops listener.
type StatusResponse struct {
	// Per-process run identifier.
	RunID string `json:"run_id"`
	// Worker lifecycle state (starting, loading, running, idle, stopping, error).
	// example: idle
	State string `json:"state" example:"idle"`
	// Resolved model, if one was loaded.
	Model *Model `json:"model,omitempty"`
	// Device the pipeline runs on, e.g. "cpu" or "cuda:0".
	// example: cuda:0
	Device string `json:"device,omitempty" example:"cuda:0"`
	// Environment report collected at startup.
	Diagnostics Diagnostics `json:"diagnostics"`
	// Results of the example run.
	Results []ExampleResult `json:"results,omitempty"`
	// Last error observed by the worker (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the worker in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
