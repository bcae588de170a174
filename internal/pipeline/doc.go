// Package pipeline provides a text-classification pipeline over pluggable
// inference backends. It is structured into small files by concern:
//
//   - pipeline.go: Pipeline type, New, Classify/ClassifyAll, Close.
//   - config.go: Config and package defaults.
//   - device.go: device selection (cpu / cuda:N / auto).
//   - adapter_iface.go: Adapter and Session interfaces every backend satisfies.
//   - adapter_server.go: spawns a local classification server per model dir.
//   - adapter_endpoint.go: talks to an already running classification server.
//   - client.go: retrying HTTP client for the /predict, /health and /info routes.
//   - adapter_llama.go: in-process go-llama.cpp backend (zero-shot by embeddings).
//   - zeroshot.go: prototype similarity scoring used by the llama backend.
//   - describe.go: backend name/version for the startup report.
//   - errors.go, events.go: error predicates and lifecycle events.
//
// Build tags:
//
//   - In-process llama: enabled with `-tags=llama`.
//     Files: adapter_llama.go, llama_cgo.go (linker rpath hints).
//     A no-CGO stub is compiled when the tag is not set: adapter_llama_stub.go.
package pipeline
