package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gpuworker/internal/common/fsutil"
	"gpuworker/pkg/types"
)

// ServerConfig configures the spawned classification server.
type ServerConfig struct {
	Bin          string
	Host         string
	PortMin      int
	PortMax      int
	ExtraArgs    []string
	ReadyTimeout time.Duration
	// StopGrace is how long Stop waits after SIGTERM before killing.
	StopGrace time.Duration
	// RequestTimeout bounds each /predict call.
	RequestTimeout time.Duration
}

const (
	defaultReadyTimeout = 2 * time.Minute
	defaultStopGrace    = 5 * time.Second
	stderrTailBytes     = 4096
)

// serverAdapter spawns and manages a classification server per model path.
type serverAdapter struct {
	cfg       ServerConfig
	mu        sync.Mutex
	procs     map[string]*procInfo // key: model path
	log       zerolog.Logger
	publisher EventPublisher
}

type procInfo struct {
	cmd     *exec.Cmd
	baseURL string
	ready   bool
	pid     int
	exited  chan struct{} // closed once the process has been reaped
	waitErr error         // valid after exited is closed
	stderr  *tailBuffer
}

// NewServerAdapter constructs a subprocess-backed adapter.
func NewServerAdapter(cfg ServerConfig, log zerolog.Logger, pub EventPublisher) Adapter {
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	if pub == nil {
		pub = noopPublisher{}
	}
	return &serverAdapter{cfg: cfg, procs: make(map[string]*procInfo), log: log.With().Str("adapter", "server").Logger(), publisher: pub}
}

// serverSession represents a model served by a spawned process.
type serverSession struct {
	a         *serverAdapter
	modelPath string
	c         *predictClient
}

func (a *serverAdapter) Start(ctx context.Context, model types.Model, params LoadParams) (Session, error) {
	if strings.TrimSpace(model.Path) == "" {
		return nil, errors.New("model path is empty")
	}
	if !fsutil.PathExists(model.Path) {
		return nil, fmt.Errorf("model path not found: %s", model.Path)
	}
	baseURL, err := a.ensureProcess(ctx, model, params.Device)
	if err != nil {
		return nil, err
	}
	return &serverSession{a: a, modelPath: model.Path, c: newPredictClient(baseURL, a.cfg.RequestTimeout)}, nil
}

func (s *serverSession) Classify(ctx context.Context, text string) ([]types.Prediction, error) {
	if _, _, _, ok := s.a.getProcInfo(s.modelPath); !ok {
		return nil, errClosed
	}
	return s.c.Predict(ctx, text)
}

func (s *serverSession) Close() error { return s.a.Stop(s.modelPath) }

// serverArgs builds the command line: the model directory, bind address and
// any extra args from configuration.
func (a *serverAdapter) serverArgs(modelPath string, port int) []string {
	args := []string{
		"--model-id", modelPath,
		"--hostname", a.cfg.Host,
		"--port", strconv.Itoa(port),
	}
	return append(args, a.cfg.ExtraArgs...)
}

// deviceEnv pins the server to one accelerator, or hides all of them for CPU.
func deviceEnv(base []string, dev Device) []string {
	env := make([]string, 0, len(base)+1)
	for _, kv := range base {
		if !strings.HasPrefix(kv, "CUDA_VISIBLE_DEVICES=") {
			env = append(env, kv)
		}
	}
	if dev.IsCPU() {
		return append(env, "CUDA_VISIBLE_DEVICES=")
	}
	return append(env, "CUDA_VISIBLE_DEVICES="+strconv.Itoa(int(dev)))
}

// ensureProcess starts (or returns existing) server for the model and waits readiness.
func (a *serverAdapter) ensureProcess(ctx context.Context, model types.Model, dev Device) (string, error) {
	if _, base, ready, ok := a.getProcInfo(model.Path); ok {
		if ready && newPredictClient(base, 0).Healthy(ctx, time.Second) {
			return base, nil
		}
		// unhealthy or half started: restart
		_ = a.Stop(model.Path)
	}

	bin, err := exec.LookPath(a.cfg.Bin)
	if err != nil {
		return "", ErrDependencyUnavailable(fmt.Sprintf("classification server %q not found: %v", a.cfg.Bin, err))
	}

	var port int
	if a.cfg.PortMin > 0 && a.cfg.PortMax >= a.cfg.PortMin {
		port, err = pickPortInRange(a.cfg.Host, a.cfg.PortMin, a.cfg.PortMax)
	} else {
		port, err = pickFreePort(a.cfg.Host)
	}
	if err != nil {
		return "", err
	}
	baseURL := "http://" + net.JoinHostPort(a.cfg.Host, strconv.Itoa(port))

	cmd := exec.Command(bin, a.serverArgs(model.Path, port)...)
	cmd.Env = deviceEnv(os.Environ(), dev)
	// Capture stderr for diagnostics (kept in-memory; tail is included on failure)
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start classification server: %w", err)
	}
	pid := cmd.Process.Pid
	a.log.Info().Str("model", model.ID).Int("pid", pid).Str("url", baseURL).Str("device", dev.String()).Msg("server starting")
	a.publisher.Publish(Event{Name: EventSpawnStart, ModelID: model.ID, Fields: map[string]any{"pid": pid, "port": port}})

	p := &procInfo{cmd: cmd, baseURL: baseURL, pid: pid, exited: make(chan struct{}), stderr: stderr}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	a.mu.Lock()
	a.procs[model.Path] = p
	a.mu.Unlock()

	fail := func(name string, err error) (string, error) {
		_ = a.Stop(model.Path)
		a.log.Error().Str("model", model.ID).Int("pid", pid).Err(err).Msg("server failed")
		a.publisher.Publish(Event{Name: name, ModelID: model.ID, Fields: map[string]any{"pid": pid, "error": err.Error()}})
		return "", err
	}

	client := newPredictClient(baseURL, 0)
	deadline := time.NewTimer(a.cfg.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return fail(EventSpawnExit, ctx.Err())
		case <-deadline.C:
			return fail(EventSpawnTimeout, fmt.Errorf("classification server not ready in %s: %s", a.cfg.ReadyTimeout, baseURL))
		case <-p.exited:
			if p.waitErr != nil {
				return fail(EventSpawnExit, fmt.Errorf("classification server exited early: %v; stderr tail: %s", p.waitErr, stderr.String()))
			}
			return fail(EventSpawnExit, fmt.Errorf("classification server exited before ready: %s", baseURL))
		case <-tick.C:
		}
		if client.Healthy(ctx, time.Second) {
			break
		}
	}

	a.mu.Lock()
	p.ready = true
	a.mu.Unlock()
	a.log.Info().Str("model", model.ID).Int("pid", pid).Str("url", baseURL).Msg("server ready")
	a.publisher.Publish(Event{Name: EventSpawnReady, ModelID: model.ID, Fields: map[string]any{"pid": pid, "url": baseURL}})
	return baseURL, nil
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	_, portStr, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

// getProcInfo safely reads proc info under lock and returns a snapshot.
func (a *serverAdapter) getProcInfo(modelPath string) (pid int, baseURL string, ready bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p := a.procs[modelPath]; p != nil {
		return p.pid, p.baseURL, p.ready, true
	}
	return 0, "", false, false
}

// Stop terminates the server for modelPath, if present: SIGTERM first, then
// SIGKILL after the grace period.
func (a *serverAdapter) Stop(modelPath string) error {
	a.mu.Lock()
	p := a.procs[modelPath]
	delete(a.procs, modelPath)
	a.mu.Unlock()
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	select {
	case <-p.exited:
	default:
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.exited:
		case <-time.After(a.cfg.StopGrace):
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
	}
	a.log.Info().Str("model_path", modelPath).Int("pid", p.pid).Msg("server stopped")
	a.publisher.Publish(Event{Name: EventSpawnStop, ModelID: modelPath, Fields: map[string]any{"pid": p.pid}})
	return nil
}

// StopAll terminates all managed subprocesses. Best effort.
func (a *serverAdapter) StopAll() {
	a.mu.Lock()
	paths := make([]string, 0, len(a.procs))
	for k := range a.procs {
		paths = append(paths, k)
	}
	a.mu.Unlock()
	for _, path := range paths {
		_ = a.Stop(path)
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
