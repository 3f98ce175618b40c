package local

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// stopGrace is how long Stop waits for a clean exit before killing.
const stopGrace = 5 * time.Second

type sidecarState int

const (
	sidecarStopped sidecarState = iota
	sidecarStarting
	sidecarRunning
	sidecarStopping
)

func (s sidecarState) String() string {
	switch s {
	case sidecarStopped:
		return "stopped"
	case sidecarStarting:
		return "starting"
	case sidecarRunning:
		return "running"
	case sidecarStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Sidecar manages the Python sidecar process lifecycle.
type Sidecar struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	state    sidecarState
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stderr   io.ReadCloser
	protocol *Protocol
	info     InitResult
	done     chan struct{} // Closed when process exits
	exitErr  error
}

// NewSidecar creates a new sidecar manager.
func NewSidecar(cfg Config, logger *slog.Logger) *Sidecar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sidecar{
		cfg:    cfg.WithDefaults(),
		logger: logger,
		state:  sidecarStopped,
	}
}

// Start launches the sidecar process, loads the model and waits until the
// sidecar reports ready or StartupTimeout passes.
func (s *Sidecar) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != sidecarStopped {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("sidecar already %s", state)
	}
	s.state = sidecarStarting
	s.mu.Unlock()

	// The process outlives ctx: it is stopped by Stop, not by cancellation.
	cmd := exec.Command(s.cfg.PythonPath, s.cfg.SidecarPath)
	if s.cfg.WorkDir != "" {
		cmd.Dir = s.cfg.WorkDir
	}
	if len(s.cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range s.cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setState(sidecarStopped)
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		s.setState(sidecarStopped)
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		s.setState(sidecarStopped)
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		s.setState(sidecarStopped)
		return fmt.Errorf("start sidecar: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.stderr = stderr
	s.protocol = NewProtocol(stdout, stdin)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.waitForExit()
	go s.drainStderr()

	initCtx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	info, err := s.initialize(initCtx)
	if err != nil {
		_ = s.Stop()
		return fmt.Errorf("initialize sidecar: %w", err)
	}

	s.mu.Lock()
	s.info = info
	s.state = sidecarRunning
	s.mu.Unlock()

	s.logger.Debug("sidecar started",
		slog.String("backend", string(s.cfg.Backend)),
		slog.String("model", s.cfg.Model),
		slog.String("version", info.Version),
		slog.Int("context_length", info.ContextLength))
	return nil
}

// Stop gracefully shuts down the sidecar process.
func (s *Sidecar) Stop() error {
	s.mu.Lock()
	if s.state == sidecarStopped || s.state == sidecarStopping {
		s.mu.Unlock()
		return nil
	}
	s.state = sidecarStopping
	done := s.done
	s.mu.Unlock()

	shutdownErr := s.shutdown(done)

	s.mu.RLock()
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	s.mu.RUnlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(stopGrace):
			s.kill()
			<-done
		}
	}

	s.setState(sidecarStopped)
	s.logger.Debug("sidecar stopped")
	return shutdownErr
}

// kill terminates the process without a shutdown handshake.
func (s *Sidecar) kill() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// IsRunning returns true if the sidecar is running.
func (s *Sidecar) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == sidecarRunning
}

// Protocol returns the JSON-RPC protocol handler.
// Returns nil if the sidecar is not running.
func (s *Sidecar) Protocol() *Protocol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != sidecarRunning {
		return nil
	}
	return s.protocol
}

// Info returns what the sidecar reported at init.
func (s *Sidecar) Info() InitResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// ExitError returns the error from the sidecar process exit, if any.
func (s *Sidecar) ExitError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exitErr
}

// initialize sends the init RPC that loads the model and tokenizer.
func (s *Sidecar) initialize(ctx context.Context) (InitResult, error) {
	s.mu.RLock()
	proto := s.protocol
	s.mu.RUnlock()

	if proto == nil {
		return InitResult{}, errors.New("protocol not initialized")
	}

	params := InitParams{
		Backend:   string(s.cfg.Backend),
		Model:     s.cfg.Model,
		Tokenizer: s.cfg.Tokenizer,
		Host:      s.cfg.Host,
		Options:   s.cfg.initOptions(),
	}

	var result InitResult
	resultCh := make(chan error, 1)
	go func() {
		resultCh <- proto.Call(MethodInit, params, &result)
	}()

	select {
	case <-ctx.Done():
		return InitResult{}, ctx.Err()
	case err := <-resultCh:
		if err != nil {
			return InitResult{}, err
		}
	}

	if !result.Ready {
		if result.Message != "" {
			return InitResult{}, fmt.Errorf("sidecar not ready: %s", result.Message)
		}
		return InitResult{}, errors.New("sidecar not ready")
	}
	return result, nil
}

// shutdown sends the shutdown RPC, giving up when the process exits first
// or the grace period passes.
func (s *Sidecar) shutdown(done <-chan struct{}) error {
	s.mu.RLock()
	proto := s.protocol
	s.mu.RUnlock()

	if proto == nil {
		return nil
	}

	var result ShutdownResult
	resultCh := make(chan error, 1)
	go func() {
		resultCh <- proto.Call(MethodShutdown, nil, &result)
	}()

	select {
	case err := <-resultCh:
		if err != nil {
			return err
		}
	case <-done:
		return nil
	case <-time.After(stopGrace):
		return errors.New("shutdown timed out")
	}

	if !result.Success {
		return fmt.Errorf("shutdown failed: %s", result.Message)
	}
	return nil
}

// waitForExit waits for the process to exit and captures the error.
func (s *Sidecar) waitForExit() {
	s.mu.RLock()
	cmd := s.cmd
	done := s.done
	s.mu.RUnlock()

	if cmd == nil {
		return
	}

	err := cmd.Wait()

	s.mu.Lock()
	s.exitErr = err
	if s.state == sidecarRunning {
		s.state = sidecarStopped
	}
	s.mu.Unlock()

	close(done)
}

// drainStderr logs sidecar stderr one line at a time.
// Python tracebacks and engine load messages end up here.
func (s *Sidecar) drainStderr() {
	s.mu.RLock()
	stderr := s.stderr
	s.mu.RUnlock()

	if stderr == nil {
		return
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		s.logger.Debug("sidecar stderr", slog.String("line", scanner.Text()))
	}
}

func (s *Sidecar) setState(state sidecarState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
