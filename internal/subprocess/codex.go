package subprocess

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/parallelcodex/codex-sdk-go/internal/cli"
	"github.com/parallelcodex/codex-sdk-go/internal/config"
	"github.com/parallelcodex/codex-sdk-go/internal/errors"
	"github.com/parallelcodex/codex-sdk-go/internal/wire"
)

const (
	// maxScanTokenSize is the maximum buffer size for reading server output lines.
	maxScanTokenSize = 1024 * 1024 // 1MB

	// stopTimeout is how long Stop waits for a graceful exit before killing.
	stopTimeout = 5 * time.Second
)

// CodexTransport implements config.Transport by spawning a codex mcp-server
// subprocess.
type CodexTransport struct {
	log            *slog.Logger
	options        *config.Options
	codexPath      string
	args           []string
	env            []string
	cwd            string
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	stdout         io.ReadCloser
	stderr         io.ReadCloser
	stderrCallback func(string)
	mu             sync.Mutex // Protects stdin writes and lifecycle fields
	closing        bool       // Whether Stop() has been called (intentional shutdown)
	stdinClosed    bool       // Whether stdin was closed
	readerStarted  bool       // Whether ReadMessages has been called
	procDone       chan struct{}
}

// Compile-time verification that CodexTransport implements the Transport interface.
var _ config.Transport = (*CodexTransport)(nil)

// NewCodexTransport creates a new transport with the given options.
//
// Binary discovery and the login probe are deferred to Start(), which
// returns CodexNotFoundError or NotLoggedInError if they fail.
func NewCodexTransport(log *slog.Logger, options *config.Options) *CodexTransport {
	return &CodexTransport{
		log:            log.With("component", "codex_transport"),
		options:        options,
		stderrCallback: options.Stderr,
		procDone:       make(chan struct{}),
	}
}

// Start starts the codex mcp-server subprocess.
//
// Start is idempotent: calling it on a running transport is a no-op. It
// discovers the codex binary, checks authentication, and spawns the server
// with stdin, stdout, and stderr pipes. Any pipe or spawn failure is
// returned as a StartupError.
func (t *CodexTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd != nil {
		t.log.Debug("Transport already started, ignoring Start")

		return nil
	}

	t.log.Info("Starting codex mcp-server subprocess")

	discoverer := cli.NewDiscoverer(&cli.Config{
		CodexPath:      t.options.CodexPath,
		SkipLoginCheck: t.options.SkipLoginCheck,
		Logger:         t.log,
	})

	codexPath, err := discoverer.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover codex CLI: %w", err)
	}

	t.codexPath = codexPath
	t.args = cli.BuildArgs()
	t.env = cli.BuildEnvironment(t.options)

	t.cwd = t.options.Cwd
	if t.cwd == "" {
		t.cwd, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}

	t.log.Debug("Built server command", "codex_path", t.codexPath, "args", t.args, "cwd", t.cwd)

	//nolint:gosec // G204: subprocess launching with discovered binary is the point
	cmd := exec.Command(t.codexPath, t.args...)
	cmd.Dir = t.cwd
	cmd.Env = t.env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.log.Error("Failed to create stdin pipe", "error", err)

		return &errors.StartupError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	t.stdin = stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.log.Error("Failed to create stdout pipe", "error", err)

		return &errors.StartupError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	t.stdout = stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.log.Error("Failed to create stderr pipe", "error", err)

		return &errors.StartupError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	t.stderr = stderr

	if err := cmd.Start(); err != nil {
		t.log.Error("Failed to start codex mcp-server", "error", err)

		return &errors.StartupError{Err: fmt.Errorf("start process: %w", err)}
	}

	t.cmd = cmd
	t.log.Info("codex mcp-server started", "pid", cmd.Process.Pid)

	return nil
}

// ReadMessages reads decoded frames from the server's stdout.
//
// This method starts the single reader goroutine for the connection. It
// must be called at most once: the correlation layer depends on frames
// being processed strictly in arrival order, and concurrent readers of the
// same pipe corrupt framing.
//
// Blank lines are skipped. Lines that fail to parse as JSON produce a
// ProtocolDecodeError on the error channel and reading continues. Both
// channels close at end-of-stream.
//
// A second goroutine drains stderr so the server's debug logging never
// backs up the pipe and blocks protocol output.
func (t *CodexTransport) ReadMessages(
	ctx context.Context,
) (<-chan wire.Message, <-chan error) {
	messages := make(chan wire.Message)
	errs := make(chan error, 1)

	t.mu.Lock()
	t.readerStarted = true
	t.mu.Unlock()

	var stderrWg sync.WaitGroup

	stderrWg.Go(func() {
		scanner := bufio.NewScanner(t.stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}

			t.log.Debug("codex mcp-server stderr", "line", line)

			if t.stderrCallback != nil {
				t.stderrCallback(line)
			}
		}

		if err := scanner.Err(); err != nil {
			t.log.Debug("Stderr scanner error", "error", err)
		}
	})

	go func() {
		defer close(messages)
		defer close(errs)
		defer t.log.Debug("ReadMessages goroutine stopped")

		scanner := bufio.NewScanner(t.stdout)
		buf := make([]byte, maxScanTokenSize)
		scanner.Buffer(buf, maxScanTokenSize)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				t.log.Debug("Context cancelled during scan", "error", ctx.Err())

				select {
				case errs <- ctx.Err():
				default:
				}

				t.finishWait(&stderrWg)

				return
			default:
			}

			line := scanner.Bytes()
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}

			msg, err := wire.Decode(line)
			if err != nil {
				t.log.Warn("Failed to decode frame from codex mcp-server", "error", err, "line", string(line))

				select {
				case errs <- err:
				default:
					// Error channel full; the decode error was already logged
				}

				continue
			}

			select {
			case messages <- msg:
			case <-ctx.Done():
				t.log.Debug("Context cancelled during message send", "error", ctx.Err())

				select {
				case errs <- ctx.Err():
				default:
				}

				t.finishWait(&stderrWg)

				return
			}
		}

		if err := scanner.Err(); err != nil {
			t.log.Error("Scanner error while reading server output", "error", err)

			select {
			case errs <- fmt.Errorf("scanner error: %w", err):
			default:
			}
		}

		t.finishWait(&stderrWg)
	}()

	return messages, errs
}

// finishWait waits for the stderr drain, reaps the process, and signals
// procDone so Stop can observe the exit.
func (t *CodexTransport) finishWait(stderrWg *sync.WaitGroup) {
	stderrWg.Wait()

	t.log.Debug("Waiting for codex mcp-server to exit")

	err := t.cmd.Wait()

	t.mu.Lock()
	isClosing := t.closing
	t.mu.Unlock()

	switch {
	case err == nil:
		t.log.Info("codex mcp-server exited cleanly")
	case isClosing:
		t.log.Debug("codex mcp-server terminated during shutdown")
	default:
		t.log.Warn("codex mcp-server exited with error", "error", err)
	}

	close(t.procDone)
}

// SendMessage writes one frame to the server's stdin.
//
// The data should be a complete JSON object; a trailing newline is appended
// if missing. Writes are serialized by a mutex so concurrent callers'
// frames are never interleaved mid-line.
func (t *CodexTransport) SendMessage(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdin == nil {
		return errors.ErrTransportNotStarted
	}

	if t.stdinClosed {
		return errors.ErrStdinClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.log.Debug("Sending frame to codex mcp-server", "data_len", len(data))

	// Explicit copy to avoid mutating the caller's backing array
	if len(data) == 0 || data[len(data)-1] != '\n' {
		newData := make([]byte, len(data)+1)
		copy(newData, data)
		newData[len(data)] = '\n'
		data = newData
	}

	// Write in goroutine to respect context cancellation
	done := make(chan error, 1)

	go func() {
		_, err := t.stdin.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.log.Error("Failed to write frame", "error", err)

			return fmt.Errorf("write to stdin: %w", err)
		}

		return nil

	case <-ctx.Done():
		t.log.Debug("Context cancelled during write, closing stdin")

		if t.stdin != nil {
			_ = t.stdin.Close()
			t.stdinClosed = true
		}

		select {
		case <-done:
		case <-time.After(1 * time.Second):
			t.log.Warn("Write goroutine did not exit after stdin close, potential leak")
		}

		return ctx.Err()
	}
}

// CloseStdin closes the stdin pipe to signal end of input.
//
// The server finishes processing pending input and then exits normally.
func (t *CodexTransport) CloseStdin() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closeStdinLocked()
}

func (t *CodexTransport) closeStdinLocked() error {
	if t.stdin != nil && !t.stdinClosed {
		t.log.Debug("Closing stdin pipe")

		err := t.stdin.Close()
		t.stdinClosed = true

		return err
	}

	return nil
}

// Stop terminates the codex mcp-server.
//
// It closes the write side, waits up to stopTimeout for a graceful exit,
// and kills the process if the timeout elapses. Safe to call multiple
// times or on a transport that never started.
func (t *CodexTransport) Stop(ctx context.Context) error {
	t.mu.Lock()

	if t.cmd == nil || t.closing {
		t.mu.Unlock()

		return nil
	}

	t.closing = true

	_ = t.closeStdinLocked()

	readerStarted := t.readerStarted
	t.mu.Unlock()

	t.log.Info("Stopping codex mcp-server")

	if !readerStarted {
		// No reader goroutine to reap the process; do it here.
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()

		return nil
	}

	select {
	case <-t.procDone:
		t.log.Debug("codex mcp-server exited gracefully")

		return nil

	case <-time.After(stopTimeout):
		t.log.Warn("codex mcp-server did not exit in time, killing", "timeout", stopTimeout)

	case <-ctx.Done():
		t.log.Debug("Stop cancelled, killing server")
	}

	if err := t.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill codex mcp-server (pid %d): %w", t.cmd.Process.Pid, err)
	}

	<-t.procDone

	return nil
}
