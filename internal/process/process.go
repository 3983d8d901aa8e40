// Package process starts external tools as process trees and terminates them as a unit.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

const (
	// DefaultOutputLimit is how many trailing bytes of stdout and stderr are kept.
	DefaultOutputLimit = 1 << 20
	lineBufferSize     = 1024
	waitDelay          = 5 * time.Second
)

// Command describes a process to launch.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
	// StreamStdout delivers stdout line by line on Handle.Lines in addition to capturing it.
	StreamStdout bool
}

// ExitResult is the observed end state of a process.
type ExitResult struct {
	ExitCode int
	Signal   string
	Stdout   string
	Stderr   string
	Duration time.Duration
	// Err is set when the process could not be waited on at all.
	Err error
}

// Success reports whether the process exited with status 0.
func (r ExitResult) Success() bool {
	return r.Err == nil && r.Signal == "" && r.ExitCode == 0
}

// Controller launches process trees.
type Controller struct {
	OutputLimit int
}

// NewController creates a controller with default limits.
func NewController() *Controller {
	return &Controller{OutputLimit: DefaultOutputLimit}
}

// Handle tracks one launched process tree.
type Handle struct {
	pid     int
	started time.Time
	stdout  *tailBuffer
	stderr  *tailBuffer
	lines   chan string
	dropped int

	done   chan struct{}
	result ExitResult
}

// Start launches the command in its own process group.
func (c *Controller) Start(cmd Command) (*Handle, error) {
	if cmd.Path == "" {
		return nil, errors.New("command path is required")
	}
	limit := c.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}

	ec := exec.Command(cmd.Path, cmd.Args...)
	ec.Dir = cmd.Dir
	ec.Env = cmd.Env
	ec.WaitDelay = waitDelay
	configureCommand(ec)

	h := &Handle{
		stdout: newTailBuffer(limit),
		stderr: newTailBuffer(limit),
		done:   make(chan struct{}),
	}
	ec.Stderr = h.stderr

	var pr *io.PipeReader
	var pw *io.PipeWriter
	if cmd.StreamStdout {
		pr, pw = io.Pipe()
		h.lines = make(chan string, lineBufferSize)
		ec.Stdout = io.MultiWriter(h.stdout, pw)
	} else {
		ec.Stdout = h.stdout
	}

	h.started = time.Now()
	if err := ec.Start(); err != nil {
		if pw != nil {
			pw.Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	h.pid = ec.Process.Pid

	scanDone := make(chan struct{})
	if pr != nil {
		go h.scanLines(pr, scanDone)
	} else {
		close(scanDone)
	}

	go func() {
		err := ec.Wait()
		if pw != nil {
			pw.Close()
		}
		<-scanDone

		code, signal, waitErr := exitStatus(err)
		h.result = ExitResult{
			ExitCode: code,
			Signal:   signal,
			Stdout:   h.stdout.String(),
			Stderr:   h.stderr.String(),
			Duration: time.Since(h.started),
			Err:      waitErr,
		}
		close(h.done)
	}()

	return h, nil
}

// scanLines forwards stdout lines without ever blocking the child.
func (h *Handle) scanLines(r *io.PipeReader, done chan<- struct{}) {
	defer close(done)
	defer close(h.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case h.lines <- scanner.Text():
		default:
			h.dropped++
		}
	}
	if scanner.Err() != nil {
		// Keep draining so the writer side never stalls.
		_, _ = io.Copy(io.Discard, r)
	}
}

// PID returns the process id, which is also the process group id.
func (h *Handle) PID() int {
	return h.pid
}

// StartedAt returns when the process was launched.
func (h *Handle) StartedAt() time.Time {
	return h.started
}

// Lines returns streamed stdout lines, or nil when streaming was not requested.
// The channel is closed once stdout reaches EOF.
func (h *Handle) Lines() <-chan string {
	return h.lines
}

// Done is closed after the process has exited and its output is collected.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited reports whether the process has already finished.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Dropped blocks until exit and returns how many streamed lines the reader missed.
func (h *Handle) Dropped() int {
	<-h.done
	return h.dropped
}

// Result blocks until the process exits and returns its exit result.
func (h *Handle) Result() ExitResult {
	<-h.done
	return h.result
}

// Wait blocks until the process exits or ctx is done.
func (h *Handle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return ExitResult{}, ctx.Err()
	}
}

// Terminate asks the whole process group to stop, then kills it after grace.
// It returns once the process has exited or the kill signal has been sent.
func (h *Handle) Terminate(grace time.Duration) error {
	if h.Exited() {
		return nil
	}
	if err := softStop(h.pid); err != nil {
		if errors.Is(err, errProcessGone) {
			return nil
		}
		return hardKill(h.pid)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
	}
	return hardKill(h.pid)
}

// TerminatePID stops a process tree known only by its stored group id.
// It returns domain.ErrProcessGone if nothing is left to stop.
func TerminatePID(pid int, grace time.Duration) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if !alive(pid) {
		return errProcessGone
	}
	if err := softStop(pid); err != nil {
		return hardKill(pid)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return hardKill(pid)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
