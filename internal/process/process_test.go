//go:build !windows

package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

func waitResult(t *testing.T, h *Handle) ExitResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	return res
}

func TestStartCapturesOutput(t *testing.T) {
	h, err := NewController().Start(Command{Path: "sh", Args: []string{"-c", "echo hello; echo oops 1>&2"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h.PID() <= 0 {
		t.Fatalf("expected pid, got %d", h.PID())
	}
	res := waitResult(t, h)
	if !res.Success() {
		t.Fatalf("expected success, got %+v", res)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "oops" {
		t.Fatalf("unexpected stderr: %q", res.Stderr)
	}
}

func TestStartReportsExitCode(t *testing.T) {
	h, err := NewController().Start(Command{Path: "sh", Args: []string{"-c", "exit 3"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	res := waitResult(t, h)
	if res.ExitCode != 3 || res.Success() {
		t.Fatalf("expected exit code 3, got %+v", res)
	}
}

func TestStartMissingBinary(t *testing.T) {
	_, err := NewController().Start(Command{Path: filepath.Join(t.TempDir(), "does-not-exist")})
	if err == nil {
		t.Fatalf("expected launch error")
	}
}

func TestStreamStdoutLines(t *testing.T) {
	h, err := NewController().Start(Command{
		Path:         "sh",
		Args:         []string{"-c", "echo one; echo two; echo three"},
		StreamStdout: true,
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var lines []string
	for line := range h.Lines() {
		lines = append(lines, line)
	}
	res := waitResult(t, h)
	if strings.Join(lines, ",") != "one,two,three" {
		t.Fatalf("unexpected lines: %v", lines)
	}
	if !strings.Contains(res.Stdout, "three") {
		t.Fatalf("stdout should still be captured, got %q", res.Stdout)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	h, err := NewController().Start(Command{Path: "sleep", Args: []string{"5"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.Terminate(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTerminateKillsDescendants(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")
	script := "sleep 30 & echo $! > " + pidFile + "; wait"

	h, err := NewController().Start(Command{Path: "sh", Args: []string{"-c", script}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var childPID int
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(pidFile)
		if err == nil && len(strings.TrimSpace(string(data))) > 0 {
			childPID, _ = strconv.Atoi(strings.TrimSpace(string(data)))
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if childPID == 0 {
		t.Fatalf("child never started")
	}

	if err := h.Terminate(500 * time.Millisecond); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	res := waitResult(t, h)
	if res.Success() {
		t.Fatalf("expected non-success after terminate, got %+v", res)
	}

	gone := false
	deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if processGone(childPID) {
			gone = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !gone {
		syscall.Kill(childPID, syscall.SIGKILL)
		t.Fatalf("descendant %d survived termination", childPID)
	}
}

func TestTerminateEscalatesToKill(t *testing.T) {
	h, err := NewController().Start(Command{Path: "sh", Args: []string{"-c", `trap "" TERM; sleep 30`}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	if err := h.Terminate(200 * time.Millisecond); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	res := waitResult(t, h)
	if res.Signal == "" || res.ExitCode != -1 {
		t.Fatalf("expected signal termination, got %+v", res)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("termination took too long")
	}
}

func TestTerminateAfterExitIsNoop(t *testing.T) {
	h, err := NewController().Start(Command{Path: "true"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitResult(t, h)
	if err := h.Terminate(10 * time.Millisecond); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestTerminatePIDGone(t *testing.T) {
	h, err := NewController().Start(Command{Path: "true"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitResult(t, h)
	if err := TerminatePID(h.PID(), 10*time.Millisecond); !errors.Is(err, domain.ErrProcessGone) {
		t.Fatalf("expected ErrProcessGone, got %v", err)
	}
}

func TestTailBufferKeepsTail(t *testing.T) {
	b := newTailBuffer(5)
	b.Write([]byte("abc"))
	b.Write([]byte("defg"))
	if got := b.String(); got != "cdefg" {
		t.Fatalf("expected cdefg, got %q", got)
	}
}

// processGone treats reaped and zombie processes as gone; orphans may linger
// as zombies when the container init does not reap them.
func processGone(pid int) bool {
	if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
		return true
	}
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	return strings.Contains(string(data), ") Z")
}
