//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

var errProcessGone = domain.ErrProcessGone

// configureCommand starts the child in its own process group so signals reach every descendant.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func softStop(pgid int) error {
	return signalGroup(pgid, syscall.SIGTERM)
}

func hardKill(pgid int) error {
	return signalGroup(pgid, syscall.SIGKILL)
}

// signalGroup signals the process group (negative pgid targets the group).
func signalGroup(pgid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pgid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return errProcessGone
		}
		return fmt.Errorf("signal %s to group %d: %w", sig, pgid, err)
	}
	return nil
}

func alive(pgid int) bool {
	return syscall.Kill(-pgid, 0) == nil
}

// exitStatus extracts the exit code and terminating signal from a Wait error.
func exitStatus(err error) (int, string, error) {
	if err == nil {
		return 0, "", nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return -1, status.Signal().String(), nil
		}
		return exitErr.ExitCode(), "", nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		return 0, "", nil
	}
	return -1, "", err
}
