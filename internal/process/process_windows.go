//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

var errProcessGone = domain.ErrProcessGone

func configureCommand(cmd *exec.Cmd) {}

// softStop asks the tree to close without forcing it.
func softStop(pid int) error {
	return taskkill(pid, false)
}

func hardKill(pid int) error {
	return taskkill(pid, true)
}

func taskkill(pid int, force bool) error {
	args := []string{"/T", "/PID", strconv.Itoa(pid)}
	if force {
		args = append([]string{"/F"}, args...)
	}
	if out, err := exec.Command("taskkill", args...).CombinedOutput(); err != nil {
		if !alive(pid) {
			return errProcessGone
		}
		return fmt.Errorf("taskkill %d: %w: %s", pid, err, out)
	}
	return nil
}

func alive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}

func exitStatus(err error) (int, string, error) {
	if err == nil {
		return 0, "", nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), "", nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		return 0, "", nil
	}
	return -1, "", err
}
