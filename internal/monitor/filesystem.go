package monitor

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

const defaultMaxConsecutiveErrors = 3

// ProgressStore is the subset of the store the filesystem monitor reads and writes.
type ProgressStore interface {
	GetExecution(ctx context.Context, executionID string) (*domain.Execution, error)
	UpdateProgress(ctx context.Context, executionID string, completedUnits int) (bool, error)
}

// Target describes what the filesystem monitor counts for one execution.
type Target struct {
	ExecutionID      string
	ConversationRoot string
	Profiles         []string
	TotalUnits       int
}

// FilesystemMonitor counts conversation artifacts as the simulator writes them.
type FilesystemMonitor struct {
	Store                ProgressStore
	Interval             time.Duration
	MaxConsecutiveErrors int
	OnProgress           func(domain.ProgressEventData)
}

// Run polls until the execution leaves RUNNING, every unit is accounted for,
// too many consecutive scans fail, or ctx is cancelled. Cancellation triggers
// one last scan.
func (m *FilesystemMonitor) Run(ctx context.Context, target Target) {
	interval := m.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxErrors := m.MaxConsecutiveErrors
	if maxErrors <= 0 {
		maxErrors = defaultMaxConsecutiveErrors
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := 0
	failures := 0
	for {
		select {
		case <-ctx.Done():
			m.scan(context.WithoutCancel(ctx), target, &last)
			return
		case <-ticker.C:
		}

		exec, err := m.Store.GetExecution(ctx, target.ExecutionID)
		if err != nil {
			failures++
			log.Printf("WARN: monitor failed to read execution %s (%d/%d): %v", target.ExecutionID, failures, maxErrors, err)
			if failures >= maxErrors {
				log.Printf("ERROR: monitor for execution %s giving up after %d consecutive errors", target.ExecutionID, failures)
				return
			}
			continue
		}
		if exec == nil || exec.Status != domain.ExecutionStatusRunning {
			return
		}

		if err := m.scan(ctx, target, &last); err != nil {
			failures++
			log.Printf("WARN: monitor scan failed for execution %s (%d/%d): %v", target.ExecutionID, failures, maxErrors, err)
			if failures >= maxErrors {
				log.Printf("ERROR: monitor for execution %s giving up after %d consecutive errors", target.ExecutionID, failures)
				return
			}
			continue
		}
		failures = 0

		if target.TotalUnits > 0 && last >= target.TotalUnits {
			return
		}
	}
}

func (m *FilesystemMonitor) scan(ctx context.Context, target Target, last *int) error {
	count, err := CountArtifacts(target.ConversationRoot, target.Profiles)
	if err != nil {
		return err
	}
	if count <= *last {
		return nil
	}
	if _, err := m.Store.UpdateProgress(ctx, target.ExecutionID, count); err != nil {
		return err
	}
	*last = count
	if m.OnProgress != nil {
		data := domain.ProgressEventData{
			ExecutionID:    target.ExecutionID,
			CompletedUnits: count,
			TotalUnits:     target.TotalUnits,
		}
		if target.TotalUnits > 0 {
			data.Percentage = min(100, count*100/target.TotalUnits)
		}
		m.OnProgress(data)
	}
	return nil
}

// CountArtifacts counts YAML conversation files under root/<profile> for each
// profile. Profiles without a directory yet count as zero.
func CountArtifacts(root string, profiles []string) (int, error) {
	total := 0
	for _, profile := range profiles {
		dir := filepath.Join(root, profile)
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir && errors.Is(err, fs.ErrNotExist) {
					return fs.SkipDir
				}
				return err
			}
			if !d.IsDir() && isYAML(d.Name()) {
				total++
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
	}
	return total, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}
