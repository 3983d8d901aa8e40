package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

type fakeStore struct {
	mu        sync.Mutex
	status    domain.ExecutionStatus
	getErr    error
	getCalls  int
	progress  []int
	stages    []Match
	stageDone bool
}

func (f *fakeStore) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &domain.Execution{ID: id, Status: f.status}, nil
}

func (f *fakeStore) UpdateProgress(ctx context.Context, id string, completed int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, completed)
	return true, nil
}

func (f *fakeStore) UpdateStage(ctx context.Context, id, stage string, pct int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stageDone {
		return false, nil
	}
	f.stages = append(f.stages, Match{Stage: stage, Percent: pct})
	return true, nil
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x: 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestCountArtifacts(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "2024-01-01", "c1.yml"))
	touch(t, filepath.Join(root, "a", "2024-01-01", "c2.yaml"))
	touch(t, filepath.Join(root, "a", "2024-01-01", "notes.txt"))
	touch(t, filepath.Join(root, "b", "c1.yml"))
	touch(t, filepath.Join(root, "other", "c1.yml"))

	n, err := CountArtifacts(root, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("CountArtifacts failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 artifacts, got %d", n)
	}

	n, err = CountArtifacts(filepath.Join(root, "nope"), []string{"a"})
	if err != nil || n != 0 {
		t.Fatalf("missing root: n=%d err=%v", n, err)
	}
}

func TestFilesystemMonitorStopsWhenComplete(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "ts", "c1.yml"))
	touch(t, filepath.Join(root, "a", "ts", "c2.yml"))

	st := &fakeStore{status: domain.ExecutionStatusRunning}
	var events []domain.ProgressEventData
	m := &FilesystemMonitor{
		Store:      st,
		Interval:   10 * time.Millisecond,
		OnProgress: func(d domain.ProgressEventData) { events = append(events, d) },
	}

	done := make(chan struct{})
	go func() {
		m.Run(context.Background(), Target{ExecutionID: "exec_1", ConversationRoot: root, Profiles: []string{"a"}, TotalUnits: 2})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("monitor did not stop after all units were found")
	}

	if len(st.progress) != 1 || st.progress[0] != 2 {
		t.Fatalf("unexpected progress writes %v", st.progress)
	}
	if len(events) != 1 || events[0].Percentage != 100 {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestFilesystemMonitorExitsWhenNotRunning(t *testing.T) {
	st := &fakeStore{status: domain.ExecutionStatusStopped}
	m := &FilesystemMonitor{Store: st, Interval: 10 * time.Millisecond}

	done := make(chan struct{})
	go func() {
		m.Run(context.Background(), Target{ExecutionID: "exec_1", ConversationRoot: t.TempDir(), Profiles: []string{"a"}, TotalUnits: 5})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("monitor kept running for a stopped execution")
	}
	if len(st.progress) != 0 {
		t.Fatalf("unexpected progress writes %v", st.progress)
	}
}

func TestFilesystemMonitorGivesUpAfterConsecutiveErrors(t *testing.T) {
	st := &fakeStore{getErr: errors.New("database is locked")}
	m := &FilesystemMonitor{Store: st, Interval: 5 * time.Millisecond, MaxConsecutiveErrors: 3}

	done := make(chan struct{})
	go func() {
		m.Run(context.Background(), Target{ExecutionID: "exec_1", ConversationRoot: t.TempDir(), TotalUnits: 5})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("monitor did not give up")
	}
	if st.getCalls != 3 {
		t.Fatalf("expected 3 reads before giving up, got %d", st.getCalls)
	}
}

func TestFilesystemMonitorFinalScanOnCancel(t *testing.T) {
	root := t.TempDir()
	st := &fakeStore{status: domain.ExecutionStatusRunning}
	m := &FilesystemMonitor{Store: st, Interval: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, Target{ExecutionID: "exec_1", ConversationRoot: root, Profiles: []string{"a"}, TotalUnits: 5})
		close(done)
	}()

	touch(t, filepath.Join(root, "a", "c1.yml"))
	cancel()
	<-done

	if len(st.progress) != 1 || st.progress[0] != 1 {
		t.Fatalf("expected final scan to record 1 unit, got %v", st.progress)
	}
}

func TestStreamMonitorIgnoresRegressions(t *testing.T) {
	st := &fakeStore{}
	var labels []string
	m := &StreamMonitor{
		Store:      st,
		OnProgress: func(d domain.ProgressEventData) { labels = append(labels, d.StageLabel) },
	}

	lines := make(chan string, 8)
	lines <- "Initializing"
	lines <- "Exploration Session 3/10"
	lines <- "Initializing again"
	lines <- "noise"
	lines <- "Generating user profiles"
	close(lines)

	m.Run(context.Background(), "exec_1", lines)

	want := []Match{{"initializing", 5}, {"exploring", 22}, {"generating_profiles", 70}}
	if len(st.stages) != len(want) {
		t.Fatalf("expected %v, got %v", want, st.stages)
	}
	for i := range want {
		if st.stages[i] != want[i] {
			t.Fatalf("stage %d: expected %v, got %v", i, want[i], st.stages[i])
		}
	}
	if labels[2] != "Generating Profiles" {
		t.Fatalf("unexpected label %q", labels[2])
	}
}

func TestStreamMonitorStopsWhenNotRunning(t *testing.T) {
	st := &fakeStore{stageDone: true}
	lines := make(chan string, 2)
	lines <- "Initializing"
	lines <- "Writing report"

	done := make(chan struct{})
	go func() {
		(&StreamMonitor{Store: st}).Run(context.Background(), "exec_1", lines)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("stream monitor did not stop after a rejected update")
	}
}
