package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		want    []string
		notWant []string
	}{
		{
			name:    "file database drops shared cache",
			dsn:     "file:dojo.db?cache=shared&mode=rwc",
			want:    []string{"file:dojo.db?", "mode=rwc", "_foreign_keys=on", "_busy_timeout=5000", "_journal_mode=WAL", "_txlock=immediate"},
			notWant: []string{"cache=shared"},
		},
		{
			name:    "memory database keeps defaults minimal",
			dsn:     ":memory:",
			want:    []string{":memory:?", "_foreign_keys=on", "_busy_timeout=5000"},
			notWant: []string{"_journal_mode", "_txlock"},
		},
		{
			name:    "explicit options win",
			dsn:     "file:x.db?_busy_timeout=100&_fk=1",
			want:    []string{"_busy_timeout=100", "_fk=1"},
			notWant: []string{"_foreign_keys"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sqliteDSN(tt.dsn)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("sqliteDSN(%q) = %q, missing %q", tt.dsn, got, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("sqliteDSN(%q) = %q, should not contain %q", tt.dsn, got, w)
				}
			}
		})
	}
}

func TestFileStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "dojo.db") + "?cache=shared&mode=rwc"
	store, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	createExecution(t, store, "exec_1", domain.ExecutionKindTestRun, 1000)
	if ok, err := store.MarkRunning(ctx, "exec_1", 1); err != nil || !ok {
		t.Fatalf("MarkRunning: ok=%v err=%v", ok, err)
	}

	const ops = 100
	var failed atomic.Int32
	var firstErr atomic.Value
	record := func(err error) {
		if err != nil {
			failed.Add(1)
			firstErr.CompareAndSwap(nil, err.Error())
		}
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 1; i <= ops; i++ {
			_, err := store.UpdateProgress(ctx, "exec_1", i)
			record(err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < ops; i++ {
			record(store.CreateEvent(ctx, &domain.Event{
				EventID:     fmt.Sprintf("evt_%d", i),
				ExecutionID: "exec_1",
				Ts:          time.Now().UnixMilli(),
				Type:        domain.EventTypeProgress,
			}))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < ops; i++ {
			_, err := store.GetExecution(ctx, "exec_1")
			record(err)
		}
	}()
	wg.Wait()

	if n := failed.Load(); n != 0 {
		t.Fatalf("%d operations failed, first: %v", n, firstErr.Load())
	}

	exec, err := store.GetExecution(ctx, "exec_1")
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if exec.CompletedUnits != ops {
		t.Fatalf("expected %d completed units, got %d", ops, exec.CompletedUnits)
	}
	events, err := store.GetEvents(ctx, "exec_1", 0, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != ops {
		t.Fatalf("expected %d events, got %d", ops, len(events))
	}
}
