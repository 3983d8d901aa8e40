package rpc

import (
	"context"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"testing"
	"time"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/config"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/ingest"
	store "github.com/satori-chatbots/chatbot-dojo-sub000/internal/repository"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/runner"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/service"
	"github.com/satori-chatbots/chatbot-dojo-sub000/tests/helpers"
)

func newTestClient(t *testing.T) (*rpc.Client, *store.SQLiteStore) {
	t.Helper()
	db := helpers.NewTestSQLiteStore(t)
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	svc := service.New(db, runner.NewDefaultRegistry(dir+"/sim", dir+"/explorer"),
		ingest.NewPipeline(db, dir+"/catalog"), cfg, nil, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Coordinator().Shutdown(ctx)
	})

	srv, err := NewServer(svc)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() { ln.Close() })

	client, err := jsonrpc.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, db
}

func TestGetExecution(t *testing.T) {
	client, db := newTestClient(t)
	if err := db.CreateExecution(context.Background(), &domain.Execution{
		ID: "exec_1", Kind: domain.ExecutionKindTestRun, WorkDir: "/w", OutputDir: "/o",
	}); err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	var exec domain.Execution
	if err := client.Call("Orchestrator.GetExecution", &ExecutionRequest{ExecutionID: "exec_1"}, &exec); err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if exec.ID != "exec_1" || exec.Status != domain.ExecutionStatusPending {
		t.Fatalf("unexpected execution: %+v", exec)
	}

	err := client.Call("Orchestrator.GetExecution", &ExecutionRequest{ExecutionID: "exec_missing"}, &exec)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestStartAndCancel(t *testing.T) {
	client, _ := newTestClient(t)

	req := &domain.GenerationRunRequest{Config: domain.RunConfig{
		Technology: "taskyto", ConnectorURL: "http://localhost:5000", Model: "gpt-4o-mini", Sessions: 1, TurnsPerSession: 2,
	}}
	var started domain.StartResponse
	if err := client.Call("Orchestrator.StartGenerationRun", req, &started); err != nil {
		t.Fatalf("StartGenerationRun failed: %v", err)
	}
	if started.Kind != domain.ExecutionKindGenerationRun || started.ExecutionID == "" {
		t.Fatalf("unexpected response: %+v", started)
	}

	var cancelled domain.CancelResponse
	if err := client.Call("Orchestrator.CancelExecution", &ExecutionRequest{ExecutionID: started.ExecutionID}, &cancelled); err != nil {
		t.Fatalf("CancelExecution failed: %v", err)
	}
	if cancelled.ExecutionID != started.ExecutionID {
		t.Fatalf("unexpected cancel response: %+v", cancelled)
	}
}

func TestRejectsInvalidRequests(t *testing.T) {
	client, _ := newTestClient(t)

	var started domain.StartResponse
	err := client.Call("Orchestrator.StartTestRun", &domain.TestRunRequest{}, &started)
	if err == nil || !strings.Contains(err.Error(), "invalid run configuration") {
		t.Fatalf("expected invalid config error, got %v", err)
	}

	var cancelled domain.CancelResponse
	if err := client.Call("Orchestrator.CancelExecution", &ExecutionRequest{}, &cancelled); err == nil {
		t.Fatalf("expected error for missing execution_id")
	}
}
