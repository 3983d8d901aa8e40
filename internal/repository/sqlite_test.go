package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createExecution(t *testing.T, store *SQLiteStore, id string, kind domain.ExecutionKind, total int) {
	t.Helper()
	err := store.CreateExecution(context.Background(), &domain.Execution{
		ID:         id,
		Kind:       kind,
		WorkDir:    "/tmp/" + id + "/work",
		OutputDir:  "/tmp/" + id + "/output",
		TotalUnits: total,
		Config:     json.RawMessage(`{"technology":"rasa"}`),
	})
	if err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}
}

func TestExecutionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createExecution(t, store, "exec_1", domain.ExecutionKindTestRun, 4)

	exec, err := store.GetExecution(ctx, "exec_1")
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if exec == nil || exec.Status != domain.ExecutionStatusPending {
		t.Fatalf("unexpected execution: %+v", exec)
	}
	if exec.PID != 0 || exec.StartedAt != nil {
		t.Fatalf("expected no pid and no start time, got %+v", exec)
	}

	ok, err := store.MarkRunning(ctx, "exec_1", 4242)
	if err != nil || !ok {
		t.Fatalf("MarkRunning: ok=%v err=%v", ok, err)
	}
	ok, err = store.MarkRunning(ctx, "exec_1", 9999)
	if err != nil || ok {
		t.Fatalf("second MarkRunning should be a no-op: ok=%v err=%v", ok, err)
	}

	code := 0
	ok, err = store.FinishExecution(ctx, "exec_1", domain.Outcome{
		Status:         domain.ExecutionStatusCompleted,
		ExitCode:       &code,
		Result:         "done",
		ElapsedSeconds: 1.5,
	})
	if err != nil || !ok {
		t.Fatalf("FinishExecution: ok=%v err=%v", ok, err)
	}

	exec, _ = store.GetExecution(ctx, "exec_1")
	if exec.Status != domain.ExecutionStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", exec.Status)
	}
	if exec.PID != 4242 {
		t.Fatalf("expected pid 4242, got %d", exec.PID)
	}
	if exec.ExitCode == nil || *exec.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %v", exec.ExitCode)
	}
	if exec.Percentage != 100 || exec.EndedAt == nil || exec.StartedAt == nil {
		t.Fatalf("unexpected terminal fields: %+v", exec)
	}
}

func TestTerminalStatusIsFinal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createExecution(t, store, "exec_1", domain.ExecutionKindTestRun, 1)

	if _, err := store.MarkRunning(ctx, "exec_1", 10); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	ok, err := store.StopExecution(ctx, "exec_1")
	if err != nil || !ok {
		t.Fatalf("StopExecution: ok=%v err=%v", ok, err)
	}

	ok, err = store.FinishExecution(ctx, "exec_1", domain.Outcome{Status: domain.ExecutionStatusCompleted})
	if err != nil {
		t.Fatalf("FinishExecution failed: %v", err)
	}
	if ok {
		t.Fatalf("finish must not overwrite STOPPED")
	}
	ok, err = store.StopExecution(ctx, "exec_1")
	if err != nil || ok {
		t.Fatalf("second stop should report false: ok=%v err=%v", ok, err)
	}

	ok, err = store.RecordStoppedOutcome(ctx, "exec_1", domain.Outcome{Result: "Execution stopped by user after 2s", ElapsedSeconds: 2})
	if err != nil || !ok {
		t.Fatalf("RecordStoppedOutcome: ok=%v err=%v", ok, err)
	}

	exec, _ := store.GetExecution(ctx, "exec_1")
	if exec.Status != domain.ExecutionStatusStopped {
		t.Fatalf("expected STOPPED, got %s", exec.Status)
	}
	if exec.Result != "Execution stopped by user after 2s" {
		t.Fatalf("unexpected result: %q", exec.Result)
	}
}

func TestFinishExecutionRejectsNonTerminal(t *testing.T) {
	store := newTestStore(t)
	createExecution(t, store, "exec_1", domain.ExecutionKindTestRun, 1)
	if _, err := store.FinishExecution(context.Background(), "exec_1", domain.Outcome{Status: domain.ExecutionStatusRunning}); err == nil {
		t.Fatalf("expected error for non-terminal outcome")
	}
	if _, err := store.FinishExecution(context.Background(), "exec_1", domain.Outcome{Status: domain.ExecutionStatusStopped}); err == nil {
		t.Fatalf("expected error for STOPPED outcome")
	}
}

func TestStopRequiresRunning(t *testing.T) {
	store := newTestStore(t)
	createExecution(t, store, "exec_1", domain.ExecutionKindTestRun, 1)
	ok, err := store.StopExecution(context.Background(), "exec_1")
	if err != nil || ok {
		t.Fatalf("stopping a PENDING execution should report false: ok=%v err=%v", ok, err)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createExecution(t, store, "exec_1", domain.ExecutionKindTestRun, 4)

	ok, _ := store.UpdateProgress(ctx, "exec_1", 1)
	if ok {
		t.Fatalf("progress must not be written before RUNNING")
	}
	store.MarkRunning(ctx, "exec_1", 1)

	for _, n := range []int{1, 3, 2, 5} {
		if _, err := store.UpdateProgress(ctx, "exec_1", n); err != nil {
			t.Fatalf("UpdateProgress failed: %v", err)
		}
	}
	exec, _ := store.GetExecution(ctx, "exec_1")
	if exec.CompletedUnits != 5 {
		t.Fatalf("expected 5 completed units, got %d", exec.CompletedUnits)
	}

	store.UpdateStage(ctx, "exec_1", "exploring", 22)
	store.UpdateStage(ctx, "exec_1", "initializing", 5)
	store.UpdateStage(ctx, "exec_1", "finalizing", 150)
	exec, _ = store.GetExecution(ctx, "exec_1")
	if exec.Percentage != 100 || exec.Stage != "finalizing" {
		t.Fatalf("unexpected stage state: %s %d", exec.Stage, exec.Percentage)
	}
}

func TestAnnotateError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createExecution(t, store, "exec_1", domain.ExecutionKindTestRun, 1)

	store.AnnotateError(ctx, "exec_1", "first")
	store.AnnotateError(ctx, "exec_1", "second")
	exec, _ := store.GetExecution(ctx, "exec_1")
	if exec.ErrorMessage != "first; second" {
		t.Fatalf("unexpected error message: %q", exec.ErrorMessage)
	}
}

func TestListExecutions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createExecution(t, store, "exec_1", domain.ExecutionKindTestRun, 1)
	createExecution(t, store, "exec_2", domain.ExecutionKindGenerationRun, 0)
	store.MarkRunning(ctx, "exec_2", 7)

	all, err := store.ListExecutions(ctx, domain.ExecutionFilter{})
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(all))
	}

	gen, _ := store.ListExecutions(ctx, domain.ExecutionFilter{Kind: domain.ExecutionKindGenerationRun})
	if len(gen) != 1 || gen[0].ID != "exec_2" {
		t.Fatalf("unexpected generation filter result: %+v", gen)
	}

	active, _ := store.ListActiveExecutions(ctx)
	if len(active) != 2 {
		t.Fatalf("expected 2 active executions, got %d", len(active))
	}
	n, _ := store.CountActiveExecutions(ctx)
	if n != 2 {
		t.Fatalf("expected 2 active, got %d", n)
	}
}

func TestResultTreeRoundTripAndCascade(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createExecution(t, store, "exec_1", domain.ExecutionKindTestRun, 1)

	global := &domain.GlobalReport{
		ID:          "glb_1",
		ExecutionID: "exec_1",
		ResponseStats: domain.ResponseStats{
			AvgResponseTime: 1.25, MinResponseTime: 0.4, MaxResponseTime: 3.2, TotalCost: 0.0342,
		},
		Errors: []domain.TestError{{ID: "err_1", Code: "500", Count: 2, Conversations: []string{"a/conv_1.yml"}}},
	}
	if err := store.CreateGlobalReport(ctx, global); err != nil {
		t.Fatalf("CreateGlobalReport failed: %v", err)
	}

	profile := &domain.ProfileReport{
		ID:                "prf_1",
		ExecutionID:       "exec_1",
		Name:              "profile_a",
		ConversationCount: 1,
		ResponseStats:     domain.ResponseStats{AvgResponseTime: 1.1, TotalCost: 0.01},
		Language:          "English",
		Personality:       "conversational-user",
		InteractionStyles: []string{"single question"},
		GoalStyle:         domain.GoalStyleSteps,
		StepLimit:         10,
		Conversations: []domain.Conversation{{
			ID:            "cnv_1",
			Name:          "conv_1.yml",
			AskAbout:      json.RawMessage(`["sizes"]`),
			DataOutput:    json.RawMessage(`[{"price":"12.50"}]`),
			ResponseTimes: []float64{0.5, 1.2},
			Interaction:   []domain.Turn{{Role: "User", Text: "Hi"}, {Role: "Assistant", Text: "Hello"}},
		}},
		Errors: []domain.TestError{{ID: "err_2", Code: "timeout", Count: 1}},
	}
	if err := store.CreateProfileReport(ctx, profile); err != nil {
		t.Fatalf("CreateProfileReport failed: %v", err)
	}

	tree, err := store.GetResultTree(ctx, "exec_1")
	if err != nil {
		t.Fatalf("GetResultTree failed: %v", err)
	}
	if tree.Global == nil || tree.Global.TotalCost != 0.0342 || len(tree.Global.Errors) != 1 {
		t.Fatalf("unexpected global report: %+v", tree.Global)
	}
	if tree.Global.Errors[0].Conversations[0] != "a/conv_1.yml" {
		t.Fatalf("unexpected error conversations: %+v", tree.Global.Errors[0])
	}
	if len(tree.ProfileReports) != 1 {
		t.Fatalf("expected 1 profile report, got %d", len(tree.ProfileReports))
	}
	got := tree.ProfileReports[0]
	if got.Personality != "conversational-user" || got.GoalStyle != domain.GoalStyleSteps || got.StepLimit != 10 {
		t.Fatalf("unexpected profile metadata: %+v", got)
	}
	if len(got.Conversations) != 1 || len(got.Conversations[0].Interaction) != 2 {
		t.Fatalf("unexpected conversations: %+v", got.Conversations)
	}
	if len(got.Errors) != 1 || got.Errors[0].ProfileReportID != "prf_1" {
		t.Fatalf("unexpected profile errors: %+v", got.Errors)
	}

	deleted, err := store.DeleteExecution(ctx, "exec_1")
	if err != nil || !deleted {
		t.Fatalf("DeleteExecution: ok=%v err=%v", deleted, err)
	}
	tree, err = store.GetResultTree(ctx, "exec_1")
	if err != nil {
		t.Fatalf("GetResultTree failed: %v", err)
	}
	if tree.Global != nil || len(tree.ProfileReports) != 0 {
		t.Fatalf("expected cascade delete, got %+v", tree)
	}
	var orphans int
	store.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&orphans)
	if orphans != 0 {
		t.Fatalf("expected conversations to cascade, got %d", orphans)
	}
}

func TestGenerationResultUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createExecution(t, store, "exec_1", domain.ExecutionKindGenerationRun, 0)

	result := &domain.GenerationResult{
		ExecutionID:        "exec_1",
		FunctionalityCount: 12,
		CategoryCount:      4,
		ReportFormat:       "txt",
		GraphFormats:       []string{"pdf", "png"},
		Profiles:           []domain.GeneratedProfile{{Name: "p1.yaml", OriginalPath: "/o/p1.yaml", EditablePath: "/e/p1.yaml"}},
	}
	if err := store.SaveGenerationResult(ctx, result); err != nil {
		t.Fatalf("SaveGenerationResult failed: %v", err)
	}
	result.FunctionalityCount = 13
	result.Profiles = append(result.Profiles, domain.GeneratedProfile{Name: "p2.yaml", OriginalPath: "/o/p2.yaml"})
	if err := store.SaveGenerationResult(ctx, result); err != nil {
		t.Fatalf("second SaveGenerationResult failed: %v", err)
	}

	got, err := store.GetGenerationResult(ctx, "exec_1")
	if err != nil {
		t.Fatalf("GetGenerationResult failed: %v", err)
	}
	if got.FunctionalityCount != 13 || len(got.Profiles) != 2 || len(got.GraphFormats) != 2 {
		t.Fatalf("unexpected generation result: %+v", got)
	}

	missing, err := store.GetGenerationResult(ctx, "exec_missing")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing result, got %+v %v", missing, err)
	}
}

func TestCorruptJSONColumnsAreReported(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createExecution(t, store, "exec_1", domain.ExecutionKindTestRun, 1)
	createExecution(t, store, "exec_2", domain.ExecutionKindGenerationRun, 0)

	profile := &domain.ProfileReport{
		ID:          "prf_1",
		ExecutionID: "exec_1",
		Name:        "profile_a",
		Conversations: []domain.Conversation{{
			ID:          "cnv_1",
			Name:        "conv_1.yml",
			Interaction: []domain.Turn{{Role: "User", Text: "Hi"}},
		}},
	}
	if err := store.CreateProfileReport(ctx, profile); err != nil {
		t.Fatalf("CreateProfileReport failed: %v", err)
	}
	if err := store.SaveGenerationResult(ctx, &domain.GenerationResult{ExecutionID: "exec_2", GraphFormats: []string{"pdf"}}); err != nil {
		t.Fatalf("SaveGenerationResult failed: %v", err)
	}

	if _, err := store.db.Exec(`UPDATE conversations SET interaction = '[{"role":' WHERE conversation_id = 'cnv_1'`); err != nil {
		t.Fatalf("corrupt conversation: %v", err)
	}
	_, err := store.GetResultTree(ctx, "exec_1")
	if err == nil || !strings.Contains(err.Error(), "corrupt interaction column of cnv_1") {
		t.Fatalf("expected corrupt interaction error, got %v", err)
	}

	if _, err := store.db.Exec(`UPDATE profile_reports SET interaction_styles = 'not json' WHERE report_id = 'prf_1'`); err != nil {
		t.Fatalf("corrupt profile report: %v", err)
	}
	_, err = store.GetResultTree(ctx, "exec_1")
	if err == nil || !strings.Contains(err.Error(), "corrupt interaction_styles column of prf_1") {
		t.Fatalf("expected corrupt interaction_styles error, got %v", err)
	}

	if _, err := store.db.Exec(`UPDATE generation_results SET graph_formats = '{' WHERE execution_id = 'exec_2'`); err != nil {
		t.Fatalf("corrupt generation result: %v", err)
	}
	if _, err := store.GetGenerationResult(ctx, "exec_2"); err == nil {
		t.Fatalf("expected corrupt graph_formats error")
	}
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createExecution(t, store, "exec_1", domain.ExecutionKindTestRun, 1)

	now := time.Now().UnixMilli()
	store.CreateEvent(ctx, &domain.Event{EventID: "evt_1", ExecutionID: "exec_1", Ts: now, Type: domain.EventTypeExecutionCreated})
	store.CreateEvent(ctx, &domain.Event{EventID: "evt_2", ExecutionID: "exec_1", Ts: now + 1, Type: domain.EventTypeProgress, Payload: json.RawMessage(`{"percentage":10}`)})

	events, err := store.GetEvents(ctx, "exec_1", 0, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	events, _ = store.GetEvents(ctx, "exec_1", now, []string{string(domain.EventTypeProgress)}, 10)
	if len(events) != 1 || events[0].EventID != "evt_2" {
		t.Fatalf("unexpected filtered events: %+v", events)
	}
}

func TestGetExecutionMissing(t *testing.T) {
	store := newTestStore(t)
	exec, err := store.GetExecution(context.Background(), "nope")
	if err != nil || exec != nil {
		t.Fatalf("expected nil, nil, got %+v %v", exec, err)
	}
}
