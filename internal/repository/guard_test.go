package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &SQLiteStore{db: db}, mock
}

func TestStopExecution_GuardedByRunning(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	mock.ExpectExec(`UPDATE executions SET status = \?, ended_at = \? WHERE execution_id = \? AND status = \?`).
		WithArgs(domain.ExecutionStatusStopped, sqlmock.AnyArg(), "exec_1", domain.ExecutionStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store_.StopExecution(context.Background(), "exec_1")
	if err != nil {
		t.Fatalf("StopExecution failed: %v", err)
	}
	if ok {
		t.Errorf("expected false when no RUNNING row matched")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFinishExecution_OnlyFromActiveStatuses(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	code := 1
	mock.ExpectExec(`UPDATE executions SET status = \?, exit_code = \?.*WHERE execution_id = \? AND status IN \(\?, \?\)`).
		WithArgs(domain.ExecutionStatusFailed, int64(1), sqlmock.AnyArg(), "boom", sqlmock.AnyArg(), 0.5,
			sqlmock.AnyArg(), domain.ExecutionStatusFailed, "exec_1",
			domain.ExecutionStatusPending, domain.ExecutionStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store_.FinishExecution(context.Background(), "exec_1", domain.Outcome{
		Status:         domain.ExecutionStatusFailed,
		ExitCode:       &code,
		Stderr:         "boom",
		ElapsedSeconds: 0.5,
	})
	if err != nil {
		t.Fatalf("FinishExecution failed: %v", err)
	}
	if !ok {
		t.Errorf("expected true when the row was updated")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateProgress_UsesMax(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	mock.ExpectExec(`UPDATE executions SET completed_units = MAX\(completed_units, \?\) WHERE execution_id = \? AND status = \?`).
		WithArgs(3, "exec_1", domain.ExecutionStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store_.UpdateProgress(context.Background(), "exec_1", 3)
	if err != nil || !ok {
		t.Fatalf("UpdateProgress: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateProfileReport_RollsBackOnFailure(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO profile_reports`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO conversations`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store_.CreateProfileReport(context.Background(), &domain.ProfileReport{
		ID:            "prf_1",
		ExecutionID:   "exec_1",
		Name:          "profile_a",
		Conversations: []domain.Conversation{{ID: "cnv_1", Name: "conv_1.yml"}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetExecution_NotFound(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	mock.ExpectQuery(`SELECT .* FROM executions WHERE execution_id = \?`).
		WithArgs("exec_missing").
		WillReturnRows(sqlmock.NewRows([]string{"execution_id"}))

	exec, err := store_.GetExecution(context.Background(), "exec_missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec != nil {
		t.Errorf("expected nil execution, got %+v", exec)
	}
}
