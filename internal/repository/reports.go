package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

// CreateGlobalReport stores the run-wide report and its errors in one transaction.
func (s *SQLiteStore) CreateGlobalReport(ctx context.Context, report *domain.GlobalReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO global_reports (report_id, execution_id, avg_response_time, min_response_time, max_response_time, total_cost)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		report.ID, report.ExecutionID, report.AvgResponseTime, report.MinResponseTime, report.MaxResponseTime, report.TotalCost)
	if err != nil {
		return fmt.Errorf("failed to insert global report: %w", err)
	}

	for i := range report.Errors {
		report.Errors[i].GlobalReportID = report.ID
		report.Errors[i].ProfileReportID = ""
		if err := insertTestError(ctx, tx, &report.Errors[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CreateProfileReport stores a profile report with its conversations and errors in one transaction.
func (s *SQLiteStore) CreateProfileReport(ctx context.Context, report *domain.ProfileReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	styles, err := marshalJSON(report.InteractionStyles)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction styles: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO profile_reports (report_id, execution_id, name, conversation_count, avg_response_time,
		 min_response_time, max_response_time, total_cost, language, personality, interaction_styles,
		 goal_style, step_limit, conversation_number)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.ExecutionID, report.Name, report.ConversationCount, report.AvgResponseTime,
		report.MinResponseTime, report.MaxResponseTime, report.TotalCost, nullString(report.Language),
		nullString(report.Personality), styles, nullString(string(report.GoalStyle)), report.StepLimit,
		report.ConversationNumber)
	if err != nil {
		return fmt.Errorf("failed to insert profile report %s: %w", report.Name, err)
	}

	for i := range report.Conversations {
		conv := &report.Conversations[i]
		conv.ProfileReportID = report.ID
		if err := insertConversation(ctx, tx, conv); err != nil {
			return err
		}
	}

	for i := range report.Errors {
		report.Errors[i].ProfileReportID = report.ID
		report.Errors[i].GlobalReportID = ""
		if err := insertTestError(ctx, tx, &report.Errors[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertConversation(ctx context.Context, tx *sql.Tx, conv *domain.Conversation) error {
	times, err := marshalJSON(conv.ResponseTimes)
	if err != nil {
		return fmt.Errorf("failed to marshal response times: %w", err)
	}
	interaction, err := marshalJSON(conv.Interaction)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, profile_report_id, name, serial, ask_about, data_output,
		 conversation_time, avg_response_time, min_response_time, max_response_time, response_times,
		 total_cost, interaction)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.ProfileReportID, conv.Name, nullString(conv.Serial), nullString(string(conv.AskAbout)),
		nullString(string(conv.DataOutput)), conv.ConversationTime, conv.AvgResponseTime, conv.MinResponseTime,
		conv.MaxResponseTime, times, conv.TotalCost, interaction)
	if err != nil {
		return fmt.Errorf("failed to insert conversation %s: %w", conv.Name, err)
	}
	return nil
}

func insertTestError(ctx context.Context, tx *sql.Tx, te *domain.TestError) error {
	convs, err := marshalJSON(te.Conversations)
	if err != nil {
		return fmt.Errorf("failed to marshal error conversations: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO test_errors (error_id, global_report_id, profile_report_id, code, count, conversations)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		te.ID, nullString(te.GlobalReportID), nullString(te.ProfileReportID), te.Code, te.Count, convs)
	if err != nil {
		return fmt.Errorf("failed to insert test error %s: %w", te.Code, err)
	}
	return nil
}

// GetResultTree loads every ingested report of a test-run execution.
func (s *SQLiteStore) GetResultTree(ctx context.Context, executionID string) (*domain.ResultTree, error) {
	tree := &domain.ResultTree{ExecutionID: executionID, ProfileReports: []domain.ProfileReport{}}

	var global domain.GlobalReport
	err := s.db.QueryRowContext(ctx,
		`SELECT report_id, execution_id, avg_response_time, min_response_time, max_response_time, total_cost
		 FROM global_reports WHERE execution_id = ?`, executionID).
		Scan(&global.ID, &global.ExecutionID, &global.AvgResponseTime, &global.MinResponseTime,
			&global.MaxResponseTime, &global.TotalCost)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, err
	default:
		global.Errors, err = s.listTestErrors(ctx, "global_report_id", global.ID)
		if err != nil {
			return nil, err
		}
		tree.Global = &global
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT report_id, execution_id, name, conversation_count, avg_response_time, min_response_time,
		 max_response_time, total_cost, language, personality, interaction_styles, goal_style, step_limit,
		 conversation_number
		 FROM profile_reports WHERE execution_id = ? ORDER BY rowid ASC`, executionID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var r domain.ProfileReport
		var language, personality, styles, goalStyle sql.NullString
		if err := rows.Scan(&r.ID, &r.ExecutionID, &r.Name, &r.ConversationCount, &r.AvgResponseTime,
			&r.MinResponseTime, &r.MaxResponseTime, &r.TotalCost, &language, &personality, &styles,
			&goalStyle, &r.StepLimit, &r.ConversationNumber); err != nil {
			rows.Close()
			return nil, err
		}
		r.Language = language.String
		r.Personality = personality.String
		r.GoalStyle = domain.GoalStyle(goalStyle.String)
		if err := decodeColumn(styles, &r.InteractionStyles, "interaction_styles", r.ID); err != nil {
			rows.Close()
			return nil, err
		}
		tree.ProfileReports = append(tree.ProfileReports, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tree.ProfileReports {
		r := &tree.ProfileReports[i]
		if r.Conversations, err = s.listConversations(ctx, r.ID); err != nil {
			return nil, err
		}
		if r.Errors, err = s.listTestErrors(ctx, "profile_report_id", r.ID); err != nil {
			return nil, err
		}
	}

	return tree, nil
}

func (s *SQLiteStore) listConversations(ctx context.Context, profileReportID string) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, profile_report_id, name, serial, ask_about, data_output, conversation_time,
		 avg_response_time, min_response_time, max_response_time, response_times, total_cost, interaction
		 FROM conversations WHERE profile_report_id = ? ORDER BY rowid ASC`, profileReportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []domain.Conversation{}
	for rows.Next() {
		var c domain.Conversation
		var serial, askAbout, dataOutput, times, interaction sql.NullString
		if err := rows.Scan(&c.ID, &c.ProfileReportID, &c.Name, &serial, &askAbout, &dataOutput,
			&c.ConversationTime, &c.AvgResponseTime, &c.MinResponseTime, &c.MaxResponseTime, &times,
			&c.TotalCost, &interaction); err != nil {
			return nil, err
		}
		c.Serial = serial.String
		if askAbout.Valid {
			c.AskAbout = json.RawMessage(askAbout.String)
		}
		if dataOutput.Valid {
			c.DataOutput = json.RawMessage(dataOutput.String)
		}
		if err := decodeColumn(times, &c.ResponseTimes, "response_times", c.ID); err != nil {
			return nil, err
		}
		if err := decodeColumn(interaction, &c.Interaction, "interaction", c.ID); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// listTestErrors loads the errors owned by a report. column is a fixed owner column name.
func (s *SQLiteStore) listTestErrors(ctx context.Context, column, reportID string) ([]domain.TestError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT error_id, global_report_id, profile_report_id, code, count, conversations
		 FROM test_errors WHERE `+column+` = ? ORDER BY rowid ASC`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	errs := []domain.TestError{}
	for rows.Next() {
		var te domain.TestError
		var globalID, profileID, convs sql.NullString
		if err := rows.Scan(&te.ID, &globalID, &profileID, &te.Code, &te.Count, &convs); err != nil {
			return nil, err
		}
		te.GlobalReportID = globalID.String
		te.ProfileReportID = profileID.String
		if err := decodeColumn(convs, &te.Conversations, "conversations", te.ID); err != nil {
			return nil, err
		}
		errs = append(errs, te)
	}
	return errs, rows.Err()
}

// SaveGenerationResult replaces the generation result of an execution.
func (s *SQLiteStore) SaveGenerationResult(ctx context.Context, result *domain.GenerationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	graphs, err := marshalJSON(result.GraphFormats)
	if err != nil {
		return fmt.Errorf("failed to marshal graph formats: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO generation_results (execution_id, functionality_count, category_count, invocation_count,
		 estimated_cost, sessions, turns_per_session, report_format, report_path, graph_formats)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id) DO UPDATE SET
		   functionality_count = excluded.functionality_count,
		   category_count = excluded.category_count,
		   invocation_count = excluded.invocation_count,
		   estimated_cost = excluded.estimated_cost,
		   sessions = excluded.sessions,
		   turns_per_session = excluded.turns_per_session,
		   report_format = excluded.report_format,
		   report_path = excluded.report_path,
		   graph_formats = excluded.graph_formats`,
		result.ExecutionID, result.FunctionalityCount, result.CategoryCount, result.InvocationCount,
		result.EstimatedCost, result.Sessions, result.TurnsPerSession, nullString(result.ReportFormat),
		nullString(result.ReportPath), graphs)
	if err != nil {
		return fmt.Errorf("failed to upsert generation result: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM generated_profiles WHERE execution_id = ?`, result.ExecutionID); err != nil {
		return fmt.Errorf("failed to clear generated profiles: %w", err)
	}
	for _, p := range result.Profiles {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO generated_profiles (execution_id, name, original_path, editable_path) VALUES (?, ?, ?, ?)`,
			result.ExecutionID, p.Name, p.OriginalPath, nullString(p.EditablePath))
		if err != nil {
			return fmt.Errorf("failed to insert generated profile %s: %w", p.Name, err)
		}
	}

	return tx.Commit()
}

// GetGenerationResult loads the generation result of an execution. It returns nil, nil when missing.
func (s *SQLiteStore) GetGenerationResult(ctx context.Context, executionID string) (*domain.GenerationResult, error) {
	var r domain.GenerationResult
	var format, path, graphs sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT execution_id, functionality_count, category_count, invocation_count, estimated_cost, sessions,
		 turns_per_session, report_format, report_path, graph_formats
		 FROM generation_results WHERE execution_id = ?`, executionID).
		Scan(&r.ExecutionID, &r.FunctionalityCount, &r.CategoryCount, &r.InvocationCount, &r.EstimatedCost,
			&r.Sessions, &r.TurnsPerSession, &format, &path, &graphs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.ReportFormat = format.String
	r.ReportPath = path.String
	if err := decodeColumn(graphs, &r.GraphFormats, "graph_formats", r.ExecutionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, original_path, editable_path FROM generated_profiles WHERE execution_id = ? ORDER BY profile_id ASC`,
		executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	r.Profiles = []domain.GeneratedProfile{}
	for rows.Next() {
		var p domain.GeneratedProfile
		var editable sql.NullString
		if err := rows.Scan(&p.Name, &p.OriginalPath, &editable); err != nil {
			return nil, err
		}
		p.EditablePath = editable.String
		r.Profiles = append(r.Profiles, p)
	}
	return &r, rows.Err()
}

// decodeColumn unmarshals a JSON text column into dst. NULL leaves dst untouched.
func decodeColumn(col sql.NullString, dst interface{}, column, id string) error {
	if !col.Valid {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
		return fmt.Errorf("corrupt %s column of %s: %w", column, id, err)
	}
	return nil
}
