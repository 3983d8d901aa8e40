package domain

import "encoding/json"

// ResponseStats holds the assistant timing and cost aggregates shared by report levels.
type ResponseStats struct {
	AvgResponseTime float64 `json:"avg_response_time"`
	MinResponseTime float64 `json:"min_response_time"`
	MaxResponseTime float64 `json:"max_response_time"`
	TotalCost       float64 `json:"total_cost"`
}

// GlobalReport is the run-wide summary of a test-run.
type GlobalReport struct {
	ID          string `json:"id"`
	ExecutionID string `json:"execution_id"`
	ResponseStats
	Errors []TestError `json:"errors"`
}

// ProfileReport is the per-profile summary of a test-run.
type ProfileReport struct {
	ID                string `json:"id"`
	ExecutionID       string `json:"execution_id"`
	Name              string `json:"name"`
	ConversationCount int    `json:"conversation_count"`
	ResponseStats
	Language           string         `json:"language,omitempty"`
	Personality        string         `json:"personality,omitempty"`
	InteractionStyles  []string       `json:"interaction_styles,omitempty"`
	GoalStyle          GoalStyle      `json:"goal_style,omitempty"`
	StepLimit          int            `json:"step_limit,omitempty"`
	ConversationNumber int            `json:"conversation_number,omitempty"`
	Conversations      []Conversation `json:"conversations"`
	Errors             []TestError    `json:"errors"`
}

// Conversation is one simulated dialogue produced for a profile.
type Conversation struct {
	ID               string          `json:"id"`
	ProfileReportID  string          `json:"profile_report_id"`
	Name             string          `json:"name"`
	Serial           string          `json:"serial,omitempty"`
	AskAbout         json.RawMessage `json:"ask_about,omitempty"`
	DataOutput       json.RawMessage `json:"data_output,omitempty"`
	ConversationTime float64         `json:"conversation_time"`
	AvgResponseTime  float64         `json:"avg_response_time"`
	MinResponseTime  float64         `json:"min_response_time"`
	MaxResponseTime  float64         `json:"max_response_time"`
	ResponseTimes    []float64       `json:"response_times,omitempty"`
	TotalCost        float64         `json:"total_cost"`
	Interaction      []Turn          `json:"interaction"`
}

// Turn is a single utterance in a conversation transcript.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// TestError aggregates occurrences of one error code. Exactly one of
// GlobalReportID and ProfileReportID is set.
type TestError struct {
	ID              string   `json:"id"`
	GlobalReportID  string   `json:"global_report_id,omitempty"`
	ProfileReportID string   `json:"profile_report_id,omitempty"`
	Code            string   `json:"code"`
	Count           int      `json:"count"`
	Conversations   []string `json:"conversations"`
}

// ResultTree is everything ingested for one test-run execution.
type ResultTree struct {
	ExecutionID    string          `json:"execution_id"`
	Global         *GlobalReport   `json:"global_report,omitempty"`
	ProfileReports []ProfileReport `json:"profile_reports"`
}
