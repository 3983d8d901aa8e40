package domain

// GeneratedProfile is a profile artifact produced by a generation-run.
// The original stays read-only in the output directory; the editable copy
// feeds the profile catalog.
type GeneratedProfile struct {
	Name         string `json:"name"`
	OriginalPath string `json:"original_path"`
	EditablePath string `json:"editable_path"`
}

// GenerationResult holds the analysis metadata of a generation-run.
type GenerationResult struct {
	ExecutionID        string             `json:"execution_id"`
	Profiles           []GeneratedProfile `json:"profiles"`
	FunctionalityCount int                `json:"functionality_count"`
	CategoryCount      int                `json:"category_count"`
	InvocationCount    int                `json:"invocation_count"`
	EstimatedCost      float64            `json:"estimated_cost"`
	Sessions           int                `json:"sessions"`
	TurnsPerSession    int                `json:"turns_per_session"`
	ReportFormat       string             `json:"report_format,omitempty"`
	ReportPath         string             `json:"report_path,omitempty"`
	GraphFormats       []string           `json:"graph_formats,omitempty"`
}
