// Package ingest turns the artifacts a finished tool leaves in its output
// directory into persisted result records.
package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

// ResultStore is the subset of the store ingestion writes to.
type ResultStore interface {
	CreateGlobalReport(ctx context.Context, report *domain.GlobalReport) error
	CreateProfileReport(ctx context.Context, report *domain.ProfileReport) error
	SaveGenerationResult(ctx context.Context, result *domain.GenerationResult) error
}

// Artifacts are the files a strategy located in an output directory.
type Artifacts struct {
	OutputDir string

	// Test-runs.
	ReportFile       string
	ConversationRoot string

	// Generation-runs.
	ProfileFiles []string
	ReportPath   string
	ReportFormat string
	MetricsFile  string
	GraphFormats []string
}

// Strategy locates and persists the artifacts of one execution kind.
type Strategy interface {
	Locate(outputDir string) (Artifacts, error)
	Materialize(ctx context.Context, exec *domain.Execution, a Artifacts) error
}

// Pipeline dispatches ingestion to the strategy registered for an execution's kind.
type Pipeline struct {
	strategies map[domain.ExecutionKind]Strategy
}

// NewPipeline creates a pipeline with the test-report and generation strategies.
func NewPipeline(store ResultStore, catalogDir string) *Pipeline {
	return &Pipeline{
		strategies: map[domain.ExecutionKind]Strategy{
			domain.ExecutionKindTestRun:       &TestReportStrategy{Store: store},
			domain.ExecutionKindGenerationRun: &GenerationStrategy{Store: store, CatalogDir: catalogDir},
		},
	}
}

// Ingest locates and persists the artifacts of a finished execution.
func (p *Pipeline) Ingest(ctx context.Context, exec *domain.Execution) error {
	s, ok := p.strategies[exec.Kind]
	if !ok {
		return fmt.Errorf("no ingestion strategy for %s", exec.Kind)
	}
	a, err := s.Locate(exec.OutputDir)
	if err != nil {
		return err
	}
	if err := s.Materialize(ctx, exec, a); err != nil {
		return err
	}
	log.Printf("INFO: ingested results for execution %s", exec.ID)
	return nil
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}
