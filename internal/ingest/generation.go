package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

const (
	generatedProfilesDir = "profiles"
	metricsFileName      = "metrics.json"
	graphBaseName        = "workflow_graph"
)

var graphFormats = []string{"pdf", "png", "svg"}

// GenerationStrategy ingests the profiles and analysis report of a
// generation-run. Missing or unparseable metadata degrades to zero values.
type GenerationStrategy struct {
	Store      ResultStore
	CatalogDir string
}

// Locate lists the generated profiles, report, metrics sidecar and graphs.
func (s *GenerationStrategy) Locate(outputDir string) (Artifacts, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return Artifacts{}, fmt.Errorf("read output dir: %w", err)
	}

	a := Artifacts{OutputDir: outputDir}
	if files, err := yamlFiles(filepath.Join(outputDir, generatedProfilesDir)); err == nil && len(files) > 0 {
		a.ProfileFiles = files
	} else {
		for _, e := range entries {
			if !e.IsDir() && isProfileArtifact(e.Name()) {
				a.ProfileFiles = append(a.ProfileFiles, filepath.Join(outputDir, e.Name()))
			}
		}
		sort.Strings(a.ProfileFiles)
	}

	for _, format := range []string{"txt", "md"} {
		path := filepath.Join(outputDir, "report."+format)
		if fileExists(path) {
			a.ReportPath, a.ReportFormat = path, format
			break
		}
	}
	if path := filepath.Join(outputDir, metricsFileName); fileExists(path) {
		a.MetricsFile = path
	}
	for _, format := range graphFormats {
		if fileExists(filepath.Join(outputDir, graphBaseName+"."+format)) {
			a.GraphFormats = append(a.GraphFormats, format)
		}
	}
	return a, nil
}

// Materialize copies profiles into the catalog, locks the originals, and
// saves the generation result.
func (s *GenerationStrategy) Materialize(ctx context.Context, exec *domain.Execution, a Artifacts) error {
	result := &domain.GenerationResult{
		ExecutionID:  exec.ID,
		ReportFormat: a.ReportFormat,
		ReportPath:   a.ReportPath,
		GraphFormats: a.GraphFormats,
	}

	var cfg domain.RunConfig
	if len(exec.Config) > 0 {
		if err := json.Unmarshal(exec.Config, &cfg); err != nil {
			log.Printf("WARN: execution %s has unreadable config: %v", exec.ID, err)
		}
	}
	result.Sessions = cfg.Sessions
	result.TurnsPerSession = cfg.TurnsPerSession

	result.Profiles = s.catalogProfiles(exec.ID, a.ProfileFiles)

	var metrics reportMetrics
	if a.ReportPath != "" {
		if data, err := os.ReadFile(a.ReportPath); err != nil {
			log.Printf("WARN: failed to read report for execution %s: %v", exec.ID, err)
		} else {
			metrics = parseReport(a.ReportFormat, data)
		}
	}
	if a.MetricsFile != "" {
		data, err := os.ReadFile(a.MetricsFile)
		if err == nil {
			var sidecar *metricsSidecar
			if sidecar, err = parseMetricsSidecar(data); err == nil {
				sidecar.applyTo(&metrics)
			}
		}
		if err != nil {
			log.Printf("WARN: ignoring metrics sidecar for execution %s: %v", exec.ID, err)
		}
	}

	result.FunctionalityCount = metrics.functionalities
	result.CategoryCount = metrics.categories
	result.InvocationCount = metrics.invocations
	result.EstimatedCost = metrics.cost

	if err := s.Store.SaveGenerationResult(ctx, result); err != nil {
		return fmt.Errorf("save generation result: %w", err)
	}
	return nil
}

// catalogProfiles copies each profile into <catalog>/<executionID>/ and
// makes the original read-only. Copy failures leave EditablePath empty.
func (s *GenerationStrategy) catalogProfiles(executionID string, files []string) []domain.GeneratedProfile {
	profiles := make([]domain.GeneratedProfile, 0, len(files))
	dest := ""
	if s.CatalogDir != "" {
		dest = filepath.Join(s.CatalogDir, executionID)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			log.Printf("WARN: failed to create profile catalog dir %s: %v", dest, err)
			dest = ""
		}
	}

	for _, path := range files {
		p := domain.GeneratedProfile{Name: filepath.Base(path), OriginalPath: path}
		if dest != "" {
			target := filepath.Join(dest, p.Name)
			if err := copyFile(path, target); err != nil {
				log.Printf("WARN: failed to copy profile %s: %v", path, err)
			} else {
				p.EditablePath = target
			}
		}
		if err := os.Chmod(path, 0o444); err != nil {
			log.Printf("WARN: failed to make profile %s read-only: %v", path, err)
		}
		profiles = append(profiles, p)
	}
	return profiles
}

func isProfileArtifact(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("catalog not writable: %w", err)
		}
		return err
	}
	return nil
}
