package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

const (
	statsReportsDir        = "reports/__stats_reports__"
	conversationOutputsDir = "conversation_outputs"
	keyGlobalReport        = "Global report"
	keyProfileReport       = "Profile report"
	keyTestName            = "Test name"
	keyAvgResponseTime     = "Average assistant response time"
	keyMinResponseTime     = "Minimum assistant response time"
	keyMaxResponseTime     = "Maximum assistant response time"
	keyTotalCost           = "Total Cost"
	keyErrors              = "Errors"
	keyConversations       = "Conversations"
	globalReportIDPrefix   = "glb"
	profileReportIDPrefix  = "prf"
	conversationIDPrefix   = "cnv"
	testErrorIDPrefix      = "err"
)

// TestReportStrategy ingests the statistics report and conversation
// artifacts of a test-run. Any problem aborts ingestion.
type TestReportStrategy struct {
	Store ResultStore
}

// Locate finds the newest report file under reports/__stats_reports__.
func (s *TestReportStrategy) Locate(outputDir string) (Artifacts, error) {
	dir := filepath.Join(outputDir, filepath.FromSlash(statsReportsDir))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Artifacts{}, fmt.Errorf("%w: %s", domain.ErrReportDirMissing, dir)
	}

	var reports []string
	for _, pattern := range []string{"report_*.yml", "report_*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return Artifacts{}, err
		}
		reports = append(reports, matches...)
	}
	if len(reports) == 0 {
		return Artifacts{}, fmt.Errorf("%w: no report_* file in %s", domain.ErrReportFileNotFound, dir)
	}
	sort.Strings(reports)
	if len(reports) > 1 {
		log.Printf("WARN: %d report files in %s, using %s", len(reports), dir, filepath.Base(reports[len(reports)-1]))
	}

	return Artifacts{
		OutputDir:        outputDir,
		ReportFile:       reports[len(reports)-1],
		ConversationRoot: filepath.Join(outputDir, conversationOutputsDir),
	}, nil
}

// Materialize persists the global report, then one profile report per
// remaining document. Profile reports committed before a failure are kept.
func (s *TestReportStrategy) Materialize(ctx context.Context, exec *domain.Execution, a Artifacts) error {
	docs, err := decodeDocuments(a.ReportFile)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrMalformedReport, filepath.Base(a.ReportFile), err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("%w: %s is empty", domain.ErrMalformedReport, filepath.Base(a.ReportFile))
	}

	global := parseGlobalReport(exec.ID, docs[0])
	if err := s.Store.CreateGlobalReport(ctx, global); err != nil {
		return fmt.Errorf("save global report: %w", err)
	}

	for i, doc := range docs[1:] {
		report, err := parseProfileReport(exec.ID, doc)
		if err != nil {
			return fmt.Errorf("%w: document %d: %v", domain.ErrMalformedReport, i+1, err)
		}
		if err := attachConversations(report, a.ConversationRoot); err != nil {
			return err
		}
		if err := s.Store.CreateProfileReport(ctx, report); err != nil {
			return fmt.Errorf("save profile report %s: %w", report.Name, err)
		}
	}
	return nil
}

// decodeDocuments reads every YAML document in path.
func decodeDocuments(path string) ([]map[string]interface{}, error) {
	nodes, err := decodeNodes(path)
	if err != nil {
		return nil, err
	}
	docs := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		var doc interface{}
		if err := n.Decode(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, asMap(doc))
	}
	return docs, nil
}

// decodeNodes reads every YAML document in path as a node tree, which keeps
// mapping keys in document order.
func decodeNodes(path string) ([]*yaml.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var nodes []*yaml.Node
	dec := yaml.NewDecoder(f)
	for {
		n := new(yaml.Node)
		if err := dec.Decode(n); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func parseStats(doc map[string]interface{}) domain.ResponseStats {
	return domain.ResponseStats{
		AvgResponseTime: asFloat(doc[keyAvgResponseTime]),
		MinResponseTime: asFloat(doc[keyMinResponseTime]),
		MaxResponseTime: asFloat(doc[keyMaxResponseTime]),
		TotalCost:       asFloat(doc[keyTotalCost]),
	}
}

func parseErrors(v interface{}) []domain.TestError {
	var out []domain.TestError
	for _, item := range asList(v) {
		m := asMap(item)
		if m == nil {
			continue
		}
		out = append(out, domain.TestError{
			ID:            newID(testErrorIDPrefix),
			Code:          asString(m["error"]),
			Count:         asInt(m["count"]),
			Conversations: asStrings(m["conversations"]),
		})
	}
	return out
}

func parseGlobalReport(executionID string, doc map[string]interface{}) *domain.GlobalReport {
	body := asMap(doc[keyGlobalReport])
	if body == nil {
		body = doc
	}
	errs := body[keyErrors]
	if errs == nil {
		errs = doc[keyErrors]
	}
	return &domain.GlobalReport{
		ID:            newID(globalReportIDPrefix),
		ExecutionID:   executionID,
		ResponseStats: parseStats(body),
		Errors:        parseErrors(errs),
	}
}

func parseProfileReport(executionID string, doc map[string]interface{}) (*domain.ProfileReport, error) {
	if inner := asMap(doc[keyProfileReport]); inner != nil {
		doc = inner
	}
	name := asString(doc[keyTestName])
	if name == "" {
		return nil, fmt.Errorf("missing %q", keyTestName)
	}
	return &domain.ProfileReport{
		ID:                newID(profileReportIDPrefix),
		ExecutionID:       executionID,
		Name:              name,
		ConversationCount: asInt(doc[keyConversations]),
		ResponseStats:     parseStats(doc),
		GoalStyle:         domain.GoalStyleDefault,
		Errors:            parseErrors(doc[keyErrors]),
	}, nil
}

// attachConversations reads the profile's conversation artifacts, if any.
// The first artifact also supplies the profile's metadata.
func attachConversations(report *domain.ProfileReport, root string) error {
	dir, ok, err := conversationDir(filepath.Join(root, report.Name))
	if err != nil || !ok {
		return err
	}
	files, err := yamlFiles(dir)
	if err != nil {
		return err
	}

	for i, path := range files {
		parsed, err := parseConversationFile(path)
		if err != nil {
			return fmt.Errorf("%w: conversation %s: %v", domain.ErrMalformedReport, filepath.Base(path), err)
		}
		if i == 0 {
			parsed.meta.applyTo(report)
		}
		parsed.conversation.ProfileReportID = report.ID
		report.Conversations = append(report.Conversations, parsed.conversation)
	}
	if report.ConversationCount == 0 {
		report.ConversationCount = len(report.Conversations)
	}
	return nil
}

// conversationDir picks the newest timestamped subdirectory of a profile's
// output, or the profile directory itself when it holds the files directly.
func conversationDir(profileDir string) (string, bool, error) {
	entries, err := os.ReadDir(profileDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, e.Name())
		}
	}
	if len(subdirs) == 0 {
		return profileDir, true, nil
	}
	sort.Strings(subdirs)
	return filepath.Join(profileDir, subdirs[len(subdirs)-1]), true, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yml" || ext == ".yaml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
