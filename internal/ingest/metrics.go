package ingest

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema/metrics.schema.json
var schemaFS embed.FS

const metricsSchemaName = "metrics.schema.json"

var (
	metricsSchema *jsonschema.Schema
	compileOnce   sync.Once
	compileErr    error
)

func compileMetricsSchema() error {
	compileOnce.Do(func() {
		data, err := schemaFS.ReadFile("schema/" + metricsSchemaName)
		if err != nil {
			compileErr = fmt.Errorf("read metrics schema: %w", err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal metrics schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(metricsSchemaName, doc); err != nil {
			compileErr = fmt.Errorf("add metrics schema resource: %w", err)
			return
		}
		metricsSchema, err = compiler.Compile(metricsSchemaName)
		if err != nil {
			compileErr = fmt.Errorf("compile metrics schema: %w", err)
		}
	})
	return compileErr
}

// metricsSidecar holds the values a metrics.json file may override.
type metricsSidecar struct {
	FunctionalityCount *int     `json:"functionality_count"`
	CategoryCount      *int     `json:"category_count"`
	InvocationCount    *int     `json:"invocation_count"`
	EstimatedCost      *float64 `json:"estimated_cost"`
}

// parseMetricsSidecar validates data against the embedded schema before decoding it.
func parseMetricsSidecar(data []byte) (*metricsSidecar, error) {
	if err := compileMetricsSchema(); err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := metricsSchema.Validate(inst); err != nil {
		return nil, fmt.Errorf("metrics validation failed: %w", err)
	}
	var m metricsSidecar
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metricsSidecar) applyTo(r *reportMetrics) {
	if m.FunctionalityCount != nil {
		r.functionalities = *m.FunctionalityCount
	}
	if m.CategoryCount != nil {
		r.categories = *m.CategoryCount
	}
	if m.InvocationCount != nil {
		r.invocations = *m.InvocationCount
	}
	if m.EstimatedCost != nil {
		r.cost = *m.EstimatedCost
	}
}
