// Package policy evaluates run admission rules with OPA.
package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
)

// Limits is the data document the admission policy reads.
type Limits struct {
	Technologies []string `json:"technologies"`
	MaxProfiles  int      `json:"max_profiles"`
	MaxActive    int      `json:"max_active"`
}

// Input describes a start request for admission.
type Input struct {
	Kind             string `json:"kind"`
	Technology       string `json:"technology"`
	Profiles         int    `json:"profiles"`
	Sessions         int    `json:"sessions"`
	Turns            int    `json:"turns"`
	ActiveExecutions int    `json:"active_executions"`
}

// Decision is the policy verdict for one start request.
type Decision struct {
	Allow  bool
	Reason string
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares policyContent with limits loaded as data.limits.
func NewEngine(ctx context.Context, policyContent string, limits Limits) (*Engine, error) {
	if limits.Technologies == nil {
		limits.Technologies = []string{}
	}
	data, err := toDocument(map[string]interface{}{"limits": limits})
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy data: %w", err)
	}

	r := rego.New(
		rego.Query("data.run_policy.decision"),
		rego.Module("run_policy.rego", policyContent),
		rego.Store(inmem.NewFromObject(data)),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks a start request against the admission policy.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allow: true, Reason: "default"}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected policy result %T", results[0].Expressions[0].Value)
	}
	allow, _ := obj["allow"].(bool)
	reason, _ := obj["reason"].(string)
	return Decision{Allow: allow, Reason: reason}, nil
}

func toDocument(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// DefaultPolicy admits a run unless the technology is not allow-listed, it
// names too many profiles, or too many executions are already active.
// A zero limit disables its check.
const DefaultPolicy = `
package run_policy

import rego.v1

default decision := {"allow": true, "reason": ""}

decision := {"allow": false, "reason": concat("; ", sort(reasons))} if {
	count(reasons) > 0
}

reasons contains msg if {
	count(data.limits.technologies) > 0
	not input.technology in data.limits.technologies
	msg := sprintf("technology %v is not allowed", [input.technology])
}

reasons contains msg if {
	data.limits.max_profiles > 0
	input.profiles > data.limits.max_profiles
	msg := sprintf("too many profiles: %v > %v", [input.profiles, data.limits.max_profiles])
}

reasons contains msg if {
	data.limits.max_active > 0
	input.active_executions >= data.limits.max_active
	msg := sprintf("too many active executions (limit %v)", [data.limits.max_active])
}
`
