package policy

import (
	"context"
	"strings"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), DefaultPolicy, Limits{
		Technologies: []string{"rasa", "taskyto"},
		MaxProfiles:  3,
		MaxActive:    2,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func TestEvaluateAllows(t *testing.T) {
	e := newTestEngine(t)
	d, err := e.Evaluate(context.Background(), Input{Kind: "test-run", Technology: "rasa", Profiles: 2, ActiveExecutions: 1})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !d.Allow {
		t.Fatalf("expected allow, got %+v", d)
	}
}

func TestEvaluateBlocks(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		name  string
		input Input
		want  string
	}{
		{"technology", Input{Technology: "dialogflow"}, "technology dialogflow is not allowed"},
		{"profiles", Input{Technology: "rasa", Profiles: 4}, "too many profiles"},
		{"active", Input{Technology: "rasa", ActiveExecutions: 2}, "too many active executions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Evaluate(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if d.Allow {
				t.Fatalf("expected block")
			}
			if !strings.Contains(d.Reason, tt.want) {
				t.Fatalf("expected reason containing %q, got %q", tt.want, d.Reason)
			}
		})
	}
}

func TestEvaluateCombinesReasons(t *testing.T) {
	e := newTestEngine(t)
	d, err := e.Evaluate(context.Background(), Input{Technology: "botium", Profiles: 10})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if d.Allow || strings.Count(d.Reason, ";") != 1 {
		t.Fatalf("expected two reasons, got %+v", d)
	}
}

func TestEmptyLimitsAllowEverything(t *testing.T) {
	e, err := NewEngine(context.Background(), DefaultPolicy, Limits{})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	d, err := e.Evaluate(context.Background(), Input{Technology: "anything", Profiles: 100, ActiveExecutions: 100})
	if err != nil || !d.Allow {
		t.Fatalf("expected allow, got %+v err=%v", d, err)
	}
}
