// Package monitor derives execution progress from the artifacts and output of a running tool.
package monitor

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Rule maps a line of tool output to a stage and a completion percentage.
//
// A literal rule matches when Contains is a substring of the line and yields
// Percent. A session rule matches Pattern, whose first two groups are the
// current session N and the total M, and yields From + floor((To-From)*N/M).
type Rule struct {
	Stage    string
	Contains string
	Pattern  *regexp.Regexp
	Percent  int
	From, To int
}

// Match is the result of a successful ParseLine.
type Match struct {
	Stage   string
	Percent int
}

// DefaultRules is the ordered stage table for the chatbot explorer.
func DefaultRules() []Rule {
	return []Rule{
		{Stage: "initializing", Contains: "Initializing", Percent: 5},
		{Stage: "exploring", Pattern: regexp.MustCompile(`Exploration Session (\d+)/(\d+)`), From: 10, To: 50},
		{Stage: "analyzing", Contains: "Exploration complete", Percent: 50},
		{Stage: "analyzing", Contains: "Starting Analysis", Percent: 55},
		{Stage: "generating_profiles", Contains: "Generating user profiles", Percent: 70},
		{Stage: "validating", Contains: "Validating profiles", Percent: 80},
		{Stage: "building_graph", Contains: "Generating workflow graph", Percent: 90},
		{Stage: "writing_report", Contains: "Writing report", Percent: 95},
		{Stage: "finalizing", Contains: "Execution completed", Percent: 99},
	}
}

// ParseLine returns the first rule in table order that matches line.
func ParseLine(rules []Rule, line string) (Match, bool) {
	for _, r := range rules {
		if r.Pattern != nil {
			m := r.Pattern.FindStringSubmatch(line)
			if len(m) < 3 {
				continue
			}
			n, errN := strconv.Atoi(m[1])
			total, errM := strconv.Atoi(m[2])
			if errN != nil || errM != nil || total <= 0 {
				continue
			}
			if n > total {
				n = total
			}
			// Float math keeps (To-From)*N from overflowing for huge counters.
			span := math.Floor(float64(r.To-r.From) * float64(n) / float64(total))
			return Match{Stage: r.Stage, Percent: r.From + int(span)}, true
		}
		if r.Contains != "" && strings.Contains(line, r.Contains) {
			return Match{Stage: r.Stage, Percent: r.Percent}, true
		}
	}
	return Match{}, false
}

// StageLabel renders a stage identifier for humans ("generating_profiles" -> "Generating Profiles").
func StageLabel(stage string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(stage, "_", " "))
}
