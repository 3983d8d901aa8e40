package ingest

import (
	"regexp"
	"strconv"
)

// reportMetrics are the analysis figures extracted from an explorer report.
type reportMetrics struct {
	functionalities int
	categories      int
	invocations     int
	cost            float64
}

type reportPatterns struct {
	functionalities *regexp.Regexp
	categories      *regexp.Regexp
	invocations     *regexp.Regexp
	cost            *regexp.Regexp
}

var (
	textPatterns = reportPatterns{
		functionalities: regexp.MustCompile(`(?i)Total functionalities:\s*(\d+)`),
		categories:      regexp.MustCompile(`(?im)^\s*Categories:\s*(\d+)`),
		invocations:     regexp.MustCompile(`(?i)Total API calls:\s*(\d+)`),
		cost:            regexp.MustCompile(`(?i)Estimated cost:\s*\$?\s*([0-9]*\.?[0-9]+)`),
	}
	markdownPatterns = reportPatterns{
		functionalities: regexp.MustCompile(`(?im)^\|\s*(?:Total\s+)?Functionalities\s*\|\s*(\d+)\s*\|`),
		categories:      regexp.MustCompile(`(?im)^\|\s*Categories\s*\|\s*(\d+)\s*\|`),
		invocations:     regexp.MustCompile(`(?im)^\|\s*Total API calls\s*\|\s*(\d+)\s*\|`),
		cost:            regexp.MustCompile(`(?im)^\|\s*Estimated cost\s*\|\s*\$?\s*([0-9]*\.?[0-9]+)\s*\|`),
	}
)

// parseReport extracts metrics from report text; fields that do not match stay zero.
func parseReport(format string, data []byte) reportMetrics {
	p := textPatterns
	if format == "md" {
		p = markdownPatterns
	}
	return reportMetrics{
		functionalities: firstInt(p.functionalities, data),
		categories:      firstInt(p.categories, data),
		invocations:     firstInt(p.invocations, data),
		cost:            firstFloat(p.cost, data),
	}
}

func firstInt(re *regexp.Regexp, data []byte) int {
	m := re.FindSubmatch(data)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(string(m[1]))
	return n
}

func firstFloat(re *regexp.Regexp, data []byte) float64 {
	m := re.FindSubmatch(data)
	if m == nil {
		return 0
	}
	f, _ := strconv.ParseFloat(string(m[1]), 64)
	return f
}
