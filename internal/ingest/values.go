package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Helpers for loosely typed YAML documents decoded into interface{} trees.

func asMap(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		return m
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out
	}
	return nil
}

func asList(v interface{}) []interface{} {
	l, _ := v.([]interface{})
	return l
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(v)
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case float64:
		return n
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(n), "$"))
		s = strings.TrimSuffix(s, "s")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func asInt(v interface{}) int {
	return int(asFloat(v))
}

func asFloats(v interface{}) []float64 {
	list := asList(v)
	out := make([]float64, 0, len(list))
	for _, item := range list {
		out = append(out, asFloat(item))
	}
	return out
}

func asStrings(v interface{}) []string {
	list := asList(v)
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, asString(item))
	}
	return out
}

// rawJSON converts a decoded YAML value to JSON, or nil when absent.
func rawJSON(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(normalize(v))
	if err != nil {
		return nil
	}
	return data
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}, map[string]interface{}:
		m := asMap(t)
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}
