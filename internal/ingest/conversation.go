package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

// profileMeta is the profile configuration recorded in a conversation's first document.
type profileMeta struct {
	language           string
	personality        string
	interactionStyles  []string
	goalStyle          domain.GoalStyle
	stepLimit          int
	conversationNumber int
}

func (m profileMeta) applyTo(r *domain.ProfileReport) {
	r.Language = m.language
	r.Personality = m.personality
	r.InteractionStyles = m.interactionStyles
	r.GoalStyle = m.goalStyle
	r.StepLimit = m.stepLimit
	r.ConversationNumber = m.conversationNumber
}

type parsedConversation struct {
	conversation domain.Conversation
	meta         profileMeta
}

// parseConversationFile reads a conversation artifact: call parameters,
// summary, and turn log as three YAML documents.
func parseConversationFile(path string) (*parsedConversation, error) {
	nodes, err := decodeNodes(path)
	if err != nil {
		return nil, err
	}
	if len(nodes) < 3 {
		return nil, fmt.Errorf("expected 3 documents, found %d", len(nodes))
	}
	docs := make([]map[string]interface{}, 3)
	for i := range docs {
		var doc interface{}
		if err := nodes[i].Decode(&doc); err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		docs[i] = asMap(doc)
	}
	params, summary := docs[0], docs[1]

	conv := domain.Conversation{
		ID:               newID(conversationIDPrefix),
		Name:             filepath.Base(path),
		Serial:           asString(params["serial"]),
		AskAbout:         rawJSON(params["ask_about"]),
		DataOutput:       rawJSON(summary["data_output"]),
		ConversationTime: asFloat(summary["conversation time"]),
		ResponseTimes:    asFloats(summary["response times"]),
		TotalCost:        asFloat(summary["total cost"]),
		Interaction:      parseInteraction(lookup(nodes[2], "interaction")),
	}

	if report := asMap(summary["assistant response time report"]); report != nil {
		conv.AvgResponseTime = asFloat(report["average"])
		conv.MaxResponseTime = asFloat(report["max"])
		conv.MinResponseTime = asFloat(report["min"])
	} else if len(conv.ResponseTimes) > 0 {
		conv.AvgResponseTime, conv.MinResponseTime, conv.MaxResponseTime = summarize(conv.ResponseTimes)
	}

	meta := parseProfileMeta(params)
	meta.interactionStyles = parseInteractionStyles(lookup(nodes[0], "conversation", "interaction_style"))
	return &parsedConversation{conversation: conv, meta: meta}, nil
}

func parseProfileMeta(params map[string]interface{}) profileMeta {
	user := asMap(params["user"])
	conversation := asMap(params["conversation"])

	meta := profileMeta{
		language:           asString(user["language"]),
		personality:        parsePersonality(user["context"]),
		conversationNumber: asInt(conversation["number"]),
	}
	meta.goalStyle, meta.stepLimit = parseGoalStyle(conversation["goal_style"])
	return meta
}

func parsePersonality(entries interface{}) string {
	for _, item := range asList(entries) {
		if s, ok := item.(string); ok {
			if rest, found := strings.CutPrefix(strings.TrimSpace(s), "personality:"); found {
				return strings.TrimSpace(rest)
			}
			continue
		}
		if m := asMap(item); m != nil {
			if p := asString(m["personality"]); p != "" {
				return p
			}
		}
	}
	return ""
}

// parseGoalStyle accepts {steps: N}, {all_answered: {limit: N}},
// {all_answered: true} and the bare string "default".
func parseGoalStyle(v interface{}) (domain.GoalStyle, int) {
	m := asMap(v)
	if m == nil {
		return domain.GoalStyleDefault, 0
	}
	if steps, ok := m["steps"]; ok {
		return domain.GoalStyleSteps, asInt(steps)
	}
	if aa, ok := m["all_answered"]; ok {
		if inner := asMap(aa); inner != nil {
			return domain.GoalStyleAllAnswered, asInt(inner["limit"])
		}
		return domain.GoalStyleAllAnswered, 0
	}
	return domain.GoalStyleDefault, 0
}

// lookup follows keys through nested mappings and returns the value node, or
// nil when a key is missing.
func lookup(n *yaml.Node, keys ...string) *yaml.Node {
	for _, key := range keys {
		n = resolve(n)
		if n == nil || n.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == key {
				next = n.Content[i+1]
				break
			}
		}
		n = next
	}
	return resolve(n)
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch {
		case n.Kind == yaml.DocumentNode && len(n.Content) > 0:
			n = n.Content[0]
		case n.Kind == yaml.AliasNode:
			n = n.Alias
		default:
			return n
		}
	}
	return nil
}

func nodeString(n *yaml.Node) string {
	n = resolve(n)
	if n == nil || n.Tag == "!!null" {
		return ""
	}
	if n.Kind == yaml.ScalarNode {
		return strings.TrimSpace(n.Value)
	}
	var v interface{}
	if err := n.Decode(&v); err != nil {
		return ""
	}
	return asString(v)
}

// parseInteractionStyles lists plain styles and the keys of configured
// styles such as {random: [...]}, in document order.
func parseInteractionStyles(n *yaml.Node) []string {
	n = resolve(n)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	var styles []string
	for _, item := range n.Content {
		item = resolve(item)
		if item == nil {
			continue
		}
		switch item.Kind {
		case yaml.ScalarNode:
			styles = append(styles, item.Value)
		case yaml.MappingNode:
			for i := 0; i+1 < len(item.Content); i += 2 {
				styles = append(styles, item.Content[i].Value)
			}
		}
	}
	return styles
}

// parseInteraction flattens the turn log. An entry holding several roles
// yields one turn per role, in document order.
func parseInteraction(n *yaml.Node) []domain.Turn {
	n = resolve(n)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	var turns []domain.Turn
	for _, item := range n.Content {
		item = resolve(item)
		if item == nil || item.Kind != yaml.MappingNode {
			continue
		}
		for i := 0; i+1 < len(item.Content); i += 2 {
			turns = append(turns, domain.Turn{Role: item.Content[i].Value, Text: nodeString(item.Content[i+1])})
		}
	}
	return turns
}

func summarize(times []float64) (avg, lo, hi float64) {
	lo, hi = times[0], times[0]
	sum := 0.0
	for _, t := range times {
		sum += t
		lo = min(lo, t)
		hi = max(hi, t)
	}
	return sum / float64(len(times)), lo, hi
}
