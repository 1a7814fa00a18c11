// Package classify labels an inbound request (Component F) so the gateway
// can decide whether to strip its tool catalog before forwarding upstream.
// The classification itself has no other observable effect.
package classify

import (
	"encoding/json"
	"strings"

	"github.com/lumenbridge/gatewayd/pkg/dialect"
)

// Label is one of the fixed classification outcomes.
type Label string

const (
	LabelTitle  Label = "TITLE"
	LabelTopic  Label = "TOPIC"
	LabelWarmup Label = "WARMUP"
	LabelTools  Label = "TOOLS"
	LabelNormal Label = "NORMAL"
)

const (
	warmupMaxLength  = 500
	toolsCountTrigger = 10
)

// titleTriggers and topicTriggers are matched as case-insensitive substrings
// of the first user text block.
var titleTriggers = []string{
	"please write a 5-10 word title",
	"summarize this coding conversation",
}

var topicTriggers = []string{
	"analyze if this message indicates a new conversation topic",
}

// Classify inspects req's first user message's first text block and tool
// count to produce a Label.
func Classify(req *dialect.Request) Label {
	text := firstUserText(req)
	lower := strings.ToLower(text)

	for _, trigger := range titleTriggers {
		if strings.Contains(lower, trigger) {
			return LabelTitle
		}
	}
	for _, trigger := range topicTriggers {
		if strings.Contains(lower, trigger) {
			return LabelTopic
		}
	}
	if isWarmup(text) {
		return LabelWarmup
	}
	if len(req.Tools) > toolsCountTrigger {
		return LabelTools
	}
	return LabelNormal
}

// ShouldStripTools reports whether the tool catalog should be cleared
// before forwarding, per the label's classification.
func ShouldStripTools(label Label) bool {
	switch label {
	case LabelTitle, LabelTopic, LabelWarmup:
		return true
	default:
		return false
	}
}

func isWarmup(text string) bool {
	if len(text) >= warmupMaxLength {
		return false
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, "i am an ai assistant") ||
		strings.Contains(lower, "i'm an ai assistant") ||
		strings.Contains(lower, "hello, i am") ||
		strings.Contains(lower, "introduce")
}

func firstUserText(req *dialect.Request) string {
	for _, msg := range req.Messages {
		if msg.Role != dialect.RoleUser {
			continue
		}
		return firstTextBlock(msg.Content)
	}
	return ""
}

func firstTextBlock(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var blocks []dialect.Block
	if err := json.Unmarshal(raw, &blocks); err == nil {
		for _, b := range blocks {
			if b.Type == "text" {
				return b.Text
			}
		}
	}
	return ""
}
