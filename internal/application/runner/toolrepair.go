package runner

import (
	"encoding/json"
	"strings"
)

// ToolMessage is a structured conversation message that may carry tool-use
// blocks. Prompts that parse as a list of these get pre-flight validation.
type ToolMessage struct {
	Role    string      `json:"role"`
	Content []ToolBlock `json:"content"`
}

// ToolBlock is one content block of a structured message.
type ToolBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// ParseToolMessages attempts to read a prompt as a structured message list.
// Returns false for plain-text prompts.
func ParseToolMessages(prompt string) ([]ToolMessage, bool) {
	trimmed := strings.TrimSpace(prompt)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var messages []ToolMessage
	if err := json.Unmarshal([]byte(trimmed), &messages); err != nil {
		return nil, false
	}
	if len(messages) == 0 {
		return nil, false
	}
	return messages, true
}

// UnmatchedToolUses returns the IDs of tool_use blocks that have no
// tool_result referencing them anywhere in the conversation.
func UnmatchedToolUses(messages []ToolMessage) []string {
	resolved := make(map[string]bool)
	for _, m := range messages {
		for _, block := range m.Content {
			if block.Type == "tool_result" && block.ToolUseID != "" {
				resolved[block.ToolUseID] = true
			}
		}
	}

	var unmatched []string
	for _, m := range messages {
		for _, block := range m.Content {
			if block.Type == "tool_use" && block.ID != "" && !resolved[block.ID] {
				unmatched = append(unmatched, block.ID)
			}
		}
	}
	return unmatched
}

// RepairToolPairs inserts the minimum number of synthesized tool_result
// blocks needed to pair every unmatched tool_use. Each repair is placed in
// a user message directly after the message that issued the tool_use.
func RepairToolPairs(messages []ToolMessage) []ToolMessage {
	resolved := make(map[string]bool)
	for _, m := range messages {
		for _, block := range m.Content {
			if block.Type == "tool_result" && block.ToolUseID != "" {
				resolved[block.ToolUseID] = true
			}
		}
	}

	var repaired []ToolMessage
	for _, m := range messages {
		repaired = append(repaired, m)

		var results []ToolBlock
		for _, block := range m.Content {
			if block.Type == "tool_use" && block.ID != "" && !resolved[block.ID] {
				results = append(results, ToolBlock{
					Type:      "tool_result",
					ToolUseID: block.ID,
					Content:   "Tool execution result unavailable.",
				})
				resolved[block.ID] = true
			}
		}
		if len(results) > 0 {
			repaired = append(repaired, ToolMessage{Role: "user", Content: results})
		}
	}
	return repaired
}
