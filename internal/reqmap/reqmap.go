// Package reqmap implements the Request Mapper (component B): translating a
// validated Messages-style request into a Responses-style payload.
package reqmap

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stellarlinkco/aogateway/internal/gwerr"
	"github.com/stellarlinkco/aogateway/internal/gwtypes"
)

// Build maps req (already resolved to upstreamModel) into a ResponsesRequest,
// per §4.B. It rejects invalid block/role combinations and undeclared
// tool_choice names with an invalid_request_error.
func Build(req *gwtypes.MessagesRequest, upstreamModel string) (*gwtypes.ResponsesRequest, error) {
	if len(req.Messages) == 0 {
		return nil, gwerr.Invalid("messages must not be empty")
	}

	out := &gwtypes.ResponsesRequest{
		Model:  upstreamModel,
		Stream: req.Stream,
	}

	if instructions, err := buildInstructions(req.System); err != nil {
		return nil, err
	} else if instructions != "" {
		out.Instructions = instructions
	}

	toolNames := make(map[string]struct{}, len(req.Tools))
	for _, t := range req.Tools {
		toolNames[t.Name] = struct{}{}
	}

	items, err := buildInputItems(req.Messages)
	if err != nil {
		return nil, err
	}
	out.Input = items

	if len(req.Tools) > 0 {
		out.Tools = buildTools(req.Tools)
	}

	if len(req.ToolChoice) > 0 {
		choice, err := buildToolChoice(req.ToolChoice, toolNames)
		if err != nil {
			return nil, err
		}
		out.ToolChoice = choice
	}

	if req.MaxTokens != nil {
		out.MaxOutputTokens = req.MaxTokens
	}

	return out, nil
}

func buildInstructions(system json.RawMessage) (string, error) {
	if len(system) == 0 {
		return "", nil
	}
	trimmed := strings.TrimSpace(string(system))
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(system, &s); err != nil {
			return "", gwerr.Invalid(fmt.Sprintf("invalid system field: %v", err))
		}
		return s, nil
	}

	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(system, &parts); err != nil {
		return "", gwerr.Invalid(fmt.Sprintf("invalid system field: %v", err))
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n"), nil
}

func buildInputItems(messages []gwtypes.Message) ([]gwtypes.InputItem, error) {
	var items []gwtypes.InputItem

	for _, msg := range messages {
		role := msg.Role
		var textParts []gwtypes.ResponsesContent
		var toolItems []gwtypes.InputItem

		for _, block := range msg.Blocks {
			switch block.Type {
			case gwtypes.BlockText:
				contentType := "input_text"
				if role == "assistant" {
					contentType = "output_text"
				}
				textParts = append(textParts, gwtypes.ResponsesContent{Type: contentType, Text: block.Text})

			case gwtypes.BlockToolUse:
				if role != "assistant" {
					return nil, gwerr.Invalid("tool_use blocks only appear in assistant messages")
				}
				argsJSON, err := canonicalizeInput(block.Input)
				if err != nil {
					return nil, gwerr.Invalid(fmt.Sprintf("serialize tool_use input: %v", err))
				}
				toolItems = append(toolItems, gwtypes.InputItem{
					Type:      "function_call",
					CallID:    block.ID,
					Name:      block.Name,
					Arguments: argsJSON,
				})

			case gwtypes.BlockToolResult:
				if role != "user" {
					return nil, gwerr.Invalid("tool_result blocks only appear in user messages")
				}
				toolItems = append(toolItems, gwtypes.InputItem{
					Type:   "function_call_output",
					CallID: block.ToolUseID,
					Output: block.ToolResultText(),
				})

			default:
				return nil, gwerr.Invalid(fmt.Sprintf("unknown content block type %q", block.Type))
			}
		}

		if len(textParts) > 0 {
			items = append(items, gwtypes.InputItem{
				Type:    "message",
				Role:    role,
				Content: textParts,
			})
		}
		items = append(items, toolItems...)
	}

	return items, nil
}

func canonicalizeInput(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "{}", nil
	}
	// Round-trip through a generic value to ensure the buffer is valid JSON
	// (the mapper rejects malformed tool_use input per §4.B's error list).
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func buildTools(tools []gwtypes.ToolDef) []gwtypes.ToolSpec {
	specs := make([]gwtypes.ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, gwtypes.ToolSpec{
			Type: "function",
			Function: gwtypes.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return specs
}

// buildToolChoice maps the {auto|any|none|named(name)} variant, per §4.B.
// A bare string is auto/any/none; an object {"type":"tool","name":"..."} (or
// {"type":"named","name":"..."}) is the named variant.
func buildToolChoice(raw json.RawMessage, toolNames map[string]struct{}) (any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, gwerr.Invalid(fmt.Sprintf("invalid tool_choice: %v", err))
		}
		switch s {
		case "auto":
			return "auto", nil
		case "any":
			return "required", nil
		case "none":
			return "none", nil
		default:
			return nil, gwerr.Invalid(fmt.Sprintf("unknown tool_choice %q", s))
		}
	}

	var named struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &named); err != nil {
		return nil, gwerr.Invalid(fmt.Sprintf("invalid tool_choice: %v", err))
	}
	if named.Name == "" {
		return nil, gwerr.Invalid("named tool_choice requires a name")
	}
	if _, ok := toolNames[named.Name]; !ok {
		return nil, gwerr.Invalid(fmt.Sprintf("tool_choice references undeclared tool %q", named.Name))
	}
	return map[string]any{
		"type": "function",
		"function": map[string]string{
			"name": named.Name,
		},
	}, nil
}
