// Package gwtypes holds the wire-level data model shared by every
// translation component: the inbound Messages-shaped request, the outbound
// Messages-shaped response, and the intermediate Responses-shaped payload
// built for the upstream call.
package gwtypes

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
)

// MessagesRequest is the inbound request body for /v1/messages and its
// streaming/count_tokens siblings.
type MessagesRequest struct {
	Model      string          `json:"model"`
	System     json.RawMessage `json:"system,omitempty"`
	Messages   []Message       `json:"messages"`
	Tools      []ToolDef       `json:"tools,omitempty"`
	ToolChoice json.RawMessage `json:"tool_choice,omitempty"`
	MaxTokens  *int            `json:"max_tokens,omitempty"`
	Stream     bool            `json:"stream,omitempty"`
}

// Message is one turn of conversation. Content is either a bare string or an
// ordered sequence of ContentBlock; UnmarshalJSON normalizes both into Blocks.
type Message struct {
	Role   string         `json:"role"`
	Blocks []ContentBlock `json:"-"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	blocks, err := ParseContent(raw.Content)
	if err != nil {
		return err
	}
	m.Blocks = blocks
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	blocks := m.Blocks
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return json.Marshal(struct {
		Role    string         `json:"role"`
		Content []ContentBlock `json:"content"`
	}{Role: m.Role, Content: blocks})
}

// ParseContent normalizes a `content` field that may be a bare string or an
// ordered array of content blocks into a slice of ContentBlock. A bare
// string becomes a single text block, per §3.
func ParseContent(raw json.RawMessage) ([]ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	trimmed := trimLeadingSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []ContentBlock{{Type: BlockText, Text: s}}, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}

// Block kinds.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is the tagged union described in §3: text, tool_use, or
// tool_result. Exactly one payload is populated, selected by Type.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	// RawArguments holds the upstream arguments string verbatim when it
	// failed to parse as JSON, per §4.C; Input is then the empty object.
	RawArguments string `json:"raw_arguments,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ToolResultText flattens a tool_result's content (string or sequence of
// text blocks) into a single string, per §4.B's "flattened text" rule.
func (b ContentBlock) ToolResultText() string {
	if len(b.Content) == 0 {
		return ""
	}
	trimmed := trimLeadingSpace(b.Content)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if json.Unmarshal(b.Content, &s) == nil {
			return s
		}
		return ""
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if json.Unmarshal(b.Content, &parts) != nil {
		return ""
	}
	var out string
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// ToolDef is a client-declared tool, passed through to the upstream as a
// function tool.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Usage is the input/output token pair reported to clients.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Stop reasons, taken from anthropic-sdk-go's enum so a client switching on
// the SDK's constants keeps working unmodified.
const (
	StopEndTurn      = string(anthropic.StopReasonEndTurn)
	StopMaxTokens    = string(anthropic.StopReasonMaxTokens)
	StopToolUse      = string(anthropic.StopReasonToolUse)
	StopRefusal      = string(anthropic.StopReasonRefusal)
	StopStopSequence = string(anthropic.StopReasonStopSequence)
	StopPauseTurn    = string(anthropic.StopReasonPauseTurn)
)

// MessagesResponse is the outbound, non-streaming response body.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// --- Responses-shaped intermediate payload (the Request Mapper's output) ---

// InputItem is one item of the Responses API's `input` array: a message, a
// function_call, or a function_call_output, discriminated by Type.
type InputItem struct {
	Type string `json:"type"`

	// message
	Role    string             `json:"role,omitempty"`
	Content []ResponsesContent `json:"content,omitempty"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output
	Output string `json:"output,omitempty"`
}

// ResponsesContent is one part of a `message` input item's content array:
// input_text (user turns) or output_text (assistant turns).
type ResponsesContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolSpec is a Responses-API function tool declaration.
type ToolSpec struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ResponsesRequest is the mapped payload sent to the upstream /responses
// endpoint, built by the Request Mapper (component B).
type ResponsesRequest struct {
	Model           string      `json:"model"`
	Instructions    string      `json:"instructions,omitempty"`
	Input           []InputItem `json:"input"`
	Tools           []ToolSpec  `json:"tools,omitempty"`
	ToolChoice      any         `json:"tool_choice,omitempty"`
	MaxOutputTokens *int        `json:"max_output_tokens,omitempty"`
	Stream          bool        `json:"stream,omitempty"`
}

// --- Upstream response envelope (the Response Mapper's input) ---

// ResponseEnvelope is the terminal (or final-frame) upstream response body,
// per §4.C.
type ResponseEnvelope struct {
	ID                string             `json:"id"`
	Status            string             `json:"status"`
	Output            []OutputItem       `json:"output"`
	IncompleteDetails *IncompleteDetails `json:"incomplete_details,omitempty"`
	Usage             *UpstreamUsage     `json:"usage,omitempty"`
}

type IncompleteDetails struct {
	Reason string `json:"reason"`
}

type UpstreamUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// OutputItem is one element of the upstream `output` array: a message or a
// function_call (other kinds are ignored per §4.C).
type OutputItem struct {
	Type string `json:"type"`

	// message
	Role    string             `json:"role,omitempty"`
	Content []ResponsesContent `json:"content,omitempty"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}
