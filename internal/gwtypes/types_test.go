package gwtypes

import (
	"encoding/json"
	"testing"
)

func TestMessageUnmarshalJSON_BareString(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(m.Blocks) != 1 || m.Blocks[0].Type != BlockText || m.Blocks[0].Text != "hello" {
		t.Fatalf("unexpected blocks: %+v", m.Blocks)
	}
}

func TestMessageUnmarshalJSON_BlockArray(t *testing.T) {
	raw := `{"role":"assistant","content":[{"type":"text","text":"hi"},{"type":"tool_use","id":"call_1","name":"get_weather","input":{"city":"sf"}}]}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(m.Blocks) != 2 {
		t.Fatalf("want 2 blocks, got %d", len(m.Blocks))
	}
	if m.Blocks[1].Type != BlockToolUse || m.Blocks[1].Name != "get_weather" {
		t.Fatalf("unexpected tool_use block: %+v", m.Blocks[1])
	}
}

func TestMessageMarshalRoundTrip(t *testing.T) {
	m := Message{Role: "user", Blocks: []ContentBlock{{Type: BlockText, Text: "hello"}}}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Message
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Blocks) != 1 || back.Blocks[0].Text != "hello" {
		t.Fatalf("round trip mismatch: %+v", back.Blocks)
	}
}

func TestContentBlockToolResultText(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare string", raw: `"42 degrees"`, want: "42 degrees"},
		{name: "text parts", raw: `[{"text":"line1"},{"text":"line2"}]`, want: "line1\nline2"},
		{name: "empty", raw: ``, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := ContentBlock{Type: BlockToolResult}
			if tc.raw != "" {
				b.Content = json.RawMessage(tc.raw)
			}
			if got := b.ToolResultText(); got != tc.want {
				t.Errorf("ToolResultText() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseContentEmpty(t *testing.T) {
	blocks, err := ParseContent(nil)
	if err != nil {
		t.Fatalf("ParseContent: %v", err)
	}
	if blocks != nil {
		t.Fatalf("want nil blocks, got %+v", blocks)
	}
}
