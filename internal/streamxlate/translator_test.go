package streamxlate

import (
	"encoding/json"
	"testing"

	"github.com/openai/openai-go/responses"

	"github.com/stellarlinkco/aogateway/internal/gwerr"
	"github.com/stellarlinkco/aogateway/internal/obs"
)

// fakeWriter records every frame the translator emits, in order, for
// assertion without needing a real HTTP connection.
type fakeWriter struct {
	names    []string
	payloads []any
}

func (f *fakeWriter) WriteEvent(name string, payload any) error {
	f.names = append(f.names, name)
	f.payloads = append(f.payloads, payload)
	return nil
}

// mustEvent decodes a literal upstream SSE data payload the same way the
// real ssestream decoder would, so tests exercise the union's own JSON
// unmarshaling instead of a hand-built Go literal.
func mustEvent(t *testing.T, raw string) responses.ResponseStreamEventUnion {
	t.Helper()
	var event responses.ResponseStreamEventUnion
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return event
}

func TestTranslator_TextOnlyStream(t *testing.T) {
	w := &fakeWriter{}
	tr := New(w, "msg_1", "claude-3-opus", 12, obs.NoopSink{}, "corr-1")

	events := []string{
		`{"type":"response.created"}`,
		`{"type":"response.output_item.added","item_id":"item_1","item":{"id":"item_1","type":"message"}}`,
		`{"type":"response.content_part.added","item_id":"item_1"}`,
		`{"type":"response.output_text.delta","item_id":"item_1","delta":"Hel"}`,
		`{"type":"response.output_text.delta","item_id":"item_1","delta":"lo"}`,
		`{"type":"response.output_item.done","item_id":"item_1"}`,
		`{"type":"response.completed","response":{"id":"resp_1","status":"completed","output":[{"type":"message","content":[{"type":"output_text","text":"Hello"}]}],"usage":{"input_tokens":12,"output_tokens":2,"total_tokens":14}}}`,
	}
	for _, raw := range events {
		if err := tr.Consume(mustEvent(t, raw)); err != nil {
			t.Fatalf("Consume(%s): %v", raw, err)
		}
	}

	wantOrder := []string{
		EventMessageStart,
		EventContentBlockStart,
		EventContentBlockDelta,
		EventContentBlockDelta,
		EventContentBlockStop,
		EventMessageDelta,
		EventMessageStop,
	}
	if len(w.names) != len(wantOrder) {
		t.Fatalf("frame count = %d (%v), want %d (%v)", len(w.names), w.names, len(wantOrder), wantOrder)
	}
	for i, want := range wantOrder {
		if w.names[i] != want {
			t.Errorf("frame[%d] = %q, want %q", i, w.names[i], want)
		}
	}
	if !tr.MessageStarted() {
		t.Error("MessageStarted() = false, want true")
	}
}

func TestTranslator_ToolUseStream(t *testing.T) {
	w := &fakeWriter{}
	tr := New(w, "msg_2", "claude-3-opus", 5, obs.NoopSink{}, "corr-2")

	events := []string{
		`{"type":"response.created"}`,
		`{"type":"response.output_item.added","item_id":"call_item_1","item":{"id":"call_item_1","type":"function_call","call_id":"call_1","name":"get_weather"}}`,
		`{"type":"response.function_call_arguments.delta","item_id":"call_item_1","delta":"{\"city\":"}`,
		`{"type":"response.function_call_arguments.delta","item_id":"call_item_1","delta":"\"sf\"}"}`,
		`{"type":"response.function_call_arguments.done","item_id":"call_item_1"}`,
		`{"type":"response.completed","response":{"id":"resp_2","status":"completed","output":[{"type":"function_call","call_id":"call_1","name":"get_weather","arguments":"{\"city\":\"sf\"}"}]}}`,
	}
	for _, raw := range events {
		if err := tr.Consume(mustEvent(t, raw)); err != nil {
			t.Fatalf("Consume(%s): %v", raw, err)
		}
	}

	wantOrder := []string{
		EventMessageStart,
		EventContentBlockStart,
		EventContentBlockDelta,
		EventContentBlockDelta,
		EventContentBlockStop,
		EventMessageDelta,
		EventMessageStop,
	}
	if len(w.names) != len(wantOrder) {
		t.Fatalf("frame count = %d (%v), want %d (%v)", len(w.names), w.names, len(wantOrder), wantOrder)
	}

	deltaPayload, ok := w.payloads[len(w.payloads)-2].(map[string]any)
	if !ok {
		t.Fatalf("message_delta payload has unexpected type: %T", w.payloads[len(w.payloads)-2])
	}
	delta, ok := deltaPayload["delta"].(map[string]any)
	if !ok || delta["stop_reason"] != "tool_use" {
		t.Errorf("unexpected message_delta payload: %+v", deltaPayload)
	}
}

func TestTranslator_SequentialTextBlocks(t *testing.T) {
	w := &fakeWriter{}
	tr := New(w, "msg_seq", "claude-3-opus", 3, obs.NoopSink{}, "corr-seq")

	events := []string{
		`{"type":"response.created"}`,
		`{"type":"response.content_part.added","item_id":"item_1"}`,
		`{"type":"response.output_text.delta","item_id":"item_1","delta":"one"}`,
		`{"type":"response.content_part.done","item_id":"item_1"}`,
		`{"type":"response.content_part.added","item_id":"item_2"}`,
		`{"type":"response.output_text.delta","item_id":"item_2","delta":"two"}`,
		`{"type":"response.content_part.done","item_id":"item_2"}`,
		`{"type":"response.completed","response":{"id":"resp_seq","status":"completed","output":[]}}`,
	}
	for _, raw := range events {
		if err := tr.Consume(mustEvent(t, raw)); err != nil {
			t.Fatalf("Consume(%s): %v", raw, err)
		}
	}

	wantOrder := []string{
		EventMessageStart,
		EventContentBlockStart,
		EventContentBlockDelta,
		EventContentBlockStop,
		EventContentBlockStart,
		EventContentBlockDelta,
		EventContentBlockStop,
		EventMessageDelta,
		EventMessageStop,
	}
	if len(w.names) != len(wantOrder) {
		t.Fatalf("frame count = %d (%v), want %d", len(w.names), w.names, len(wantOrder))
	}
	for i, want := range wantOrder {
		if w.names[i] != want {
			t.Errorf("frame[%d] = %q, want %q", i, w.names[i], want)
		}
	}

	second, ok := w.payloads[4].(map[string]any)
	if !ok || second["index"] != 1 {
		t.Errorf("second block_start payload = %+v, want index 1", w.payloads[4])
	}
}

func TestTranslator_ToolBlockClosedByOutputItemDone(t *testing.T) {
	w := &fakeWriter{}
	tr := New(w, "msg_done", "claude-3-opus", 3, obs.NoopSink{}, "corr-done")

	// output_item.done carries the item id inside the item payload, not at
	// the top level; the translator still finalizes the tool block even when
	// no function_call_arguments.done preceded it.
	events := []string{
		`{"type":"response.created"}`,
		`{"type":"response.output_item.added","item":{"id":"call_item_1","type":"function_call","call_id":"call_1","name":"lookup"}}`,
		`{"type":"response.function_call_arguments.delta","item_id":"call_item_1","delta":"{\"q\":1}"}`,
		`{"type":"response.output_item.done","item":{"id":"call_item_1","type":"function_call","call_id":"call_1","name":"lookup"}}`,
	}
	for _, raw := range events {
		if err := tr.Consume(mustEvent(t, raw)); err != nil {
			t.Fatalf("Consume(%s): %v", raw, err)
		}
	}

	if w.names[len(w.names)-1] != EventContentBlockStop {
		t.Fatalf("frames = %v, want trailing %s", w.names, EventContentBlockStop)
	}
	stop, ok := w.payloads[len(w.payloads)-1].(map[string]any)
	if !ok {
		t.Fatalf("block_stop payload has unexpected type: %T", w.payloads[len(w.payloads)-1])
	}
	block, ok := stop["content_block"].(map[string]any)
	if !ok {
		t.Fatalf("block_stop payload missing content_block: %+v", stop)
	}
	input, ok := block["input"].(map[string]any)
	if !ok || input["q"] != float64(1) {
		t.Errorf("finalized input = %+v, want {q: 1}", block["input"])
	}
}

func TestTranslator_EmitErrorTerminatesStream(t *testing.T) {
	w := &fakeWriter{}
	tr := New(w, "msg_err", "claude-3-opus", 3, obs.NoopSink{}, "corr-err")

	_ = tr.Consume(mustEvent(t, `{"type":"response.created"}`))
	if err := tr.EmitError(gwerr.New(gwerr.KindAPI, "upstream connection dropped", 502)); err != nil {
		t.Fatalf("EmitError: %v", err)
	}

	if !tr.Terminated() {
		t.Error("Terminated() = false after EmitError, want true")
	}

	// Late upstream events after the terminal frame are dropped.
	before := len(w.names)
	_ = tr.Consume(mustEvent(t, `{"type":"response.output_text.delta","item_id":"item_1","delta":"late"}`))
	if len(w.names) != before {
		t.Errorf("Consume after terminal frame emitted %d extra frames, want 0", len(w.names)-before)
	}
	if err := tr.Finalize("end_turn"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(w.names) != before {
		t.Errorf("Finalize after error emitted %d extra frames, want 0", len(w.names)-before)
	}
}

func TestTranslator_FailedStreamEmitsErrorNotStop(t *testing.T) {
	w := &fakeWriter{}
	tr := New(w, "msg_3", "claude-3-opus", 5, obs.NoopSink{}, "corr-3")

	if err := tr.Consume(mustEvent(t, `{"type":"response.created"}`)); err != nil {
		t.Fatalf("Consume(created): %v", err)
	}
	if err := tr.Consume(mustEvent(t, `{"type":"response.failed","response":{"id":"resp_3","status":"failed","error":{"message":"upstream exploded"}}}`)); err != nil {
		t.Fatalf("Consume(failed): %v", err)
	}

	if len(w.names) != 2 || w.names[1] != EventError {
		t.Fatalf("frames = %v, want [%s %s]", w.names, EventMessageStart, EventError)
	}
}

func TestTranslator_FinalizeIsIdempotentAfterMessageStop(t *testing.T) {
	w := &fakeWriter{}
	tr := New(w, "msg_4", "claude-3-opus", 5, obs.NoopSink{}, "corr-4")

	_ = tr.Consume(mustEvent(t, `{"type":"response.created"}`))
	_ = tr.Consume(mustEvent(t, `{"type":"response.completed","response":{"id":"resp_4","status":"completed","output":[]}}`))

	before := len(w.names)
	if err := tr.Finalize("end_turn"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(w.names) != before {
		t.Errorf("Finalize after message_stop emitted %d extra frames, want 0", len(w.names)-before)
	}
}
