// Package streamxlate implements the Stream Translator (component D): a
// stateful transducer that consumes upstream Responses API SSE events and
// emits a downstream Messages-shaped SSE event sequence.
//
// The state-machine shape follows §9's design note: a single loop over
// upstream events, each dispatched through Translator.Consume, yielding zero or
// more downstream frames — grounded on the tingly-dev-tingly-box streaming
// handler's event-type switch, generalized from its gin.Context/Flusher
// coupling to the FrameWriter interface below so the translator itself has
// no HTTP dependency and is exercisable from a table test.
package streamxlate

import (
	"encoding/json"

	"github.com/openai/openai-go/responses"

	"github.com/stellarlinkco/aogateway/internal/gwerr"
	"github.com/stellarlinkco/aogateway/internal/gwtypes"
	"github.com/stellarlinkco/aogateway/internal/obs"
	"github.com/stellarlinkco/aogateway/internal/respmap"
)

// maxToolBufferBytes is the soft cap on a single tool block's accumulated
// argument JSON, per §5's resource policy.
const maxToolBufferBytes = 1 << 20

// Downstream SSE event and content-block-kind names, per §6.3.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"

	blockKindText    = "text"
	blockKindToolUse = "tool_use"

	deltaKindText      = "text_delta"
	deltaKindInputJSON = "input_json_delta"
)

// FrameWriter is the translator's only output dependency: one downstream SSE
// frame per call. Implementations are expected to flush after every write.
type FrameWriter interface {
	WriteEvent(name string, payload any) error
}

// blockKind distinguishes the two BlockState kinds from §3.
type blockKind int

const (
	blockText blockKind = iota
	blockToolUse
)

type blockState struct {
	kind   blockKind
	itemID string
	closed bool
}

type toolMeta struct {
	id   string
	name string
}

// state is the per-request StreamState described in §3. It is owned
// exclusively by one Translator for the lifetime of one request.
type state struct {
	messageID    string
	inboundModel string

	nextBlockIndex int
	blocks         map[int]*blockState
	itemToBlock    map[string]int
	toolBuffers    map[int][]byte
	toolMeta       map[int]toolMeta

	textBlockOpen bool

	outputTokens   int
	messageStarted bool
	messageStopped bool
}

func newState(messageID, inboundModel string) *state {
	return &state{
		messageID:    messageID,
		inboundModel: inboundModel,
		blocks:       map[int]*blockState{},
		itemToBlock:  map[string]int{},
		toolBuffers:  map[int][]byte{},
		toolMeta:     map[int]toolMeta{},
	}
}

// Translator drives one streaming request from upstream events to downstream
// frames. It holds no state beyond one request's StreamState.
type Translator struct {
	w             FrameWriter
	s             *state
	sink          obs.Sink
	correlationID string
	inputTokens   int
}

// New constructs a Translator for one streaming request. inputTokens is the
// locally computed input-token count (component E), already known before the
// upstream call per §4.D's response.created handling.
func New(w FrameWriter, messageID, inboundModel string, inputTokens int, sink obs.Sink, correlationID string) *Translator {
	if sink == nil {
		sink = obs.NoopSink{}
	}
	return &Translator{
		w:             w,
		s:             newState(messageID, inboundModel),
		sink:          sink,
		correlationID: correlationID,
		inputTokens:   inputTokens,
	}
}

// Consume processes one upstream event and returns an error only for write
// failures toward the client. Upstream failure events and the oversized-
// tool-buffer cap are translated into a downstream error frame internally;
// the caller checks Terminated after each event and stops feeding once the
// stream has reached a terminal frame.
func (t *Translator) Consume(event responses.ResponseStreamEventUnion) error {
	if t.s.messageStopped {
		return nil
	}
	switch event.Type {
	case "response.created":
		return t.handleCreated()

	case "response.output_item.added":
		return t.handleOutputItemAdded(event)

	case "response.content_part.added":
		return t.handleContentPartAdded(event)

	case "response.output_text.delta":
		return t.handleTextDelta(event)

	case "response.content_part.done", "response.output_item.done":
		return t.handleItemOrPartDone(event)

	case "response.function_call_arguments.delta":
		return t.handleFunctionCallArgsDelta(event)

	case "response.function_call_arguments.done":
		return t.handleFunctionCallArgsDone(event)

	case "response.completed", "response.incomplete":
		return t.handleCompleted(event)

	case "response.failed":
		return t.handleFailed(event)

	case "ping":
		return t.w.WriteEvent(EventPing, map[string]any{"type": EventPing})

	default:
		t.sink.Log(obs.Event{Name: "stream.unknown_event", CorrelationID: t.correlationID, RequestPayload: event.Type})
		return nil
	}
}

// MessageStarted reports whether message_start has already been emitted.
func (t *Translator) MessageStarted() bool {
	return t.s.messageStarted
}

// Terminated reports whether the stream has reached a terminal frame
// (message_stop or error). Once true, the caller stops feeding events and
// closes the upstream read.
func (t *Translator) Terminated() bool {
	return t.s.messageStopped
}

// EmitError writes a terminal error frame for an upstream failure the
// handler detected after the SSE headers were committed, whether or not
// message_start went out. No message_stop follows, per the error path in §4.D.
func (t *Translator) EmitError(ge *gwerr.Error) error {
	return t.emitError(ge)
}

func (t *Translator) handleCreated() error {
	t.s.messageStarted = true
	return t.w.WriteEvent(EventMessageStart, map[string]any{
		"type": EventMessageStart,
		"message": map[string]any{
			"id":      t.s.messageID,
			"type":    "message",
			"role":    "assistant",
			"model":   t.s.inboundModel,
			"content": []any{},
			"usage": gwtypes.Usage{
				InputTokens:  t.inputTokens,
				OutputTokens: 0,
			},
		},
	})
}

func (t *Translator) handleOutputItemAdded(event responses.ResponseStreamEventUnion) error {
	item := event.Item
	if item.Type != "function_call" {
		// message items open their text block lazily, at content_part.added
		// or the first text delta.
		return nil
	}
	idx := t.openBlock(item.ID, blockToolUse)
	t.s.toolMeta[idx] = toolMeta{id: item.CallID, name: item.Name}
	t.s.toolBuffers[idx] = nil
	return t.w.WriteEvent(EventContentBlockStart, map[string]any{
		"type":  EventContentBlockStart,
		"index": idx,
		"content_block": map[string]any{
			"type":  blockKindToolUse,
			"id":    item.CallID,
			"name":  item.Name,
			"input": map[string]any{},
		},
	})
}

func (t *Translator) handleContentPartAdded(event responses.ResponseStreamEventUnion) error {
	if _, ok := t.s.itemToBlock[event.ItemID]; ok {
		return nil
	}
	if t.s.textBlockOpen {
		return nil
	}
	idx := t.openBlock(event.ItemID, blockText)
	t.s.textBlockOpen = true
	return t.w.WriteEvent(EventContentBlockStart, map[string]any{
		"type":  EventContentBlockStart,
		"index": idx,
		"content_block": map[string]any{
			"type": blockKindText,
			"text": "",
		},
	})
}

func (t *Translator) handleTextDelta(event responses.ResponseStreamEventUnion) error {
	idx, ok := t.s.itemToBlock[event.ItemID]
	if !ok {
		idx = t.openBlock(event.ItemID, blockText)
		t.s.textBlockOpen = true
		if err := t.w.WriteEvent(EventContentBlockStart, map[string]any{
			"type":  EventContentBlockStart,
			"index": idx,
			"content_block": map[string]any{
				"type": blockKindText,
				"text": "",
			},
		}); err != nil {
			return err
		}
	}
	text := event.Delta.OfString
	if text == "" {
		return nil
	}
	return t.w.WriteEvent(EventContentBlockDelta, map[string]any{
		"type":  EventContentBlockDelta,
		"index": idx,
		"delta": map[string]any{
			"type": deltaKindText,
			"text": text,
		},
	})
}

func (t *Translator) handleItemOrPartDone(event responses.ResponseStreamEventUnion) error {
	// content_part.* events carry the item id at the top level;
	// output_item.done carries it inside the item payload.
	id := event.ItemID
	if id == "" {
		id = event.Item.ID
	}
	idx, ok := t.s.itemToBlock[id]
	if !ok {
		return nil
	}
	b := t.s.blocks[idx]
	if b.closed {
		return nil
	}
	if b.kind == blockToolUse {
		// output_item.done for a function_call whose arguments.done never
		// arrived still finalizes the block.
		return t.closeToolBlock(idx)
	}
	return t.closeBlock(idx, nil)
}

func (t *Translator) handleFunctionCallArgsDelta(event responses.ResponseStreamEventUnion) error {
	idx, ok := t.s.itemToBlock[event.ItemID]
	if !ok {
		return nil
	}
	frag := event.Delta.OfString
	if frag == "" {
		frag = event.Arguments
	}
	if frag == "" {
		return nil
	}
	buf := append(t.s.toolBuffers[idx], frag...)
	if len(buf) > maxToolBufferBytes {
		ge := gwerr.Invalid("tool arguments exceeded the per-block size limit")
		return t.emitError(ge)
	}
	t.s.toolBuffers[idx] = buf
	return t.w.WriteEvent(EventContentBlockDelta, map[string]any{
		"type":  EventContentBlockDelta,
		"index": idx,
		"delta": map[string]any{
			"type":         deltaKindInputJSON,
			"partial_json": frag,
		},
	})
}

func (t *Translator) handleFunctionCallArgsDone(event responses.ResponseStreamEventUnion) error {
	idx, ok := t.s.itemToBlock[event.ItemID]
	if !ok {
		return nil
	}
	return t.closeToolBlock(idx)
}

func (t *Translator) closeBlock(idx int, toolInput json.RawMessage) error {
	b := t.s.blocks[idx]
	if b == nil || b.closed {
		return nil
	}
	b.closed = true

	if b.kind == blockText {
		t.s.textBlockOpen = false
		return t.w.WriteEvent(EventContentBlockStop, map[string]any{
			"type":  EventContentBlockStop,
			"index": idx,
		})
	}

	meta := t.s.toolMeta[idx]
	var parsed any = map[string]any{}
	rawOnFailure := ""
	raw := "{}"
	if toolInput != nil {
		raw = string(toolInput)
	}
	if len(raw) > 0 {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			parsed = v
		} else {
			rawOnFailure = raw
		}
	}
	block := map[string]any{
		"type":  blockKindToolUse,
		"id":    meta.id,
		"name":  meta.name,
		"input": parsed,
	}
	if rawOnFailure != "" {
		block["raw"] = rawOnFailure
	}
	return t.w.WriteEvent(EventContentBlockStop, map[string]any{
		"type":          EventContentBlockStop,
		"index":         idx,
		"content_block": block,
	})
}

func (t *Translator) closeToolBlock(idx int) error {
	buf := t.s.toolBuffers[idx]
	return t.closeBlock(idx, json.RawMessage(buf))
}

func (t *Translator) openBlock(itemID string, kind blockKind) int {
	idx := t.s.nextBlockIndex
	t.s.nextBlockIndex++
	t.s.blocks[idx] = &blockState{kind: kind, itemID: itemID}
	if itemID != "" {
		t.s.itemToBlock[itemID] = idx
	}
	return idx
}

// closeAllOpenBlocks emits synthetic content_block_stop events for any block
// left open when the response completes, per §4.D's ordering invariant.
func (t *Translator) closeAllOpenBlocks() error {
	for idx := 0; idx < t.s.nextBlockIndex; idx++ {
		b := t.s.blocks[idx]
		if b == nil || b.closed {
			continue
		}
		if b.kind == blockToolUse {
			if err := t.closeToolBlock(idx); err != nil {
				return err
			}
			continue
		}
		if err := t.closeBlock(idx, nil); err != nil {
			return err
		}
	}
	return nil
}

func (t *Translator) handleCompleted(event responses.ResponseStreamEventUnion) error {
	if err := t.closeAllOpenBlocks(); err != nil {
		return err
	}

	env := envelopeFromResponse(&event.Response)
	stopReason := respmap.DeriveStopReason(env)
	if env.Usage != nil {
		t.s.outputTokens = env.Usage.OutputTokens
	}

	if err := t.w.WriteEvent(EventMessageDelta, map[string]any{
		"type": EventMessageDelta,
		"delta": map[string]any{
			"stop_reason": stopReason,
		},
		"usage": map[string]any{
			"output_tokens": t.s.outputTokens,
		},
	}); err != nil {
		return err
	}
	return t.emitMessageStop()
}

func (t *Translator) handleFailed(event responses.ResponseStreamEventUnion) error {
	msg := "upstream response failed"
	if event.Response.Error.Message != "" {
		msg = event.Response.Error.Message
	}
	return t.emitError(gwerr.New(gwerr.KindAPI, msg, 500))
}

// emitError sends a downstream error event and marks the stream terminal.
// Per §4.D's error path, no message_stop follows an error event.
func (t *Translator) emitError(ge *gwerr.Error) error {
	t.sink.Log(obs.Event{Name: "stream.error", CorrelationID: t.correlationID, Err: ge})
	t.s.messageStopped = true
	return t.w.WriteEvent(EventError, ge.ToEnvelope())
}

func (t *Translator) emitMessageStop() error {
	if t.s.messageStopped {
		return nil
	}
	t.s.messageStopped = true
	return t.w.WriteEvent(EventMessageStop, map[string]any{"type": EventMessageStop})
}

// Finalize is called when the upstream stream ends without an error but also
// without a terminal event. It closes any open blocks and emits
// message_delta/message_stop with the given stop reason (end_turn when
// empty), so message_stop is still emitted exactly once per §4.D's safety
// invariant.
func (t *Translator) Finalize(reason string) error {
	if t.s.messageStopped {
		return nil
	}
	if err := t.closeAllOpenBlocks(); err != nil {
		return err
	}
	if reason == "" {
		reason = gwtypes.StopEndTurn
	}
	if err := t.w.WriteEvent(EventMessageDelta, map[string]any{
		"type": EventMessageDelta,
		"delta": map[string]any{
			"stop_reason": reason,
		},
		"usage": map[string]any{
			"output_tokens": t.s.outputTokens,
		},
	}); err != nil {
		return err
	}
	return t.emitMessageStop()
}

func envelopeFromResponse(resp *responses.Response) *gwtypes.ResponseEnvelope {
	env := &gwtypes.ResponseEnvelope{
		ID:     resp.ID,
		Status: string(resp.Status),
	}
	for _, item := range resp.Output {
		out := gwtypes.OutputItem{Type: item.Type}
		switch item.Type {
		case "message":
			out.Role = "assistant"
			for _, part := range item.Content {
				if part.Type == "output_text" {
					out.Content = append(out.Content, gwtypes.ResponsesContent{Type: "output_text", Text: part.Text})
				}
			}
		case "function_call":
			out.CallID = item.CallID
			out.Name = item.Name
			out.Arguments = item.Arguments
		}
		env.Output = append(env.Output, out)
	}
	if resp.IncompleteDetails.Reason != "" {
		env.IncompleteDetails = &gwtypes.IncompleteDetails{Reason: string(resp.IncompleteDetails.Reason)}
	}
	if resp.Usage.TotalTokens > 0 {
		env.Usage = &gwtypes.UpstreamUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		}
	}
	return env
}
