// Package tokencount implements the Token Counter (component E): computing
// a local input-token count for a mapped ResponsesRequest without any
// upstream call, using the reference BPE tokenizer for the resolved model.
package tokencount

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/stellarlinkco/aogateway/internal/gwtypes"
)

// constants is the small per-model-family overhead table described in §4.E.
// Every family currently known to the gateway shares the same constants; the
// table exists so a future model family with different overheads has a home
// without touching the counting algorithm itself.
type constants struct {
	messageOverhead        int
	functionCallOverhead   int
	functionOutputOverhead int
	instructionsOverhead   int
	toolOverhead           int
	replyPrimer            int
	encoding               string
}

var defaultConstants = constants{
	messageOverhead:        3,
	functionCallOverhead:   3,
	functionOutputOverhead: 3,
	instructionsOverhead:   3,
	toolOverhead:           7,
	replyPrimer:            3,
	encoding:               "cl100k_base",
}

// constantsForModel selects the overhead table for a resolved upstream model
// name. Every known family currently maps to defaultConstants; unknown
// models fall back to it too, per §4.E ("unknown models use the
// default-model constants and a default tokenizer").
func constantsForModel(model string) constants {
	return defaultConstants
}

var (
	encoderCache   = map[string]*tiktoken.Tiktoken{}
	encoderCacheMu sync.Mutex
)

func encoderFor(name string) (*tiktoken.Tiktoken, error) {
	encoderCacheMu.Lock()
	defer encoderCacheMu.Unlock()
	if enc, ok := encoderCache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	encoderCache[name] = enc
	return enc, nil
}

// Count computes the input_tokens count for req, resolved for model, per the
// §4.E algorithm. It makes no upstream API call. The first use of an encoding
// in a process loads its BPE ranks through tiktoken-go's default loader,
// which downloads the ranks file over the network unless it is already in
// the loader's local cache; later calls reuse the cached encoder.
func Count(req *gwtypes.ResponsesRequest, model string) (int, error) {
	c := constantsForModel(model)
	enc, err := encoderFor(c.encoding)
	if err != nil {
		return 0, err
	}

	encLen := func(s string) int {
		if s == "" {
			return 0
		}
		return len(enc.Encode(s, nil, nil))
	}

	total := 0

	for _, item := range req.Input {
		switch item.Type {
		case "message":
			total += c.messageOverhead
			for _, part := range item.Content {
				total += encLen(part.Text)
			}
		case "function_call":
			total += encLen(item.Name) + encLen(item.Arguments) + c.functionCallOverhead
		case "function_call_output":
			total += encLen(item.CallID) + encLen(item.Output) + c.functionOutputOverhead
		}
	}

	if req.Instructions != "" {
		total += encLen(req.Instructions) + c.instructionsOverhead
	}

	for _, tool := range req.Tools {
		params := canonicalJSON(tool.Function.Parameters)
		total += encLen(tool.Function.Name) + encLen(tool.Function.Description) + encLen(params) + c.toolOverhead
	}

	total += c.replyPrimer

	return total, nil
}

// canonicalJSON renders raw as a deterministic string for tokenization: an
// empty/absent schema counts as zero extra tokens beyond the tool overhead.
func canonicalJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return strings.TrimSpace(string(raw))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	return string(b)
}
