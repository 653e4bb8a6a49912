// Package respmap implements the Response Mapper (component C): translating
// a terminal upstream response envelope into a Messages-style response.
package respmap

import (
	"encoding/json"

	"github.com/stellarlinkco/aogateway/internal/gwtypes"
)

// Build assembles a MessagesResponse from env, echoing inboundModel (not the
// resolved upstream model) per §4.C / P3.
func Build(id string, env *gwtypes.ResponseEnvelope, inboundModel string) *gwtypes.MessagesResponse {
	content := assembleContent(env.Output)

	resp := &gwtypes.MessagesResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Model:      inboundModel,
		Content:    content,
		StopReason: DeriveStopReason(env),
	}
	if env.Usage != nil {
		resp.Usage = gwtypes.Usage{
			InputTokens:  env.Usage.InputTokens,
			OutputTokens: env.Usage.OutputTokens,
		}
	}
	return resp
}

// assembleContent walks output in order, turning message/output_text parts
// into text blocks and function_call items into tool_use blocks. Other item
// types are ignored, per §4.C.
func assembleContent(output []gwtypes.OutputItem) []gwtypes.ContentBlock {
	var blocks []gwtypes.ContentBlock
	for _, item := range output {
		switch item.Type {
		case "message":
			if item.Role != "" && item.Role != "assistant" {
				continue
			}
			for _, part := range item.Content {
				if part.Type == "output_text" {
					blocks = append(blocks, gwtypes.ContentBlock{Type: gwtypes.BlockText, Text: part.Text})
				}
			}
		case "function_call":
			input := json.RawMessage("{}")
			rawArgs := ""
			if item.Arguments != "" {
				var v any
				if err := json.Unmarshal([]byte(item.Arguments), &v); err == nil {
					input = json.RawMessage(item.Arguments)
				} else {
					rawArgs = item.Arguments
				}
			}
			blocks = append(blocks, gwtypes.ContentBlock{
				Type:         gwtypes.BlockToolUse,
				ID:           item.CallID,
				Name:         item.Name,
				Input:        input,
				RawArguments: rawArgs,
			})
		}
	}
	return blocks
}

// DeriveStopReason applies the first matching rule from §4.C. It is also
// used by the Stream Translator at response.completed to derive the final
// stop_reason from the assembled output.
func DeriveStopReason(env *gwtypes.ResponseEnvelope) string {
	for _, item := range env.Output {
		if item.Type == "function_call" {
			return gwtypes.StopToolUse
		}
	}
	if env.IncompleteDetails != nil {
		switch env.IncompleteDetails.Reason {
		case "max_output_tokens":
			return gwtypes.StopMaxTokens
		case "content_filter":
			return gwtypes.StopRefusal
		}
		if env.Status == "incomplete" {
			return gwtypes.StopPauseTurn
		}
	}
	if env.Status == "incomplete" {
		return gwtypes.StopPauseTurn
	}
	return gwtypes.StopEndTurn
}
