package httpapi

import (
	"encoding/json"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/stellarlinkco/aogateway/internal/gwtypes"
)

// toSDKParams adapts a mapped ResponsesRequest (our own JSON-first type,
// easy to unit test and to run the Token Counter over) into the real
// openai-go request params, grounded on
// third_party/agentsdk-go/pkg/model/openai_responses.go's buildResponsesParams
// for the scalar fields (Model, MaxOutputTokens, Instructions, Tools). That
// file's own Input builder only ever emits a flattened string prompt; the
// structured multi-item input this gateway needs (messages interleaved with
// function_call / function_call_output items) isn't exercised anywhere in
// the retrieval pack, so the ResponseInputItemUnionParam construction below
// follows the SDK's general "OfXxx variant struct" convention (confirmed for
// ToolUnionParam/FunctionToolParam in the grounding file) rather than a
// directly retrieved call site.
func toSDKParams(req *gwtypes.ResponsesRequest) responses.ResponseNewParams {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(req.Model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: buildInputItemList(req.Input),
		},
	}

	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if req.MaxOutputTokens != nil {
		params.MaxOutputTokens = openai.Int(int64(*req.MaxOutputTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = buildToolParams(req.Tools)
	}
	if req.ToolChoice != nil {
		params.ToolChoice = buildToolChoice(req.ToolChoice)
	}

	return params
}

// buildToolChoice mirrors reqmap's two tool_choice shapes: a bare mode
// string ("auto"/"required"/"none") or a named-function object.
func buildToolChoice(choice any) responses.ResponseNewParamsToolChoiceUnion {
	switch v := choice.(type) {
	case string:
		return responses.ResponseNewParamsToolChoiceUnion{
			OfToolChoiceMode: openai.String(v),
		}
	case map[string]any:
		if fn, ok := v["function"].(map[string]string); ok {
			return responses.ResponseNewParamsToolChoiceUnion{
				OfFunctionTool: &responses.ToolChoiceFunctionParam{Name: fn["name"]},
			}
		}
	}
	return responses.ResponseNewParamsToolChoiceUnion{}
}

func buildInputItemList(items []gwtypes.InputItem) responses.ResponseInputParam {
	list := make(responses.ResponseInputParam, 0, len(items))
	for _, item := range items {
		switch item.Type {
		case "message":
			list = append(list, responses.ResponseInputItemUnionParam{
				OfMessage: &responses.EasyInputMessageParam{
					Role:    responses.EasyInputMessageRole(item.Role),
					Content: buildMessageContent(item.Content),
				},
			})
		case "function_call":
			list = append(list, responses.ResponseInputItemUnionParam{
				OfFunctionCall: &responses.ResponseFunctionToolCallParam{
					CallID:    item.CallID,
					Name:      item.Name,
					Arguments: item.Arguments,
				},
			})
		case "function_call_output":
			list = append(list, responses.ResponseInputItemUnionParam{
				OfFunctionCallOutput: &responses.ResponseInputItemFunctionCallOutputParam{
					CallID: item.CallID,
					Output: item.Output,
				},
			})
		}
	}
	return list
}

func buildMessageContent(parts []gwtypes.ResponsesContent) responses.EasyInputMessageContentUnionParam {
	if len(parts) == 1 {
		return responses.EasyInputMessageContentUnionParam{
			OfString: openai.String(parts[0].Text),
		}
	}
	items := make(responses.ResponseInputMessageContentListParam, 0, len(parts))
	for _, p := range parts {
		items = append(items, responses.ResponseInputContentUnionParam{
			OfInputText: &responses.ResponseInputTextParam{Text: p.Text},
		})
	}
	return responses.EasyInputMessageContentUnionParam{
		OfInputItemContentList: items,
	}
}

func buildToolParams(tools []gwtypes.ToolSpec) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		fn := &responses.FunctionToolParam{
			Name:       t.Function.Name,
			Parameters: toFunctionParameters(t.Function.Parameters),
		}
		if t.Function.Description != "" {
			fn.Description = openai.String(t.Function.Description)
		}
		out = append(out, responses.ToolUnionParam{OfFunction: fn})
	}
	return out
}

func toFunctionParameters(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return m
}
