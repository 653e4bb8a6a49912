// Package httpapi wires the translation core (reqmap, respmap, streamxlate,
// tokencount) to the HTTP surface described in §6.1: the framework glue the
// core itself has no dependency on.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/stellarlinkco/aogateway/internal/config"
	"github.com/stellarlinkco/aogateway/internal/gwerr"
	"github.com/stellarlinkco/aogateway/internal/gwtypes"
	"github.com/stellarlinkco/aogateway/internal/obs"
	"github.com/stellarlinkco/aogateway/internal/reqmap"
	"github.com/stellarlinkco/aogateway/internal/resolver"
	"github.com/stellarlinkco/aogateway/internal/respmap"
	"github.com/stellarlinkco/aogateway/internal/streamxlate"
	"github.com/stellarlinkco/aogateway/internal/tokencount"
)

// Server holds the gateway's shared collaborators: resolved
// configuration and the observability sink. One Server is built at startup
// and shared across every request; it carries no per-request mutable state.
type Server struct {
	cfg  *config.Config
	sink obs.Sink
}

// NewServer builds a Server. A nil sink defaults to obs.NoopSink.
func NewServer(cfg *config.Config, sink obs.Sink) *Server {
	if sink == nil {
		sink = obs.NoopSink{}
	}
	return &Server{cfg: cfg, sink: sink}
}

// Handler returns the http.Handler exposing every route from §6.1.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", s.handleMessages)
	mux.HandleFunc("POST /v1/messages/stream", s.handleMessagesStream)
	mux.HandleFunc("POST /v1/messages/count_tokens", s.handleCountTokens)
	mux.HandleFunc("POST /v1/messages/token_count", s.handleCountTokens)
	return mux
}

func correlationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Correlation-ID")); id != "" {
		return id
	}
	return uuid.NewString()
}

func decodeRequest(r *http.Request) (*gwtypes.MessagesRequest, error) {
	var req gwtypes.MessagesRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return nil, gwerr.Invalid(fmt.Sprintf("invalid request body: %v", err))
	}
	return &req, nil
}

func (s *Server) writeError(w http.ResponseWriter, ge *gwerr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ge.HTTPStatus)
	_ = json.NewEncoder(w).Encode(ge.ToEnvelope())
}

// mapRequest runs the shared Resolve -> Build pipeline every route needs.
func (s *Server) mapRequest(req *gwtypes.MessagesRequest) (*gwtypes.ResponsesRequest, error) {
	upstreamModel := resolver.Resolve(req.Model, s.cfg.ModelMap, s.cfg.OpenAIDefaultModel)
	mapped, err := reqmap.Build(req, upstreamModel)
	if err != nil {
		return nil, err
	}
	return mapped, nil
}

func (s *Server) client(corrID string) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(s.cfg.OpenAIAPIKey),
		option.WithBaseURL(s.cfg.OpenAIBaseURL),
	}
	if corrID != "" {
		opts = append(opts, option.WithHeader("X-Correlation-ID", corrID))
	}
	return openai.NewClient(opts...)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.serveMessages(w, r, false)
}

func (s *Server) handleMessagesStream(w http.ResponseWriter, r *http.Request) {
	s.serveMessages(w, r, true)
}

// serveMessages implements /v1/messages and /v1/messages/stream. forceStream
// makes the stream route stream regardless of the body's own stream field,
// per §6.1.
func (s *Server) serveMessages(w http.ResponseWriter, r *http.Request, forceStream bool) {
	corrID := correlationID(r)

	if strings.TrimSpace(s.cfg.OpenAIAPIKey) == "" {
		s.writeError(w, gwerr.Authentication("missing OPENAI_API_KEY credential"))
		return
	}

	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, gwerr.AsGatewayError(err))
		return
	}

	mapped, err := s.mapRequest(req)
	if err != nil {
		s.writeError(w, gwerr.AsGatewayError(err))
		return
	}

	s.sink.Log(obs.Event{Name: "messages.request", CorrelationID: corrID, RequestPayload: req})

	stream := forceStream || req.Stream
	if stream {
		s.streamResponse(r.Context(), w, req.Model, mapped, corrID)
		return
	}
	s.jsonResponse(r.Context(), w, req.Model, mapped, corrID)
}

func (s *Server) jsonResponse(ctx context.Context, w http.ResponseWriter, inboundModel string, mapped *gwtypes.ResponsesRequest, corrID string) {
	client := s.client(corrID)
	params := toSDKParams(mapped)

	raw, err := client.Responses.New(ctx, params)
	if err != nil {
		ge := translateUpstreamError(err)
		s.sink.Log(obs.Event{Name: "messages.upstream_error", CorrelationID: corrID, Err: ge})
		s.writeError(w, ge)
		return
	}

	env := envelopeFromSDKResponse(raw)
	resp := respmap.Build(raw.ID, env, inboundModel)

	s.sink.Log(obs.Event{Name: "messages.completed", CorrelationID: corrID, ResponsePayload: resp, Usage: resp.Usage})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) streamResponse(ctx context.Context, w http.ResponseWriter, inboundModel string, mapped *gwtypes.ResponsesRequest, corrID string) {
	inputTokens, err := tokencount.Count(mapped, mapped.Model)
	if err != nil {
		s.writeError(w, gwerr.New(gwerr.KindAPI, fmt.Sprintf("count input tokens: %v", err), 500))
		return
	}

	client := s.client(corrID)
	params := toSDKParams(mapped)

	upstream := client.Responses.NewStreaming(ctx, params)
	defer upstream.Close()

	if err := upstream.Err(); err != nil {
		s.writeError(w, translateUpstreamError(err))
		return
	}

	fw, ok := newSSEFrameWriter(w)
	if !ok {
		s.writeError(w, gwerr.New(gwerr.KindAPI, "response writer does not support streaming", 500))
		return
	}

	messageID := "msg_" + uuid.NewString()
	translator := streamxlate.New(fw, messageID, inboundModel, inputTokens, s.sink, corrID)

	fw.prepare()

	for upstream.Next() {
		if err := translator.Consume(upstream.Current()); err != nil {
			s.sink.Log(obs.Event{Name: "messages.stream_write_failed", CorrelationID: corrID, Err: err})
			return
		}
		if translator.Terminated() {
			return
		}
	}

	if err := upstream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		// The SSE headers are already committed, so the failure surfaces as
		// a terminal error frame whether or not message_start went out.
		ge := translateUpstreamError(err)
		s.sink.Log(obs.Event{Name: "messages.upstream_error", CorrelationID: corrID, Err: ge})
		_ = translator.EmitError(ge)
		return
	}

	// Upstream ended without a terminal event; close out the lifecycle so
	// message_stop is still emitted exactly once.
	_ = translator.Finalize(gwtypes.StopEndTurn)
}

func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, gwerr.AsGatewayError(err))
		return
	}

	mapped, err := s.mapRequest(req)
	if err != nil {
		s.writeError(w, gwerr.AsGatewayError(err))
		return
	}

	count, err := tokencount.Count(mapped, mapped.Model)
	if err != nil {
		s.writeError(w, gwerr.New(gwerr.KindAPI, fmt.Sprintf("count tokens: %v", err), 500))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"input_tokens": count})
}

// envelopeFromSDKResponse adapts the real SDK response type into the
// gwtypes envelope respmap.Build consumes, mirroring envelopeFromResponse in
// streamxlate's translator (the streaming counterpart of this conversion).
func envelopeFromSDKResponse(resp *responses.Response) *gwtypes.ResponseEnvelope {
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

// translateUpstreamError converts an openai-go client error into the gateway
// envelope, extracting the upstream HTTP status when the SDK exposes one.
func translateUpstreamError(err error) *gwerr.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		body := json.RawMessage(nil)
		if len(apiErr.RawJSON()) > 0 {
			body = json.RawMessage(apiErr.RawJSON())
		}
		return gwerr.FromUpstreamStatus(apiErr.StatusCode, apiErr.Message, body)
	}
	return gwerr.New(gwerr.KindAPI, err.Error(), 500)
}
