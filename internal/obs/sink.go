// Package obs defines the narrow logging collaborator the translation core
// talks to (§6.5). The core never logs directly; it calls Sink.Log and
// trusts the sink with redaction.
package obs

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog"
)

// Event is the payload passed to Sink.Log. Every field but Name is optional;
// the core fills in only what it has at that point in the request lifecycle.
type Event struct {
	Name            string
	CorrelationID   string
	RequestPayload  any
	ResponsePayload any
	Usage           any
	Err             error
}

// Sink is the core's only logging dependency.
type Sink interface {
	Log(Event)
}

// NoopSink discards every event. The core performs no logging when this is
// the configured sink.
type NoopSink struct{}

func (NoopSink) Log(Event) {}

// ZerologSink is the default process-wide sink, built on zerolog the way the
// teacher's channels log plain text — except here the sink interface already
// forces structured fields, so a structured logger is the natural fit
// instead of log.Printf.
type ZerologSink struct {
	logger zerolog.Logger
}

// NewZerologSink builds a sink that writes structured JSON lines to stderr.
func NewZerologSink() *ZerologSink {
	return &ZerologSink{logger: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

func (s *ZerologSink) Log(e Event) {
	evt := s.logger.Info()
	if e.Err != nil {
		evt = s.logger.Error().Err(e.Err)
	}
	evt = evt.Str("event", e.Name)
	if e.CorrelationID != "" {
		evt = evt.Str("correlation_id", e.CorrelationID)
	}
	if e.RequestPayload != nil {
		evt = evt.Interface("request", redactInterface(e.RequestPayload))
	}
	if e.ResponsePayload != nil {
		evt = evt.Interface("response", redactInterface(e.ResponsePayload))
	}
	if e.Usage != nil {
		evt = evt.Interface("usage", e.Usage)
	}
	evt.Msg(e.Name)
}

// redactInterface is a best-effort placeholder: the sink owns redaction
// policy per §6.5, the core passes structures unredacted. This default sink
// applies none; a deployment with stricter requirements supplies its own Sink.
func redactInterface(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	return json.RawMessage(b)
}
