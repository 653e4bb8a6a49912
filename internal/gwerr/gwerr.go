// Package gwerr builds the Anthropic-style error envelope described in §7
// of the gateway spec and maps upstream HTTP statuses to error kinds.
package gwerr

import "encoding/json"

// Error kinds, matching the kind strings clients match on.
const (
	KindInvalidRequest = "invalid_request_error"
	KindAuthentication = "authentication_error"
	KindPermission     = "permission_error"
	KindNotFound       = "not_found_error"
	KindRateLimit      = "rate_limit_error"
	KindAPI            = "api_error"
)

// Error is a gateway-level error: it carries both the client-facing envelope
// fields and the HTTP status the handler should respond with.
type Error struct {
	Kind       string
	Message    string
	HTTPStatus int
	OpenAI     json.RawMessage
}

func (e *Error) Error() string {
	return e.Message
}

// New builds a gateway error for a kind with no upstream body attached.
func New(kind, message string, httpStatus int) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus}
}

// Invalid is the local-validation-failure shorthand used throughout the
// Request Mapper and HTTP handlers.
func Invalid(message string) *Error {
	return New(KindInvalidRequest, message, 400)
}

// Authentication is the shorthand for a missing/rejected credential.
func Authentication(message string) *Error {
	return New(KindAuthentication, message, 401)
}

// FromUpstreamStatus maps an upstream HTTP status to a gateway error kind,
// per §7's table. Non-matching 4xx/5xx and transport failures fall back to
// api_error, mirroring the upstream status (or 500 when there is none).
func FromUpstreamStatus(status int, message string, body json.RawMessage) *Error {
	kind := KindAPI
	switch status {
	case 401:
		kind = KindAuthentication
	case 403:
		kind = KindPermission
	case 404:
		kind = KindNotFound
	case 429:
		kind = KindRateLimit
	}
	httpStatus := status
	if httpStatus == 0 {
		httpStatus = 500
	}
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus, OpenAI: body}
}

// Envelope is the wire shape of the error body: {"type":"error","error":{...}}.
type Envelope struct {
	Type  string       `json:"type"`
	Error EnvelopeBody `json:"error"`
}

type EnvelopeBody struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	OpenAI  json.RawMessage `json:"openai,omitempty"`
}

// ToEnvelope renders the error as the wire envelope described in §7.
func (e *Error) ToEnvelope() Envelope {
	return Envelope{
		Type: "error",
		Error: EnvelopeBody{
			Type:    e.Kind,
			Message: e.Message,
			OpenAI:  e.OpenAI,
		},
	}
}

// AsGatewayError unwraps err into a *Error, converting anything else into a
// generic api_error — the handler-boundary conversion policy from §7's
// propagation policy.
func AsGatewayError(err error) *Error {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*Error); ok {
		return ge
	}
	return New(KindAPI, err.Error(), 500)
}
