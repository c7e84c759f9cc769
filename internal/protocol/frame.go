// Package protocol implements the gateway wire codec: three JSON frame
// variants (request, response, event) discriminated by a "type" tag.
// Decoding is strict: unknown top-level keys, empty required strings, and
// malformed shapes are rejected so the session handler can answer with a
// protocol-level error instead of guessing.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frame type tags as they appear on the wire.
const (
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"
)

// ValidationError reports why an incoming frame was rejected by the codec.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("protocol: %s", e.Reason)
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Frame is the closed union of the three wire variants.
type Frame interface {
	frameType() string
}

// Request is a client-initiated method call.
type Request struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

func (Request) frameType() string { return TypeRequest }

// ErrorShape is the structured error carried by a failed response.
type ErrorShape struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	Retryable    *bool  `json:"retryable,omitempty"`
	RetryAfterMs *int64 `json:"retryAfterMs,omitempty"`
}

// Response correlates to a request by id. Exactly one of Payload or Error
// is meaningful depending on OK.
type Response struct {
	Type    string      `json:"type"`
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Payload any         `json:"payload,omitempty"`
	Error   *ErrorShape `json:"error,omitempty"`
}

func (Response) frameType() string { return TypeResponse }

// Event is a server-initiated notification, not correlated to a request id
// at the frame level.
type Event struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
	Seq     *int64 `json:"seq,omitempty"`
}

func (Event) frameType() string { return TypeEvent }

// typeProbe extracts only the discriminator before the strict per-variant
// decode runs.
type typeProbe struct {
	Type string `json:"type"`
}

// Parse decodes a single wire message into its concrete frame variant.
// The input must be a JSON object; every variant is decoded with unknown
// fields disallowed and then validated.
func Parse(data []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, invalid("frame must be a JSON object")
	}

	var probe typeProbe
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, invalid("frame is not valid JSON: %v", err)
	}

	switch probe.Type {
	case TypeRequest:
		var req Request
		if err := strictUnmarshal(trimmed, &req); err != nil {
			return nil, err
		}
		if err := req.validate(); err != nil {
			return nil, err
		}
		return req, nil

	case TypeResponse:
		var res Response
		if err := strictUnmarshal(trimmed, &res); err != nil {
			return nil, err
		}
		if err := res.validate(); err != nil {
			return nil, err
		}
		return res, nil

	case TypeEvent:
		var ev Event
		if err := strictUnmarshal(trimmed, &ev); err != nil {
			return nil, err
		}
		if err := ev.validate(); err != nil {
			return nil, err
		}
		return ev, nil

	default:
		return nil, invalid("unknown frame type %q", probe.Type)
	}
}

// Marshal serializes a frame back to its wire form.
func Marshal(frame Frame) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s frame: %w", frame.frameType(), err)
	}
	return data, nil
}

// strictUnmarshal decodes with unknown fields disallowed.
func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid("frame shape rejected: %v", err)
	}
	return nil
}

func (r Request) validate() error {
	if r.ID == "" {
		return invalid("request id must not be empty")
	}
	if r.Method == "" {
		return invalid("request method must not be empty")
	}
	return nil
}

// normalizedParams returns the request params, substituting an empty map
// when the client omitted the field.
func (r Request) normalizedParams() map[string]any {
	if r.Params == nil {
		return map[string]any{}
	}
	return r.Params
}

// ParamsOrEmpty returns the request params with a non-nil default.
func (r Request) ParamsOrEmpty() map[string]any {
	return r.normalizedParams()
}

func (r Response) validate() error {
	if r.ID == "" {
		return invalid("response id must not be empty")
	}
	if r.Error != nil {
		if r.Error.Code == "" {
			return invalid("response error code must not be empty")
		}
		if r.Error.Message == "" {
			return invalid("response error message must not be empty")
		}
		if r.Error.RetryAfterMs != nil && *r.Error.RetryAfterMs < 0 {
			return invalid("response retryAfterMs must not be negative")
		}
	}
	return nil
}

func (e Event) validate() error {
	if e.Event == "" {
		return invalid("event name must not be empty")
	}
	if e.Seq != nil && *e.Seq < 0 {
		return invalid("event seq must not be negative")
	}
	return nil
}

// NewRequest builds a request frame with the tag filled in.
func NewRequest(id, method string, params map[string]any) Request {
	if params == nil {
		params = map[string]any{}
	}
	return Request{Type: TypeRequest, ID: id, Method: method, Params: params}
}

// OKResponse builds a successful response frame for the given request id.
func OKResponse(id string, payload any) Response {
	return Response{Type: TypeResponse, ID: id, OK: true, Payload: payload}
}

// ErrResponse builds a failed response frame for the given request id.
func ErrResponse(id string, shape ErrorShape) Response {
	return Response{Type: TypeResponse, ID: id, OK: false, Error: &shape}
}

// NewEvent builds an event frame.
func NewEvent(name string, payload any) Event {
	return Event{Type: TypeEvent, Event: name, Payload: payload}
}
