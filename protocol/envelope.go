package protocol

import (
	"encoding/json"
	"fmt"
)

// Content is a single item in a result envelope.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"` // base64 for binary content
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Result is the boundary result envelope: a list of content items plus an
// error flag. Middleware that short-circuits a call (rate limit, timeout)
// returns a Result with IsError set rather than an error, so the chain
// treats the outcome as a completed call carrying an error-shaped payload.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`

	// Structured carries the full handler payload for resource and prompt
	// dispatches, where the protocol layer needs more than text content.
	Structured any `json:"-"`
}

// NewTextResult wraps a string in a single-item text envelope.
func NewTextResult(text string) *Result {
	return &Result{
		Content: []Content{{Type: "text", Text: text}},
	}
}

// NewErrorResult creates the standard error envelope for a failure message.
func NewErrorResult(msg string) *Result {
	return &Result{
		Content: []Content{{Type: "text", Text: "Error: " + msg}},
		IsError: true,
	}
}

// Normalize converts a handler return value into a result envelope.
// A *Result passes through unchanged, a string becomes a text item, and
// any other value is serialized as canonical JSON (stable key order).
func Normalize(v any) (*Result, error) {
	switch val := v.(type) {
	case *Result:
		return val, nil
	case string:
		return NewTextResult(val), nil
	case nil:
		return NewTextResult(""), nil
	default:
		text, err := CanonicalJSON(v)
		if err != nil {
			return nil, err
		}
		return NewTextResult(text), nil
	}
}

// CanonicalJSON serializes a value deterministically. Map keys are emitted
// in sorted order (encoding/json guarantees this) and struct fields in
// declaration order, so equal values always produce equal strings.
func CanonicalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serialize result: %w", err)
	}
	return string(data), nil
}
