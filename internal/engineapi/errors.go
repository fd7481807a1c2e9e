package engineapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// EngineError is a structured rejection from the remote engine.
//
// Conflict errors (HTTP 409) are business-rule refusals - closing a line
// with outstanding reverse usage, a limit below current usage - and are
// surfaced to the operator verbatim, message and details included. The
// backend is the authoritative guard; client-side checks only pre-filter.
type EngineError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("engine %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("engine %d: %s", e.Status, e.Message)
}

// UserMessage renders the refusal for display: the backend's literal
// message, with details appended when the backend sent any, e.g.
// "cannot close: reverse usage outstanding (outstanding=5.25)".
func (e *EngineError) UserMessage() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, ", "))
}

// Conflict reports whether this is a business-rule refusal rather than a
// transport or server failure.
func (e *EngineError) Conflict() bool {
	return e.Status == http.StatusConflict
}

// decodeEngineError builds an EngineError from a non-2xx response body.
// Bodies that don't carry the structured shape still produce a usable
// error with the raw body as the message.
func decodeEngineError(status int, body []byte) *EngineError {
	var wire struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	}
	if err := json.Unmarshal(body, &wire); err != nil || wire.Message == "" {
		return &EngineError{Status: status, Message: string(body)}
	}
	return &EngineError{
		Status:  status,
		Code:    wire.Code,
		Message: wire.Message,
		Details: wire.Details,
	}
}
