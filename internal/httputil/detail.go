// Package httputil holds response helpers shared by the HTTP API clients.
package httputil

import (
	"encoding/json"
	"io"
	"strings"
)

// maxErrorBody caps how much of an error response is read
const maxErrorBody = 64 << 10

// ErrorDetail extracts a human readable message from an error response body.
// It prefers a "detail" field, then "error", then the raw body. Object
// values are reduced to their "message" field when present.
func ErrorDetail(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"detail", "error"} {
			raw, ok := fields[key]
			if !ok || string(raw) == "null" {
				continue
			}
			if msg := rawMessage(raw); msg != "" {
				return msg
			}
		}
	}
	return strings.TrimSpace(string(body))
}

func rawMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// ReadErrorBody reads a bounded error body and returns its detail message
func ReadErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return ErrorDetail(body)
}
