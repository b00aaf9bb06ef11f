package httputil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail string", `{"detail":"Session not found"}`, "Session not found"},
		{"error string", `{"error":"bad key"}`, "bad key"},
		{"detail wins", `{"detail":"first","error":"second"}`, "first"},
		{"error object", `{"error":{"message":"quota exceeded","code":"429"}}`, "quota exceeded"},
		{"detail list", `{"detail":[{"loc":["body"]}]}`, `[{"loc":["body"]}]`},
		{"null detail", `{"detail":null,"error":"fallback"}`, "fallback"},
		{"plain text", "  Internal Server Error\n", "Internal Server Error"},
		{"other json", `{"status":"bad"}`, `{"status":"bad"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorDetail([]byte(tt.body)))
		})
	}
}

func TestReadErrorBody(t *testing.T) {
	assert.Equal(t, "nope", ReadErrorBody(strings.NewReader(`{"detail":"nope"}`)))
}
