package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"homehub-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHuggingFaceProvider_ResponseFormat(t *testing.T) {
	schema := `{"type":"object","properties":{"summary":{"type":"string"}}}`
	tests := []struct {
		name     string
		opts     []llm.Option
		wantType string
	}{
		{name: "plain text", wantType: ""},
		{name: "json mode", opts: []llm.Option{llm.WithJSONMode()}, wantType: "json_object"},
		{name: "schema", opts: []llm.Option{llm.WithJSONSchema(schema)}, wantType: "json_schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got chatRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer hf-key", r.Header.Get("Authorization"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"},"finish_reason":"stop"}]}`))
			}))
			defer srv.Close()

			out, err := NewHuggingFaceProvider("hf-key", srv.URL, "meta-llama/Llama-3.1-8B-Instruct").Generate(context.Background(), "hi", tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, "{}", out)

			if tt.wantType == "" {
				assert.Nil(t, got.ResponseFormat)
				return
			}
			require.NotNil(t, got.ResponseFormat)
			assert.Equal(t, tt.wantType, got.ResponseFormat.Type)
			if tt.wantType == "json_schema" {
				assert.JSONEq(t, schema, string(got.ResponseFormat.JSONSchema.Schema))
			}
		})
	}
}

func TestHuggingFaceProvider_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantErr    string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down"}}`, wantStatus: http.StatusTooManyRequests},
		{name: "truncated json", status: http.StatusOK, body: `{"choices":[{"message":{"content":"{\"a\":"},"finish_reason":"length"}]}`, wantErr: "truncated"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: "empty choices"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHuggingFaceProvider("", srv.URL, "m").Generate(context.Background(), "hi", llm.WithJSONMode())
			require.Error(t, err)
			if tt.wantStatus != 0 {
				var statusErr *llm.StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, tt.wantStatus, statusErr.Code)
				assert.Equal(t, "slow down", statusErr.Message)
				assert.True(t, statusErr.Retryable())
				return
			}
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
