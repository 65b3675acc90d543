package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	opts      []Options
}

func (p *scriptedProvider) Chat(ctx context.Context, history []Message, options ...Option) (string, error) {
	return p.Generate(ctx, history[len(history)-1].Content, options...)
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, options ...Option) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o := Options{}
	for _, opt := range options {
		opt(&o)
	}
	p.opts = append(p.opts, o)

	i := len(p.prompts)
	p.prompts = append(p.prompts, prompt)

	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return "", errors.New("script exhausted")
}

const itemSchema = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {"type": "array", "minItems": 1, "items": {"type": "string"}}
  }
}`

func TestSchemaCompleter_Complete(t *testing.T) {
	tests := []struct {
		name         string
		responses    []string
		errs         []error
		wantErr      bool
		wantCalls    int
		wantAttempts int
		wantDocument string
	}{
		{
			name:         "valid first answer",
			responses:    []string{`{"items":["a"]}`},
			wantCalls:    1,
			wantDocument: `{"items":["a"]}`,
		},
		{
			name:         "fenced answer is cleaned",
			responses:    []string{"```json\n{\"items\":[\"a\",\"b\"]}\n```"},
			wantCalls:    1,
			wantDocument: `{"items":["a","b"]}`,
		},
		{
			name:         "schema violation then valid",
			responses:    []string{`{"items":[]}`, `{"items":["x"]}`},
			wantCalls:    2,
			wantDocument: `{"items":["x"]}`,
		},
		{
			name:      "never valid",
			responses:    []string{`not json`, `{"other":1}`},
			wantErr:      true,
			wantCalls:    2,
			wantAttempts: 2,
		},
		{
			name:         "provider errors exhaust attempts",
			errs:         []error{errors.New("boom"), errors.New("boom")},
			wantErr:      true,
			wantCalls:    2,
			wantAttempts: 2,
		},
		{
			name:         "unknown model is not retried",
			errs:         []error{&StatusError{Provider: "ollama", Code: 404, Message: "model not found"}},
			wantErr:      true,
			wantCalls:    1,
			wantAttempts: 1,
		},
		{
			name:         "rate limit is retried",
			errs:         []error{&StatusError{Provider: "huggingface", Code: 429, Message: "slow down"}},
			responses:    []string{"", `{"items":["a"]}`},
			wantCalls:    2,
			wantDocument: `{"items":["a"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{responses: tt.responses, errs: tt.errs}
			c := NewStructuredCompleter(p, 2)

			doc, err := c.Complete(context.Background(), "list items", itemSchema)

			assert.Len(t, p.prompts, tt.wantCalls)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrContractViolation))
				var ce *ContractError
				require.True(t, errors.As(err, &ce))
				assert.Equal(t, tt.wantAttempts, ce.Attempts)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.wantDocument, string(doc))
		})
	}
}

func TestSchemaCompleter_RetryRestatesContract(t *testing.T) {
	p := &scriptedProvider{responses: []string{`{"items":"nope"}`, `{"items":["ok"]}`}}
	c := NewStructuredCompleter(p, 3)

	_, err := c.Complete(context.Background(), "list items", itemSchema)
	require.NoError(t, err)

	require.Len(t, p.prompts, 2)
	assert.Equal(t, "list items", p.prompts[0])
	assert.True(t, strings.HasPrefix(p.prompts[1], "list items"))
	assert.Contains(t, p.prompts[1], "previous answer was rejected")
	assert.Contains(t, p.prompts[1], `"minItems": 1`)

	for _, o := range p.opts {
		assert.True(t, o.JSONMode)
		assert.Equal(t, itemSchema, o.JSONSchema)
	}
}

func TestSchemaCompleter_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &scriptedProvider{responses: []string{`{"items":["a"]}`}}
	_, err := NewStructuredCompleter(p, 2).Complete(ctx, "x", itemSchema)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrContractViolation))
	assert.Empty(t, p.prompts)
}

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", "Sure! Here it is: {\"a\":1} hope that helps", `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.in))
		})
	}
}

func TestValidateJSONString_FieldErrors(t *testing.T) {
	err := ValidateJSONString(itemSchema, `{"items":[1]}`)
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.NotEmpty(t, ve.Errors)
	assert.Equal(t, "items.0", ve.Errors[0].Field)
}
