package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"homehub-be/pkg/llm"
)

const (
	defaultTimeout = 180 * time.Second
	// Synthesis prompts carry several capped page excerpts, well past the
	// 2048-token default of most local models.
	defaultContextWindow = 16384
	defaultKeepAlive     = "10m"
)

type OllamaProvider struct {
	BaseURL       string
	ModelName     string
	ContextWindow int
	KeepAlive     string
	Client        *http.Client
}

var _ llm.LLMProvider = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName string) *OllamaProvider {
	return &OllamaProvider{
		BaseURL:       baseURL,
		ModelName:     modelName,
		ContextWindow: defaultContextWindow,
		KeepAlive:     defaultKeepAlive,
		Client:        &http.Client{Timeout: defaultTimeout},
	}
}

type chatRequest struct {
	Model     string          `json:"model"`
	Messages  []llm.Message   `json:"messages"`
	Stream    bool            `json:"stream"`
	Format    json.RawMessage `json:"format,omitempty"`
	KeepAlive string          `json:"keep_alive,omitempty"`
	Options   modelOptions    `json:"options"`
}

type modelOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message llm.Message `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// format is the JSON schema when one is given and parses, otherwise plain
// JSON mode. Older servers only understand "json".
func format(opts *llm.Options) json.RawMessage {
	if !opts.JSONMode {
		return nil
	}
	if opts.JSONSchema != "" && json.Valid([]byte(opts.JSONSchema)) {
		return json.RawMessage(opts.JSONSchema)
	}
	return json.RawMessage(`"json"`)
}

func (o *OllamaProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := &llm.Options{Temperature: 0.7, Model: o.ModelName}
	for _, opt := range opts {
		opt(options)
	}

	messages := make([]llm.Message, len(history))
	for i, msg := range history {
		messages[i] = msg
		if msg.Role == "model" {
			messages[i].Role = "assistant"
		}
	}

	payload, err := json.Marshal(chatRequest{
		Model:     options.Model,
		Messages:  messages,
		Format:    format(options),
		KeepAlive: o.KeepAlive,
		Options: modelOptions{
			Temperature: options.Temperature,
			NumPredict:  options.MaxTokens,
			NumCtx:      o.ContextWindow,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out chatResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		return "", &llm.StatusError{Provider: "ollama", Code: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("unmarshal response: %w", decodeErr)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}

	return out.Message.Content, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return o.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}
