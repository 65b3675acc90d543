package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrContractViolation = errors.New("model output violated the response contract")

// ContractError is returned when every attempt produced output that could not
// be parsed or did not satisfy the schema.
type ContractError struct {
	Attempts int
	Cause    error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("response contract not met after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *ContractError) Unwrap() error {
	return e.Cause
}

func (e *ContractError) Is(target error) bool {
	return target == ErrContractViolation
}

// StructuredCompleter asks a model for a JSON document that conforms to a
// JSON Schema and returns the validated document.
type StructuredCompleter interface {
	Complete(ctx context.Context, prompt string, schema string) (json.RawMessage, error)
}

type SchemaCompleter struct {
	provider    LLMProvider
	maxAttempts int
	options     []Option
}

const defaultContractAttempts = 2

func NewStructuredCompleter(provider LLMProvider, maxAttempts int, opts ...Option) *SchemaCompleter {
	if maxAttempts <= 0 {
		maxAttempts = defaultContractAttempts
	}
	base := []Option{WithJSONMode(), WithTemperature(0.2)}
	return &SchemaCompleter{
		provider:    provider,
		maxAttempts: maxAttempts,
		options:     append(base, opts...),
	}
}

func (c *SchemaCompleter) Complete(ctx context.Context, prompt string, schema string) (json.RawMessage, error) {
	var lastErr error
	currentPrompt := prompt
	opts := slices.Concat(c.options, []Option{WithJSONSchema(schema)})

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := c.provider.Generate(ctx, currentPrompt, opts...)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = fmt.Errorf("generation failed: %w", err)
			var statusErr *StatusError
			if errors.As(err, &statusErr) && !statusErr.Retryable() {
				return nil, &ContractError{Attempts: attempt, Cause: lastErr}
			}
			continue
		}

		doc := CleanJSONBlock(raw)
		if !json.Valid([]byte(doc)) {
			lastErr = fmt.Errorf("response is not valid JSON")
		} else if err := ValidateJSONString(schema, doc); err != nil {
			lastErr = err
		} else {
			return json.RawMessage(doc), nil
		}

		currentPrompt = restateContract(prompt, schema, lastErr)
	}

	return nil, &ContractError{Attempts: c.maxAttempts, Cause: lastErr}
}

func restateContract(prompt, schema string, cause error) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nYour previous answer was rejected: ")
	sb.WriteString(strings.TrimSpace(cause.Error()))
	sb.WriteString("\nRespond with a single JSON object only, no prose and no code fences, matching this JSON Schema exactly:\n")
	sb.WriteString(schema)
	return sb.String()
}
