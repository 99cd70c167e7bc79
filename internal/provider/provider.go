// Package provider abstracts the language-model backend behind a small
// completion interface. The agent core only ever sees this interface; the
// OpenAI-compatible client, the deterministic mock, and the fallback chain
// are interchangeable behind it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Turn is one prior conversation message passed back to the model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized completion request.
type Request struct {
	Input        string `json:"input"`
	Instructions string `json:"instructions,omitempty"`
	Model        string `json:"model,omitempty"`
	Context      []Turn `json:"context,omitempty"`
}

// Response is the final text completion.
type Response struct {
	Output    string `json:"output"`
	RequestID string `json:"request_id"`
}

// StreamEvent is one fragment of a streamed completion.
type StreamEvent struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
	Type  string `json:"type"`
}

// EventHandler receives streaming events. Returning an error stops the
// stream.
type EventHandler func(event StreamEvent) error

// Tool describes a function the model may call, with JSON-schema parameters.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one function invocation returned by the model.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionCallResponse carries the model's structured decision. ToolCalls is
// empty when the model answered with plain text instead.
type FunctionCallResponse struct {
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
	MessageContent string     `json:"message_content,omitempty"`
	RequestID      string     `json:"request_id"`
}

// Provider is the completion backend consumed by the agent core.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request, onEvent EventHandler) (Response, error)
	FunctionCall(ctx context.Context, req Request, tools []Tool) (FunctionCallResponse, error)
}

// Config controls provider construction.
type Config struct {
	Mode    string
	APIKey  string
	BaseURL string
	Model   string
}

// New builds a provider for the configured mode. "auto" prefers the OpenAI
// client when a key is present, with the mock as fallback so the demo stays
// usable offline.
func New(cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewFallbackProvider(NewOpenAIProvider(cfg), NewMockProvider()), nil
		}
		return NewMockProvider(), nil
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("api key is required for openai mode")
		}
		return NewOpenAIProvider(cfg), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported provider mode %q", cfg.Mode)
	}
}
