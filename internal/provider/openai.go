package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/seclab-demos/memjack/internal/reliability"
)

const (
	defaultModel       = "gpt-4o-mini"
	maxAttempts        = 3
	retryBackoffBase   = 500 * time.Millisecond
	retryBackoffCeil   = 4 * time.Second
	defaultTemperature = 0.7
)

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: model,
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	var resp openai.ChatCompletionResponse
	err := p.withRetries(ctx, func() error {
		var err error
		resp, err = p.client.CreateChatCompletion(ctx, p.chatRequest(req))
		return err
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("openai generate: empty choices")
	}
	return Response{
		Output:    resp.Choices[0].Message.Content,
		RequestID: resp.ID,
	}, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request, onEvent EventHandler) (Response, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.chatRequest(req))
	if err != nil {
		return Response{}, fmt.Errorf("openai stream: %w", err)
	}
	defer stream.Close()

	var out strings.Builder
	var requestID string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Response{}, fmt.Errorf("openai stream recv: %w", err)
		}
		if requestID == "" {
			requestID = chunk.ID
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onEvent != nil {
			if err := onEvent(StreamEvent{Delta: delta, Type: "delta"}); err != nil {
				return Response{}, err
			}
		}
	}

	if onEvent != nil {
		if err := onEvent(StreamEvent{Done: true, Type: "done"}); err != nil {
			return Response{}, err
		}
	}
	return Response{Output: out.String(), RequestID: requestID}, nil
}

func (p *OpenAIProvider) FunctionCall(ctx context.Context, req Request, tools []Tool) (FunctionCallResponse, error) {
	chatReq := p.chatRequest(req)
	for _, tool := range tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	var resp openai.ChatCompletionResponse
	err := p.withRetries(ctx, func() error {
		var err error
		resp, err = p.client.CreateChatCompletion(ctx, chatReq)
		return err
	})
	if err != nil {
		return FunctionCallResponse{}, fmt.Errorf("openai function call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return FunctionCallResponse{}, errors.New("openai function call: empty choices")
	}

	msg := resp.Choices[0].Message
	out := FunctionCallResponse{
		MessageContent: msg.Content,
		RequestID:      resp.ID,
	}
	for _, tc := range msg.ToolCalls {
		if tc.Type != openai.ToolTypeFunction {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (p *OpenAIProvider) chatRequest(req Request) openai.ChatCompletionRequest {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}

	var messages []openai.ChatCompletionMessage
	if strings.TrimSpace(req.Instructions) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		})
	}
	for _, turn := range req.Context {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		switch role {
		case openai.ChatMessageRoleAssistant, openai.ChatMessageRoleSystem:
		default:
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Input,
	})

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: defaultTemperature,
	}
}

func (p *OpenAIProvider) withRetries(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt, retryBackoffBase, retryBackoffCeil)):
			}
		}

		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return reliability.IsRetryableHTTPStatus(apiErr.HTTPStatusCode)
	}
	// Transport-level failures without a status are worth one more try.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
