package provider

import (
	"context"
	"fmt"
	"strings"
)

// MockProvider produces deterministic local replies when no real model
// backend is configured. It never asks for memory updates, so under the mock
// the only way facts enter the store is the detector bypass, which keeps the
// injection path easy to observe in isolation.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Generate(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}
	return Response{Output: buildMockReply(req), RequestID: "mock"}, nil
}

func (p *MockProvider) Stream(ctx context.Context, req Request, onEvent EventHandler) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onEvent != nil {
		if text != "" {
			if err := onEvent(StreamEvent{Delta: text, Type: "delta"}); err != nil {
				return Response{}, err
			}
		}
		if err := onEvent(StreamEvent{Done: true, Type: "done"}); err != nil {
			return Response{}, err
		}
	}
	return Response{Output: text, RequestID: "mock"}, nil
}

func (p *MockProvider) FunctionCall(ctx context.Context, req Request, tools []Tool) (FunctionCallResponse, error) {
	select {
	case <-ctx.Done():
		return FunctionCallResponse{}, ctx.Err()
	default:
	}
	return FunctionCallResponse{MessageContent: "no memory update needed", RequestID: "mock"}, nil
}

func buildMockReply(req Request) string {
	base := strings.TrimSpace(req.Input)
	if base == "" {
		return "I am listening."
	}

	if !strings.Contains(req.Instructions, "I remember") {
		return fmt.Sprintf("I heard you: %s", base)
	}

	// Instructions carry a memory digest; surface its last line so callers
	// can see retrieval feeding back into the reply.
	lines := strings.Split(strings.TrimSpace(req.Instructions), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return fmt.Sprintf("I heard you: %s", base)
	}
	return fmt.Sprintf("I heard you: %s\nI also remember: %s", base, strings.TrimPrefix(last, "- "))
}
