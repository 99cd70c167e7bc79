package provider

import (
	"context"
	"errors"
	"fmt"
)

// FallbackProvider attempts a primary provider first and falls back on
// error. Context cancellation is never treated as a reason to fall back.
type FallbackProvider struct {
	primary  Provider
	fallback Provider
}

func NewFallbackProvider(primary, fallback Provider) *FallbackProvider {
	return &FallbackProvider{primary: primary, fallback: fallback}
}

func (p *FallbackProvider) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := p.primary.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	if !shouldFallback(err) || p.fallback == nil {
		return Response{}, err
	}
	fbResp, fbErr := p.fallback.Generate(ctx, req)
	if fbErr != nil {
		return Response{}, fmt.Errorf("primary provider error: %w; fallback provider error: %v", err, fbErr)
	}
	return fbResp, nil
}

func (p *FallbackProvider) Stream(ctx context.Context, req Request, onEvent EventHandler) (Response, error) {
	var sawDelta bool
	resp, err := p.primary.Stream(ctx, req, func(event StreamEvent) error {
		if event.Delta != "" {
			sawDelta = true
		}
		if onEvent == nil {
			return nil
		}
		return onEvent(event)
	})
	if err == nil {
		return resp, nil
	}
	// Once deltas reached the client a silent restart would duplicate output.
	if sawDelta || !shouldFallback(err) || p.fallback == nil {
		return Response{}, err
	}
	fbResp, fbErr := p.fallback.Stream(ctx, req, onEvent)
	if fbErr != nil {
		return Response{}, fmt.Errorf("primary provider error: %w; fallback provider error: %v", err, fbErr)
	}
	return fbResp, nil
}

func (p *FallbackProvider) FunctionCall(ctx context.Context, req Request, tools []Tool) (FunctionCallResponse, error) {
	resp, err := p.primary.FunctionCall(ctx, req, tools)
	if err == nil {
		return resp, nil
	}
	if !shouldFallback(err) || p.fallback == nil {
		return FunctionCallResponse{}, err
	}
	fbResp, fbErr := p.fallback.FunctionCall(ctx, req, tools)
	if fbErr != nil {
		return FunctionCallResponse{}, fmt.Errorf("primary provider error: %w; fallback provider error: %v", err, fbErr)
	}
	return fbResp, nil
}

func shouldFallback(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
