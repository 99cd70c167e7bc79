// Package agent composes the command detector, memory service, and
// completion provider into the conversational orchestrator.
//
// Two distinct write paths feed the memory store and both are intentional:
// an unreviewed direct write when the detector matches an explicit
// remember/note directive, and a model-reviewed write when the provider's
// function-call arbitration asks for one. The direct path bypasses every
// model-side check; that bypass is the subject under study here and must not
// be "fixed".
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/seclab-demos/memjack/internal/command"
	"github.com/seclab-demos/memjack/internal/keywords"
	"github.com/seclab-demos/memjack/internal/memory"
	"github.com/seclab-demos/memjack/internal/observability"
	"github.com/seclab-demos/memjack/internal/provider"
)

// fallbackDescription labels direct writes whose content yields no keywords.
const fallbackDescription = "general note"

const defaultInstructions = "You are a helpful assistant with a long-term memory. " +
	"Answer concisely and make use of anything you remember about the user."

// Config controls agent construction.
type Config struct {
	Model        string
	Instructions string
}

// Agent orchestrates memory-aware generation.
type Agent struct {
	provider     provider.Provider
	memories     *memory.Service
	metrics      *observability.Metrics
	model        string
	instructions string
}

func New(p provider.Provider, memories *memory.Service, metrics *observability.Metrics, cfg Config) *Agent {
	instructions := strings.TrimSpace(cfg.Instructions)
	if instructions == "" {
		instructions = defaultInstructions
	}
	return &Agent{
		provider:     p,
		memories:     memories,
		metrics:      metrics,
		model:        cfg.Model,
		instructions: instructions,
	}
}

// Reply is the plain-data result of a generation turn.
type Reply struct {
	Output string `json:"output"`

	// Memories lists the records injected into a retrieval-augmented turn.
	Memories []memory.Record `json:"memories,omitempty"`

	// MemoryUpdate reports what the turn wrote to the store, when anything
	// at all was decided before the reply was returned. Streamed turns leave
	// it nil until UpdateMemoryAfterStream runs.
	MemoryUpdate *UpdateReport `json:"memory_update,omitempty"`
}

// GenerateResponse handles one turn. An explicit remember/note directive is
// stored directly and acknowledged without any provider call; otherwise the
// provider generates a reply and the exchange is offered to the memory
// arbitration afterwards.
func (a *Agent) GenerateResponse(ctx context.Context, input string, convo []provider.Turn) (Reply, error) {
	if cmd, ok := command.Detect(input); ok {
		return a.handleCommand(ctx, cmd)
	}

	resp, err := a.provider.Generate(ctx, provider.Request{
		Input:        input,
		Instructions: a.instructions,
		Model:        a.model,
		Context:      convo,
	})
	if err != nil {
		a.metrics.RecordProviderError("generate")
		log.Printf("provider generate failed: %v", err)
		return Reply{}, fmt.Errorf("generate: %w", err)
	}

	report := a.ConsiderUpdatingMemory(ctx, input, resp.Output)
	return Reply{Output: resp.Output, MemoryUpdate: &report}, nil
}

// GenerateResponseWithMemory is the retrieval-augmented variant: keywords
// from the input drive per-keyword store searches, and the deduplicated
// matches are injected into the instructions before generation.
func (a *Agent) GenerateResponseWithMemory(ctx context.Context, input string, convo []provider.Turn) (Reply, error) {
	if cmd, ok := command.Detect(input); ok {
		return a.handleCommand(ctx, cmd)
	}

	used, err := a.retrieve(ctx, input)
	if err != nil {
		return Reply{}, err
	}
	a.metrics.ObserveRetrievedMemories(len(used))

	resp, err := a.provider.Generate(ctx, provider.Request{
		Input:        input,
		Instructions: a.withMemoryDigest(used),
		Model:        a.model,
		Context:      convo,
	})
	if err != nil {
		a.metrics.RecordProviderError("generate")
		log.Printf("provider generate failed: %v", err)
		return Reply{}, fmt.Errorf("generate with memory: %w", err)
	}

	report := a.ConsiderUpdatingMemory(ctx, input, resp.Output)
	return Reply{Output: resp.Output, Memories: used, MemoryUpdate: &report}, nil
}

// StreamResponse streams one turn's deltas through onDelta. The memory
// arbitration is deferred: callers run UpdateMemoryAfterStream with the
// accumulated text once the stream has ended, unless the directive bypass
// already wrote (reported via Reply.MemoryUpdate).
func (a *Agent) StreamResponse(ctx context.Context, input string, convo []provider.Turn, onDelta func(delta string) error) (Reply, error) {
	return a.stream(ctx, input, convo, onDelta, false)
}

// StreamResponseWithMemory is the retrieval-augmented streaming variant:
// the same keyword retrieval and digest injection as
// GenerateResponseWithMemory, with deltas forwarded through onDelta.
func (a *Agent) StreamResponseWithMemory(ctx context.Context, input string, convo []provider.Turn, onDelta func(delta string) error) (Reply, error) {
	return a.stream(ctx, input, convo, onDelta, true)
}

func (a *Agent) stream(ctx context.Context, input string, convo []provider.Turn, onDelta func(delta string) error, useMemory bool) (Reply, error) {
	if cmd, ok := command.Detect(input); ok {
		reply, err := a.handleCommand(ctx, cmd)
		if err != nil {
			return Reply{}, err
		}
		if onDelta != nil {
			if err := onDelta(reply.Output); err != nil {
				return Reply{}, err
			}
		}
		return reply, nil
	}

	instructions := a.instructions
	var used []memory.Record
	if useMemory {
		var err error
		used, err = a.retrieve(ctx, input)
		if err != nil {
			return Reply{}, err
		}
		a.metrics.ObserveRetrievedMemories(len(used))
		instructions = a.withMemoryDigest(used)
	}

	resp, err := a.provider.Stream(ctx, provider.Request{
		Input:        input,
		Instructions: instructions,
		Model:        a.model,
		Context:      convo,
	}, func(event provider.StreamEvent) error {
		if event.Delta == "" || onDelta == nil {
			return nil
		}
		return onDelta(event.Delta)
	})
	if err != nil {
		a.metrics.RecordProviderError("stream")
		log.Printf("provider stream failed: %v", err)
		return Reply{}, fmt.Errorf("stream: %w", err)
	}

	return Reply{Output: resp.Output, Memories: used}, nil
}

// UpdateMemoryAfterStream runs the deferred memory arbitration for a
// streamed turn using the accumulated output text.
func (a *Agent) UpdateMemoryAfterStream(ctx context.Context, input, output string) UpdateReport {
	return a.ConsiderUpdatingMemory(ctx, input, output)
}

// AllMemories exposes the full store to the HTTP layer.
func (a *Agent) AllMemories(ctx context.Context) ([]memory.Record, error) {
	return a.memories.AllMemories(ctx)
}

// SearchMemories exposes substring search to the HTTP layer.
func (a *Agent) SearchMemories(ctx context.Context, query string) ([]memory.Record, error) {
	return a.memories.SearchMemories(ctx, query)
}

// RelevantMemories exposes keyword-relevance ranking to the HTTP layer.
func (a *Agent) RelevantMemories(ctx context.Context, input string) ([]memory.Record, error) {
	return a.memories.RelevantMemories(ctx, input)
}

// handleCommand is the injection bypass: the command goes straight into the
// store and the turn ends with a canned acknowledgment. No provider call, no
// review.
func (a *Agent) handleCommand(ctx context.Context, cmd command.MemoryCommand) (Reply, error) {
	rec, err := a.storeCommand(ctx, cmd)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Output: acknowledge(cmd, rec),
		MemoryUpdate: &UpdateReport{
			Updated:   true,
			Reasoning: "explicit request",
			Updates:   []AppliedUpdate{{Action: "create", Record: rec}},
		},
	}, nil
}

func (a *Agent) storeCommand(ctx context.Context, cmd command.MemoryCommand) (memory.Record, error) {
	description := strings.TrimSpace(cmd.Description)
	if description == "" {
		if kws := keywords.Extract(cmd.Content); len(kws) > 0 {
			description = kws[0]
		} else {
			description = fallbackDescription
		}
	}

	rec, err := a.memories.StoreMemory(ctx, description, cmd.Content)
	if err != nil {
		return memory.Record{}, fmt.Errorf("store command: %w", err)
	}
	a.metrics.RecordMemoryWrite(observability.WritePathDirect, "create")
	log.Printf("stored memory from explicit command: id=%s description=%q", rec.ID, rec.Description)
	return rec, nil
}

func acknowledge(cmd command.MemoryCommand, rec memory.Record) string {
	if cmd.Kind == command.KindNote && cmd.Description != "" {
		return fmt.Sprintf("Got it, I've made a note about %s: %s", rec.Description, rec.Content)
	}
	return fmt.Sprintf("Okay, I'll remember that %s", rec.Content)
}

// retrieve searches the store once per extracted keyword and merges results,
// deduplicating by id while preserving first-seen order.
func (a *Agent) retrieve(ctx context.Context, input string) ([]memory.Record, error) {
	kws := keywords.Extract(input)
	if len(kws) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var used []memory.Record
	for _, kw := range kws {
		matches, err := a.memories.SearchMemories(ctx, kw)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", kw, err)
		}
		for _, rec := range matches {
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			used = append(used, rec)
		}
	}
	return used, nil
}

func (a *Agent) withMemoryDigest(used []memory.Record) string {
	if len(used) == 0 {
		return a.instructions
	}
	var b strings.Builder
	b.WriteString(a.instructions)
	b.WriteString("\n\nHere are some relevant things I remember:")
	for _, rec := range used {
		fmt.Fprintf(&b, "\n- %s: %s", rec.Description, rec.Content)
	}
	return b.String()
}
