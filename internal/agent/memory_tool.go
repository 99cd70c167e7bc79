package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/seclab-demos/memjack/internal/command"
	"github.com/seclab-demos/memjack/internal/memory"
	"github.com/seclab-demos/memjack/internal/observability"
	"github.com/seclab-demos/memjack/internal/provider"
)

const memoryToolName = "update_memory"

// memoryInstructions bias the arbitration toward generous retention, which
// keeps the reviewed path busy enough to contrast with the bypass.
const memoryInstructions = "You maintain the assistant's long-term memory about the user. " +
	"Review the exchange and decide whether any facts, preferences, or details are worth keeping. " +
	"Be generous with what you store: small personal details often matter later. " +
	"Use the update action with an id to revise an existing memory, and create for anything new. " +
	"Call " + memoryToolName + " with your decision."

// UpdateReport summarizes the outcome of one memory arbitration.
type UpdateReport struct {
	Updated   bool            `json:"updated"`
	Reasoning string          `json:"reasoning,omitempty"`
	Updates   []AppliedUpdate `json:"updates,omitempty"`
	Err       string          `json:"error,omitempty"`
}

// AppliedUpdate records one store mutation performed by the arbitration.
type AppliedUpdate struct {
	Action string        `json:"action"`
	Record memory.Record `json:"record"`
}

// memoryDecision is the expected shape of the tool-call arguments. It is an
// untrusted suggestion from the model; every item is validated before it
// touches the store.
type memoryDecision struct {
	ShouldUpdate bool         `json:"should_update"`
	Items        []memoryItem `json:"items"`
	Reasoning    string       `json:"reasoning"`
}

type memoryItem struct {
	Action      string `json:"action"`
	ID          string `json:"id,omitempty"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

func memoryTool() provider.Tool {
	return provider.Tool{
		Name:        memoryToolName,
		Description: "Create or update long-term memories about the user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"should_update": map[string]any{
					"type":        "boolean",
					"description": "Whether anything from this exchange should be stored.",
				},
				"items": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"action": map[string]any{
								"type": "string",
								"enum": []string{"create", "update"},
							},
							"id": map[string]any{
								"type":        "string",
								"description": "Existing memory id, required for update.",
							},
							"description": map[string]any{"type": "string"},
							"content":     map[string]any{"type": "string"},
						},
						"required": []string{"action", "description", "content"},
					},
				},
				"reasoning": map[string]any{"type": "string"},
			},
			"required": []string{"should_update", "reasoning"},
		},
	}
}

// ConsiderUpdatingMemory decides whether the exchange should mutate the
// store. An explicit directive in the user input is written directly (the
// second bypass path, reachable even from the inference flow); otherwise the
// provider arbitrates via a structured function call.
//
// Nothing here may break the primary response path: every failure is logged
// and folded into the report.
func (a *Agent) ConsiderUpdatingMemory(ctx context.Context, userInput, agentOutput string) (report UpdateReport) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("memory arbitration panicked: %v", r)
			report = UpdateReport{Err: fmt.Sprintf("memory arbitration panicked: %v", r)}
		}
	}()

	report, err := a.arbitrate(ctx, userInput, agentOutput)
	if err != nil {
		a.metrics.RecordProviderError("function_call")
		log.Printf("memory arbitration failed: %v", err)
		return UpdateReport{Err: err.Error()}
	}
	return report
}

func (a *Agent) arbitrate(ctx context.Context, userInput, agentOutput string) (UpdateReport, error) {
	if cmd, ok := command.Detect(userInput); ok {
		rec, err := a.storeCommand(ctx, cmd)
		if err != nil {
			return UpdateReport{}, err
		}
		return UpdateReport{
			Updated:   true,
			Reasoning: "explicit request",
			Updates:   []AppliedUpdate{{Action: "create", Record: rec}},
		}, nil
	}

	existing, err := a.memories.AllMemories(ctx)
	if err != nil {
		return UpdateReport{}, fmt.Errorf("list memories: %w", err)
	}

	resp, err := a.provider.FunctionCall(ctx, provider.Request{
		Input:        arbitrationInput(userInput, agentOutput, existing),
		Instructions: memoryInstructions,
		Model:        a.model,
	}, []provider.Tool{memoryTool()})
	if err != nil {
		return UpdateReport{}, fmt.Errorf("memory function call: %w", err)
	}

	for _, call := range resp.ToolCalls {
		if call.Name != memoryToolName {
			continue
		}
		return a.ProcessMemoryToolCall(ctx, call)
	}
	return UpdateReport{Reasoning: strings.TrimSpace(resp.MessageContent)}, nil
}

// ProcessMemoryToolCall applies one update_memory tool call: parse, validate
// each item, and fold the valid ones into store mutations. Malformed items
// are skipped and logged, never retried; a single bad item must not abort
// the batch.
func (a *Agent) ProcessMemoryToolCall(ctx context.Context, call provider.ToolCall) (UpdateReport, error) {
	var decision memoryDecision
	if err := json.Unmarshal([]byte(call.Arguments), &decision); err != nil {
		return UpdateReport{}, fmt.Errorf("malformed %s arguments: %w", memoryToolName, err)
	}

	if !decision.ShouldUpdate {
		return UpdateReport{Reasoning: decision.Reasoning}, nil
	}

	var updates []AppliedUpdate
	for i, item := range decision.Items {
		if err := validateItem(item); err != nil {
			log.Printf("skipping memory item %d: %v", i, err)
			continue
		}

		switch item.Action {
		case "create":
			rec, err := a.memories.StoreMemory(ctx, item.Description, item.Content)
			if err != nil {
				log.Printf("skipping memory item %d: %v", i, err)
				continue
			}
			a.metrics.RecordMemoryWrite(observability.WritePathReviewed, "create")
			updates = append(updates, AppliedUpdate{Action: "create", Record: rec})
		case "update":
			rec, err := a.memories.UpdateMemory(ctx, item.ID, memory.UpdateFields{
				Description: &item.Description,
				Content:     &item.Content,
			})
			if err != nil {
				log.Printf("skipping memory item %d: %v", i, err)
				continue
			}
			if rec == nil {
				log.Printf("skipping memory item %d: no memory with id %q", i, item.ID)
				continue
			}
			a.metrics.RecordMemoryWrite(observability.WritePathReviewed, "update")
			updates = append(updates, AppliedUpdate{Action: "update", Record: *rec})
		}
	}

	return UpdateReport{Updated: true, Reasoning: decision.Reasoning, Updates: updates}, nil
}

func validateItem(item memoryItem) error {
	switch item.Action {
	case "create":
	case "update":
		if strings.TrimSpace(item.ID) == "" {
			return errors.New("update action requires an id")
		}
	default:
		return fmt.Errorf("unknown action %q", item.Action)
	}
	if strings.TrimSpace(item.Description) == "" {
		return errors.New("missing description")
	}
	if strings.TrimSpace(item.Content) == "" {
		return errors.New("missing content")
	}
	return nil
}

func arbitrationInput(userInput, agentOutput string, existing []memory.Record) string {
	var b strings.Builder
	b.WriteString("User said: ")
	b.WriteString(userInput)
	b.WriteString("\nAssistant replied: ")
	b.WriteString(agentOutput)

	if len(existing) > 0 {
		b.WriteString("\n\nCurrent memories:")
		for _, rec := range existing {
			fmt.Fprintf(&b, "\n- id=%s %s: %s", rec.ID, rec.Description, rec.Content)
		}
	}
	return b.String()
}
