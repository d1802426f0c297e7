package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/polzovatel/elder-web-guide/internal/llm"
	"github.com/polzovatel/elder-web-guide/internal/store"
)

// ToolFunc executes one named tool against its input object.
type ToolFunc func(ctx context.Context, input map[string]any) (string, error)

type boundTool struct {
	def llm.Tool
	fn  ToolFunc
}

// Toolbox binds tool identifiers to implementations for one reasoning run.
type Toolbox struct {
	tools map[string]boundTool
}

func NewToolbox() *Toolbox {
	return &Toolbox{tools: make(map[string]boundTool)}
}

// Register adds a named tool. Later registrations replace earlier ones.
func (tb *Toolbox) Register(name, desc string, props schema, required []string, fn ToolFunc) {
	tb.tools[name] = boundTool{def: newTool(name, desc, props, required), fn: fn}
}

// Describe returns the schema for a registered tool.
func (tb *Toolbox) Describe(name string) (llm.Tool, bool) {
	t, ok := tb.tools[name]
	return t.def, ok
}

// Invoke runs a registered tool.
func (tb *Toolbox) Invoke(ctx context.Context, name string, input map[string]any) (string, error) {
	t, ok := tb.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %s", name)
	}
	return t.fn(ctx, input)
}

// SessionToolbox exposes the instruction store to the model for one
// session: it can read the conversation and write generated instructions.
func SessionToolbox(st *store.Store, session string) *Toolbox {
	tb := NewToolbox()
	tb.Register("read_convo",
		"Read the conversation with the user so far, oldest message first",
		schema{}, nil,
		func(ctx context.Context, _ map[string]any) (string, error) {
			turns, err := st.ReadConvo(session)
			if err != nil {
				return "", err
			}
			data, err := json.Marshal(turns)
			if err != nil {
				return "", fmt.Errorf("marshal convo: %w", err)
			}
			return string(data), nil
		})
	tb.Register("write_instructions",
		"Save the final numbered instructions for the user",
		schema{"instructions": str("full numbered instruction text")}, []string{"instructions"},
		func(ctx context.Context, input map[string]any) (string, error) {
			text, err := requiredString(input, "instructions")
			if err != nil {
				return "", err
			}
			if err := st.AppendInstructions(session, text); err != nil {
				return "", err
			}
			return "instructions saved", nil
		})
	return tb
}

// Helpers for schema and extraction.
type schema map[string]any

func newTool(name, desc string, props schema, required []string) llm.Tool {
	return llm.Tool{
		Name:        name,
		Description: desc,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

func str(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }

func requiredString(input map[string]any, key string) (string, error) {
	val, ok := input[key]
	if !ok {
		return "", fmt.Errorf("field %s required", key)
	}
	switch v := val.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("field %s empty", key)
		}
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("field %s must be string", key)
	}
}
