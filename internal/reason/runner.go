// Package reason drives the external reasoning backends behind a single
// contract: prompt in, final text out, with an ordered backend list, named
// tool bindings, a hard step budget and no streaming.
package reason

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/polzovatel/elder-web-guide/internal/llm"
)

// Request describes one reasoning run.
type Request struct {
	// Input is the full prompt.
	Input string
	// Models are backend identifiers tried in order; the first backend
	// that answers is used for the whole run.
	Models []string
	// Tools names the toolbox entries the model may call. Empty means a
	// single-shot run.
	Tools []string
	// MaxSteps bounds the tool loop. It is the only safeguard against a
	// runaway run; zero means one step.
	MaxSteps int
	// Stream is part of the service contract but unsupported here.
	Stream bool
	// Toolbox supplies the named tools. Required when Tools is non-empty.
	Toolbox *Toolbox
}

// Service is the reasoning entry point consumed by the generator and the
// matcher.
type Service interface {
	Run(ctx context.Context, req Request) (string, error)
}

// Runner resolves backend identifiers against a client registry and runs
// the tool loop.
type Runner struct {
	clients map[string]llm.Client
	logger  zerolog.Logger
}

func NewRunner(clients map[string]llm.Client, logger zerolog.Logger) *Runner {
	return &Runner{clients: clients, logger: logger}
}

const toolSystemPrompt = `You are a precise assistant helping an elderly person use the web.
You may call the provided tools. To call a tool, respond with a SINGLE JSON
object and NOTHING else: {"action":"tool_name","input":{...}}.
When you are done, respond with your final answer as plain text (no JSON).`

func (r *Runner) Run(ctx context.Context, req Request) (string, error) {
	if req.Stream {
		return "", errors.New("streaming runs are not supported")
	}
	if len(req.Tools) > 0 && req.Toolbox == nil {
		return "", errors.New("tools requested without a toolbox")
	}

	clients, err := r.resolve(req.Models)
	if err != nil {
		return "", err
	}

	var toolDefs []llm.Tool
	for _, name := range req.Tools {
		def, ok := req.Toolbox.Describe(name)
		if !ok {
			return "", fmt.Errorf("unknown tool %q", name)
		}
		toolDefs = append(toolDefs, def)
	}

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1
	}

	system := ""
	if len(toolDefs) > 0 {
		system = toolSystemPrompt
	}

	messages := []llm.Message{{Role: "user", Content: req.Input}}
	lastText := ""
	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := r.generate(ctx, clients, llm.Request{
			System:      system,
			Messages:    messages,
			Tools:       toolDefs,
			Temperature: 0.0,
		})
		if err != nil {
			return "", err
		}
		lastText = strings.TrimSpace(resp.Text)

		if len(toolDefs) == 0 {
			return lastText, nil
		}

		action, input, ok := parseAction(lastText)
		if !ok || !contains(req.Tools, action) {
			// Not a tool call: the model has produced its final output.
			return lastText, nil
		}

		r.logger.Debug().Int("step", step).Str("tool", action).Msg("tool call")
		observation, err := req.Toolbox.Invoke(ctx, action, input)
		if err != nil {
			observation = "error: " + err.Error()
		}
		messages = append(messages,
			llm.Message{Role: "assistant", Content: lastText},
			llm.Message{Role: "user", Content: fmt.Sprintf("TOOL RESULT (%s):\n%s", action, observation)},
		)
	}

	// Budget exhausted mid-loop; hand back whatever the model said last.
	r.logger.Warn().Int("max_steps", maxSteps).Msg("reasoning step budget exhausted")
	if lastText == "" {
		return "", fmt.Errorf("no output after %d steps", maxSteps)
	}
	return lastText, nil
}

// generate tries each resolved backend in order. Fallback applies to
// transport-level failure only; a successful answer ends the search.
func (r *Runner) generate(ctx context.Context, clients []llm.Client, req llm.Request) (llm.Response, error) {
	var lastErr error
	for _, c := range clients {
		resp, err := c.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		r.logger.Warn().Err(err).Str("backend", c.Name()).Msg("backend failed, trying next")
	}
	return llm.Response{}, fmt.Errorf("all backends failed: %w", lastErr)
}

func (r *Runner) resolve(models []string) ([]llm.Client, error) {
	if len(models) == 0 {
		// Stable default order so runs are reproducible.
		for _, name := range []string{llm.ProviderAnthropic, llm.ProviderOpenAI} {
			if c, ok := r.clients[name]; ok {
				return []llm.Client{c}, nil
			}
		}
		return nil, errors.New("no reasoning backends registered")
	}
	var out []llm.Client
	for _, name := range models {
		c, ok := r.clients[name]
		if !ok {
			return nil, fmt.Errorf("unknown backend %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseAction(text string) (string, map[string]any, bool) {
	jsonStr, err := ExtractJSON(text)
	if err != nil {
		return "", nil, false
	}
	var parsed struct {
		Action string         `json:"action"`
		Input  map[string]any `json:"input"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return "", nil, false
	}
	if strings.TrimSpace(parsed.Action) == "" {
		return "", nil, false
	}
	if parsed.Input == nil {
		parsed.Input = map[string]any{}
	}
	return strings.TrimSpace(parsed.Action), parsed.Input, true
}

// ExtractJSON finds the first balanced JSON object in text, respecting
// string literals and escapes. Models often wrap their JSON in prose; this
// digs it out.
func ExtractJSON(text string) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("json not found")
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
