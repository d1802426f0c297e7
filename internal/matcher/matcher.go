// Package matcher asks the reasoning service which page element one
// instruction step refers to.
package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/polzovatel/elder-web-guide/internal/page"
	"github.com/polzovatel/elder-web-guide/internal/reason"
)

// ErrUnparsable is reported when the service reply is neither the no-action
// token nor a JSON element object. Callers treat the step as no-action but
// keep the error signal.
var ErrUnparsable = errors.New("matcher response not parseable")

// Selection is the outcome for one step: a matched element, or no action
// at all (an informational step).
type Selection struct {
	Element  *page.Element
	NoAction bool
}

type Matcher struct {
	svc    reason.Service
	models []string
	logger zerolog.Logger
}

func New(svc reason.Service, models []string, logger zerolog.Logger) *Matcher {
	return &Matcher{svc: svc, models: models, logger: logger}
}

// Match resolves one step against the supplied snapshot. Single-shot run:
// the matching policy lives in the prompt, the budget is one step.
func (m *Matcher) Match(ctx context.Context, step string, elements []page.Element) (Selection, error) {
	prompt, err := buildPrompt(step, elements)
	if err != nil {
		return Selection{}, err
	}

	m.logger.Info().Str("step", truncate(step, 50)).Int("elements", len(elements)).Msg("selecting element")

	out, err := m.svc.Run(ctx, reason.Request{
		Input:    prompt,
		Models:   m.models,
		MaxSteps: 1,
	})
	if err != nil {
		return Selection{}, fmt.Errorf("reasoning run: %w", err)
	}
	return parseSelection(out)
}

// parseSelection decodes the service reply. Empty text or a bare "null"
// token means no interaction is needed; anything else must contain one
// JSON element object.
func parseSelection(out string) (Selection, error) {
	out = strings.TrimSpace(out)
	if out == "" || strings.EqualFold(out, "null") {
		return Selection{NoAction: true}, nil
	}

	raw := out
	if !strings.HasPrefix(raw, "{") {
		extracted, err := reason.ExtractJSON(raw)
		if err != nil {
			return Selection{NoAction: true}, fmt.Errorf("%w: %q", ErrUnparsable, truncate(out, 200))
		}
		raw = extracted
	}
	var el page.Element
	if err := json.Unmarshal([]byte(raw), &el); err != nil {
		return Selection{NoAction: true}, fmt.Errorf("%w: %q", ErrUnparsable, truncate(out, 200))
	}
	if strings.TrimSpace(el.ID) == "" {
		return Selection{NoAction: true}, fmt.Errorf("%w: element without id: %q", ErrUnparsable, truncate(out, 200))
	}
	return Selection{Element: &el}, nil
}

// buildPrompt is deterministic: same step and snapshot, same prompt.
func buildPrompt(step string, elements []page.Element) (string, error) {
	elementsJSON, err := page.SnapshotJSON(elements)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`You are an expert at matching user instructions to webpage elements for elderly users.

INSTRUCTION STEP:
%s

AVAILABLE ELEMENTS:
%s

YOUR TASK:
Identify which element (if any) the user should interact with for this step.

MATCHING RULES:
1. **Action Words**:
   - "click/tap/press" -> look for buttons, links
   - "type/enter/input" -> look for input fields, textareas
   - "select/choose" -> look for select dropdowns, buttons

2. **Fuzzy Matching** (these are equivalent):
   - "Log in" = "Login" = "Sign in" = "Sign In" = "log in"
   - "Email" = "email address" = "E-mail"
   - "Password" = "pass" = "pwd"
   - "Search" = "Find" = magnifying glass icon

3. **Prioritize by Type**:
   - For "click the X button" -> prefer tag="button" over tag="a"
   - For "type in X" -> prefer tag="input" or textarea
   - Look at element's "type" and "role" fields for hints

4. **Informational Steps** (return null for these):
   - "Wait for..."
   - "You will see..."
   - "Remember to..."
   - Steps with NO specific element to click/type

EXAMPLES:
Step: "Click the Log In button"
Elements: [{"id": "ai-1", "tag": "button", "text": "Sign in"}, {"id": "ai-2", "tag": "a", "text": "Register"}]
-> Answer: {"id": "ai-1", "tag": "button", "text": "Sign in"}
(matched because "Log In" is equivalent to "Sign in" and it's a button)

Step: "Type your email address in the email box"
Elements: [{"id": "ai-3", "tag": "input", "text": "Email or phone number", "type": "text"}, {"id": "ai-4", "tag": "button", "text": "Submit"}]
-> Answer: {"id": "ai-3", "tag": "input", "text": "Email or phone number", "type": "text"}
(matched because it's an input field for email)

Step: "Wait for the page to load"
-> Answer: null
(informational, no interaction needed)

OUTPUT FORMAT:
- Return ONLY the JSON object of the matching element
- OR return: null
- NO explanations, NO extra text`, step, elementsJSON), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
