// Package instruct turns a user request into numbered, plain-language
// navigation instructions and records them in the session document.
package instruct

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/polzovatel/elder-web-guide/internal/page"
	"github.com/polzovatel/elder-web-guide/internal/reason"
	"github.com/polzovatel/elder-web-guide/internal/store"
)

type Generator struct {
	svc      reason.Service
	store    *store.Store
	models   []string
	maxSteps int
	logger   zerolog.Logger
}

func New(svc reason.Service, st *store.Store, models []string, maxSteps int, logger zerolog.Logger) *Generator {
	if maxSteps <= 0 {
		maxSteps = 7
	}
	return &Generator{svc: svc, store: st, models: models, maxSteps: maxSteps, logger: logger}
}

// Generate records the user message, asks the reasoning service for a full
// numbered instruction set and guarantees the session document gains an
// instructions entry on success. The model is given tools to read the
// conversation and save its answer itself; if it only returns text, the
// text is saved on its behalf.
func (g *Generator) Generate(ctx context.Context, session, message string, elements []page.Element) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("empty message")
	}

	if err := g.store.AppendConvo(session, message); err != nil {
		return "", fmt.Errorf("record message: %w", err)
	}

	prompt, err := buildPrompt(message, elements)
	if err != nil {
		return "", err
	}

	before := g.store.InstructionCount(session)
	g.logger.Info().Str("session", session).Int("prior_instructions", before).Msg("generating instructions")

	out, err := g.svc.Run(ctx, reason.Request{
		Input:    prompt,
		Models:   g.models,
		Tools:    []string{"read_convo", "write_instructions"},
		MaxSteps: g.maxSteps,
		Toolbox:  reason.SessionToolbox(g.store, session),
	})
	if err != nil {
		return "", fmt.Errorf("reasoning run: %w", err)
	}

	// Write-through: if the model never called write_instructions, its
	// final text is the instruction set.
	if g.store.InstructionCount(session) == before {
		if strings.TrimSpace(out) == "" {
			return "", fmt.Errorf("reasoning service produced no instructions")
		}
		if err := g.store.AppendInstructions(session, out); err != nil {
			return "", err
		}
	}

	text, err := g.store.ReadInstructions(session)
	if err != nil {
		return "", fmt.Errorf("read back instructions: %w", err)
	}
	return text, nil
}

func buildPrompt(message string, elements []page.Element) (string, error) {
	var b strings.Builder
	b.WriteString(`You guide an elderly person through a website, one small action at a time.

Use the read_convo tool to review the whole conversation first. Then write
clear numbered instructions (1., 2., 3., ...) answering the MOST RECENT
request. Rules:
- Plain language, no jargon, one action per step.
- Always produce numbered steps, even if the request or page context is
  incomplete; make reasonable assumptions rather than refusing.
- Save the final instructions with the write_instructions tool.

MOST RECENT REQUEST:
`)
	b.WriteString(message)
	if len(elements) > 0 {
		snapshotJSON, err := page.SnapshotJSON(elements)
		if err != nil {
			return "", err
		}
		b.WriteString("\n\nVISIBLE PAGE ELEMENTS (for context):\n")
		b.WriteString(snapshotJSON)
	}
	return b.String(), nil
}
