// Package selector walks persisted instructions step by step and resolves
// each step to a page element through the matcher.
package selector

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/polzovatel/elder-web-guide/internal/matcher"
	"github.com/polzovatel/elder-web-guide/internal/page"
	"github.com/polzovatel/elder-web-guide/internal/steps"
	"github.com/polzovatel/elder-web-guide/internal/store"
)

// ElementMatcher is the single call the orchestrator needs from the
// matcher; tests substitute it.
type ElementMatcher interface {
	Match(ctx context.Context, step string, elements []page.Element) (matcher.Selection, error)
}

// StepResult reports the outcome for one step, or a terminal "all steps
// completed" marker.
type StepResult struct {
	StepNumber      int           `json:"step_number,omitempty"`
	TotalSteps      int           `json:"total_steps"`
	StepText        string        `json:"step_text,omitempty"`
	SelectedElement *page.Element `json:"selected_element"`
	Completed       bool          `json:"completed"`
	Message         string        `json:"message,omitempty"`
}

type Orchestrator struct {
	store   *store.Store
	matcher ElementMatcher
	logger  zerolog.Logger
}

func New(st *store.Store, m ElementMatcher, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{store: st, matcher: m, logger: logger}
}

// SelectStep resolves one step by zero-based index and persists the
// selection keyed by step number (index+1). An index at or past the end is
// a completed result: no matcher call, no store write. A missing document
// or unparsable instructions surface as errors, never panics.
func (o *Orchestrator) SelectStep(ctx context.Context, session string, elements []page.Element, index int) (StepResult, error) {
	parsed, err := o.loadSteps(session)
	if err != nil {
		return StepResult{}, err
	}

	if index >= len(parsed) {
		o.logger.Info().Str("session", session).Int("total", len(parsed)).Msg("all steps completed")
		return StepResult{
			Completed:  true,
			TotalSteps: len(parsed),
			Message:    "All steps completed!",
		}, nil
	}

	step := parsed[index]
	o.logger.Info().Str("session", session).Int("step", index+1).Int("total", len(parsed)).Msg("processing step")

	sel, err := o.match(ctx, step, elements)
	if err != nil {
		return StepResult{}, err
	}

	if err := o.store.UpsertSelectedElement(session, index+1, step, sel.Element); err != nil {
		return StepResult{}, fmt.Errorf("persist selection: %w", err)
	}

	return StepResult{
		StepNumber:      index + 1,
		TotalSteps:      len(parsed),
		StepText:        step,
		SelectedElement: sel.Element,
	}, nil
}

// SelectAll resolves every step against one constant snapshot, in order.
// This is the preview path: results are returned, not persisted, so its
// side effects stay distinguishable from SelectStep.
func (o *Orchestrator) SelectAll(ctx context.Context, session string, elements []page.Element) ([]StepResult, error) {
	parsed, err := o.loadSteps(session)
	if err != nil {
		return nil, err
	}

	results := make([]StepResult, 0, len(parsed))
	for i, step := range parsed {
		o.logger.Info().Str("session", session).Int("step", i+1).Int("total", len(parsed)).Msg("processing step")
		sel, err := o.match(ctx, step, elements)
		if err != nil {
			return nil, err
		}
		results = append(results, StepResult{
			StepNumber:      i + 1,
			TotalSteps:      len(parsed),
			StepText:        step,
			SelectedElement: sel.Element,
		})
	}
	return results, nil
}

func (o *Orchestrator) loadSteps(session string) ([]string, error) {
	raw, err := o.store.ReadInstructions(session)
	if err != nil {
		return nil, err
	}
	parsed, err := steps.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse instructions: %w", err)
	}
	return parsed, nil
}

// match treats an unparsable matcher reply as "no action" and keeps going;
// anything else (an upstream failure) propagates once.
func (o *Orchestrator) match(ctx context.Context, step string, elements []page.Element) (matcher.Selection, error) {
	sel, err := o.matcher.Match(ctx, step, elements)
	if err != nil {
		if errors.Is(err, matcher.ErrUnparsable) {
			o.logger.Error().Err(err).Str("step", step).Msg("unparsable matcher reply, treating as no action")
			return matcher.Selection{NoAction: true}, nil
		}
		return matcher.Selection{}, fmt.Errorf("match step: %w", err)
	}
	return sel, nil
}
