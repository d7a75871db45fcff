// Package runner sequences scenario steps: resolve, act, heal on failure,
// follow new browsing contexts, record one row per step. The loop is
// linear and single-threaded; page state must settle between attempts, so
// nothing here runs concurrently.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zerotouch/qa-runner/internal/browser"
	"github.com/zerotouch/qa-runner/internal/config"
	"github.com/zerotouch/qa-runner/internal/heal"
	"github.com/zerotouch/qa-runner/internal/resolver"
	"github.com/zerotouch/qa-runner/internal/scenario"
)

var (
	// ErrScenarioAborted is returned once a step fails beyond recovery;
	// no further steps run.
	ErrScenarioAborted = errors.New("scenario aborted")
	// ErrActionFailed marks an action that errored on a resolved element
	// (detached, not interactable, assertion miss).
	ErrActionFailed = errors.New("action failed")
)

// Step statuses.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// Record is one append-only execution row, consumed by reporting.
type Record struct {
	Step        int             `json:"step"`
	Action      scenario.Action `json:"action"`
	Description string          `json:"description"`
	HealStage   string          `json:"heal_stage"`
	Status      string          `json:"status"`
	Evidence    string          `json:"evidence,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Sink receives run events and evidence captures. The runner only says
// "capture now"; storage layout belongs to the sink.
type Sink interface {
	Event(fields map[string]any)
	CaptureEvidence(ctx context.Context, page browser.Page, name string) (string, error)
}

// Runner executes one scenario against one browser session.
type Runner struct {
	cfg     config.Config
	session browser.Session
	healer  *heal.Controller
	sink    Sink
	logger  zerolog.Logger
}

func New(cfg config.Config, session browser.Session, healer *heal.Controller, sink Sink, logger zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, session: session, healer: healer, sink: sink, logger: logger}
}

// Execute runs every step in order until the first unrecovered failure.
// It always returns the records produced so far and the healed scenario,
// even when it also returns an error; nothing is discarded on failure.
func (r *Runner) Execute(ctx context.Context, steps []scenario.Step) ([]Record, []scenario.Step, error) {
	healed := scenario.Clone(steps)
	if err := scenario.Validate(healed); err != nil {
		return nil, healed, err
	}

	pages := r.session.Pages()
	if len(pages) == 0 {
		return nil, healed, fmt.Errorf("session has no open page")
	}
	page := pages[len(pages)-1]
	res := resolver.New(page, r.cfg.FastTimeout, r.logger)

	records := make([]Record, 0, len(healed))
	for i := range healed {
		step := &healed[i]
		if err := ctx.Err(); err != nil {
			return records, healed, fmt.Errorf("%w: %v", ErrScenarioAborted, err)
		}

		contextsBefore := len(r.session.Pages())
		r.sink.Event(map[string]any{
			"phase": "execute", "step": step.ID, "action": step.Action,
			"description": step.Description, "event": "start",
		})
		r.logger.Info().
			Int("step", step.ID).
			Str("action", string(step.Action)).
			Str("description", step.Description).
			Msg("step start")

		healStage := heal.StageNone
		status := StatusPass
		var stepErr error

		if err := r.perform(ctx, res, *step); err != nil {
			r.sink.Event(map[string]any{
				"phase": "execute", "step": step.ID, "action": step.Action,
				"event": "fail", "error": err.Error(), "target": step.Target,
			})
			if step.Action.Healable() {
				outcome := r.healer.Heal(ctx, res.Page(), *step, err, func(ctx context.Context, tgt scenario.Target) error {
					trial := *step
					trial.Target = tgt
					return r.perform(ctx, res, trial)
				})
				healStage = outcome.Stage
				step.Target = outcome.Target
				if outcome.Fallbacks != nil {
					step.Fallbacks = outcome.Fallbacks
				}
				if !outcome.Recovered {
					status = StatusFail
					stepErr = outcome.Err
				}
			} else {
				// Navigation, waits and unknown actions are fatal as-is;
				// swapping targets cannot fix them.
				status = StatusFail
				stepErr = err
			}
		}

		// A click may have opened a new tab or window; from here on the
		// newest context is the one the scenario acts in. The old one is
		// abandoned, not closed, so its traces stay available.
		if after := r.session.Pages(); len(after) > contextsBefore {
			page = after[len(after)-1]
			res = resolver.New(page, r.cfg.FastTimeout, r.logger)
			r.logger.Info().
				Int("contexts", len(after)).
				Str("url", page.URL()).
				Msg("switched to new browsing context")
		}

		evidence := r.capture(ctx, page, step.ID, status)

		records = append(records, Record{
			Step:        step.ID,
			Action:      step.Action,
			Description: step.Description,
			HealStage:   healStage,
			Status:      status,
			Evidence:    evidence,
			Error:       errText(stepErr),
		})
		r.sink.Event(map[string]any{
			"phase": "execute", "step": step.ID, "action": step.Action,
			"event": strings.ToLower(status), "heal_stage": healStage,
			"url": page.URL(), "evidence": evidence,
		})

		if status == StatusFail {
			r.logger.Error().Int("step", step.ID).Err(stepErr).Msg("step failed, aborting scenario")
			return records, healed, fmt.Errorf("%w: step %d: %v", ErrScenarioAborted, step.ID, stepErr)
		}
	}

	return records, healed, nil
}

func (r *Runner) capture(ctx context.Context, page browser.Page, stepID int, status string) string {
	name := fmt.Sprintf("step_%d_%s.png", stepID, strings.ToLower(status))
	ref, err := r.sink.CaptureEvidence(ctx, page, name)
	if err != nil {
		r.logger.Warn().Err(err).Int("step", stepID).Msg("evidence capture failed")
		return ""
	}
	return ref
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
