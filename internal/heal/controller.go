package heal

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zerotouch/qa-runner/internal/browser"
	"github.com/zerotouch/qa-runner/internal/config"
	"github.com/zerotouch/qa-runner/internal/llm"
	"github.com/zerotouch/qa-runner/internal/scenario"
)

// ErrRecoveryExhausted is raised once the full attempt budget is spent.
// Per-substage failures are swallowed and logged; only this error
// escapes the controller.
var ErrRecoveryExhausted = errors.New("recovery exhausted")

// Heal stage labels recorded on execution rows.
const (
	StageNone            = "none"
	StageCandidateSearch = "candidate_search"
	StageModelHeal       = "model_heal"
	StageHealFailed      = "heal_failed"
)

func fallbackStage(n int) string { return fmt.Sprintf("fallback_%d", n) }

// RetryFunc re-executes the failed step's action against a substitute
// target. The controller never mutates the step itself; the execution
// loop applies the outcome.
type RetryFunc func(ctx context.Context, target scenario.Target) error

// Outcome reports how an escalation ended. Target is the target that
// worked, or the original pre-healing target when recovery failed.
// Fallbacks is non-nil only when the model proposed a replacement list.
type Outcome struct {
	Recovered bool
	Stage     string
	Attempt   int
	Target    scenario.Target
	Fallbacks []scenario.Target
	Err       error
}

// Controller runs the bounded escalation protocol: per attempt, declared
// fallback substitution, then accessibility candidate search, then
// model-assisted recovery, short-circuiting on the first retry that
// succeeds. Sub-stages run strictly one after another so page state can
// settle between retries.
type Controller struct {
	cfg    config.Config
	client llm.Client
	logger zerolog.Logger
}

// NewController builds a controller. client may be nil; the model heal
// sub-stage is then skipped regardless of configuration.
func NewController(cfg config.Config, client llm.Client, logger zerolog.Logger) *Controller {
	return &Controller{cfg: cfg, client: client, logger: logger}
}

// Heal escalates after cause broke the step. page is the browsing context
// the step ran against; retry re-executes the action with a candidate
// target from the same state.
func (c *Controller) Heal(ctx context.Context, page browser.Page, step scenario.Step, cause error, retry RetryFunc) Outcome {
	original := step.Target
	query := original.Query()
	lastErr := cause

	for attempt := 1; attempt <= c.cfg.MaxHealAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		c.logger.Info().
			Int("attempt", attempt).
			Int("max", c.cfg.MaxHealAttempts).
			Int("step", step.ID).
			Msg("healing attempt")

		if attempt-1 < len(step.Fallbacks) {
			tgt := step.Fallbacks[attempt-1]
			c.logger.Debug().Str("target", tgt.Brief()).Msg("healing: fallback substitution")
			err := retry(ctx, tgt)
			if err == nil {
				return Outcome{Recovered: true, Stage: fallbackStage(attempt), Attempt: attempt, Target: tgt}
			}
			lastErr = err
		}

		c.logger.Debug().Str("query", query).Msg("healing: candidate search")
		if ranked := c.rankedCandidates(ctx, page, step.Action, query, original.Role); len(ranked) > 0 {
			top := ranked[0]
			if top.Score > c.cfg.MinCandidateScore {
				tgt := scenario.Target{Role: top.Role, Name: top.Name}
				err := retry(ctx, tgt)
				if err == nil {
					return Outcome{Recovered: true, Stage: StageCandidateSearch, Attempt: attempt, Target: tgt}
				}
				lastErr = err
			}
		}

		if c.cfg.HealEnabled && c.client != nil {
			c.logger.Debug().Msg("healing: model-assisted recovery")
			tgt, fallbacks, err := c.modelHeal(ctx, page, step.Action, original, query, lastErr)
			if err != nil {
				lastErr = err
				c.logger.Warn().Err(err).Msg("model heal proposal failed")
			} else if err := retry(ctx, tgt); err == nil {
				return Outcome{Recovered: true, Stage: StageModelHeal, Attempt: attempt, Target: tgt, Fallbacks: fallbacks}
			} else {
				lastErr = err
			}
		}
	}

	c.logger.Warn().Int("step", step.ID).Msg("all healing attempts failed")
	return Outcome{
		Recovered: false,
		Stage:     StageHealFailed,
		Attempt:   c.cfg.MaxHealAttempts,
		Target:    original,
		Err:       fmt.Errorf("%w: %v", ErrRecoveryExhausted, lastErr),
	}
}

// rankedCandidates takes a fresh accessibility snapshot and ranks it for
// the failed step. An empty result is not an error; the caller simply has
// nothing to try from this stage.
func (c *Controller) rankedCandidates(ctx context.Context, page browser.Page, action scenario.Action, query, preferredRole string) []Ranked {
	tree, err := page.Accessibility(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("accessibility snapshot failed")
		return nil
	}
	candidates := FilterByAction(action, Collect(tree))
	return Rank(query, preferredRole, candidates)
}

func (c *Controller) modelHeal(ctx context.Context, page browser.Page, action scenario.Action, original scenario.Target, query string, lastErr error) (scenario.Target, []scenario.Target, error) {
	ranked := c.rankedCandidates(ctx, page, action, query, original.Role)
	errText := ""
	if lastErr != nil {
		errText = lastErr.Error()
	}
	prompt := BuildPrompt(action, original, errText, page.URL(), ranked, c.cfg.CandidateTopN)
	resp, err := c.client.Generate(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   700,
	})
	if err != nil {
		return scenario.Target{}, nil, fmt.Errorf("heal completion: %w", err)
	}
	proposal, err := ParseProposal(resp.Text)
	if err != nil {
		return scenario.Target{}, nil, err
	}
	tgt := proposal.Target
	if tgt.Empty() {
		tgt = original
	}
	return tgt, proposal.Fallbacks, nil
}
