// Package resolver turns an intent target into a live element handle by
// trying lookup strategies in a fixed priority order. Semantic strategies
// that survive UI refactors (role, label, text) come first; the raw
// selector is the last escape hatch.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zerotouch/qa-runner/internal/browser"
	"github.com/zerotouch/qa-runner/internal/scenario"
)

// ErrNotResolved means every strategy was exhausted within its fast-fail
// window. The caller decides whether to retry, heal or give up.
var ErrNotResolved = errors.New("target not resolved")

// Resolver binds to one page. The execution loop builds a new Resolver
// whenever control transfers to another browsing context.
type Resolver struct {
	page        browser.Page
	fastTimeout time.Duration
	logger      zerolog.Logger
}

func New(page browser.Page, fastTimeout time.Duration, logger zerolog.Logger) *Resolver {
	return &Resolver{page: page, fastTimeout: fastTimeout, logger: logger}
}

// Page returns the browsing context this resolver is bound to.
func (r *Resolver) Page() browser.Page { return r.page }

// Resolve tries each applicable strategy in order and returns the first
// handle that becomes visible within the fast-fail window. It does not
// wait for slow-loading elements past that window; failing fast keeps the
// per-step latency bounded even when most strategies miss.
func (r *Resolver) Resolve(ctx context.Context, t scenario.Target) (browser.Element, error) {
	if t.Empty() {
		return nil, fmt.Errorf("%w: empty target", ErrNotResolved)
	}

	if t.Role != "" {
		if t.Name != "" {
			if el := r.page.ByRole(t.Role, t.Name); r.visible(ctx, el) {
				r.hit("role+name", t)
				return el, nil
			}
		}
		// A lone element of the wanted role is accepted even when its
		// name drifted; renamed buttons are the most common UI churn.
		roleOnly := r.page.ByRoleOnly(t.Role)
		if n, err := roleOnly.Count(ctx); err == nil && n == 1 && r.visible(ctx, roleOnly) {
			r.hit("role-only", t)
			return roleOnly, nil
		}
	}

	if t.Label != "" {
		if el := r.page.ByLabel(t.Label); r.visible(ctx, el) {
			r.hit("label", t)
			return el, nil
		}
	}

	if t.Text != "" {
		if el := r.page.ByText(t.Text); r.visible(ctx, el) {
			r.hit("text", t)
			return el, nil
		}
	}

	if t.Placeholder != "" {
		if el := r.page.ByPlaceholder(t.Placeholder); r.visible(ctx, el) {
			r.hit("placeholder", t)
			return el, nil
		}
	}

	if t.TestID != "" {
		if el := r.page.ByTestID(t.TestID); r.visible(ctx, el) {
			r.hit("testid", t)
			return el, nil
		}
	}

	if t.Selector != "" {
		if el := r.page.BySelector(t.Selector); r.visible(ctx, el) {
			r.hit("selector", t)
			return el, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotResolved, t.Brief())
}

func (r *Resolver) visible(ctx context.Context, el browser.Element) bool {
	return el.WaitVisible(ctx, r.fastTimeout) == nil
}

func (r *Resolver) hit(strategy string, t scenario.Target) {
	r.logger.Debug().Str("strategy", strategy).Str("target", t.Brief()).Msg("resolved")
}
