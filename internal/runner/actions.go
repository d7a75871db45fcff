package runner

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zerotouch/qa-runner/internal/browser"
	"github.com/zerotouch/qa-runner/internal/resolver"
	"github.com/zerotouch/qa-runner/internal/scenario"
)

const defaultWait = 1500 * time.Millisecond

// perform executes one step's action. Target-based actions go through the
// resolver; navigation-family actions act on the page directly.
func (r *Runner) perform(ctx context.Context, res *resolver.Resolver, step scenario.Step) error {
	if !step.Action.Supported() {
		return fmt.Errorf("step %d: %w: %q", step.ID, scenario.ErrUnsupportedAction, step.Action)
	}

	page := res.Page()
	switch step.Action {
	case scenario.ActionNavigate:
		return page.Navigate(ctx, step.Value.String())
	case scenario.ActionGoBack:
		return page.GoBack(ctx)
	case scenario.ActionGoForward:
		return page.GoForward(ctx)
	case scenario.ActionWait:
		return sleep(ctx, parseWait(step.Value))
	}

	el, err := res.Resolve(ctx, step.Target)
	if err != nil {
		return err
	}

	switch step.Action {
	case scenario.ActionClick:
		err = el.Click(ctx)
	case scenario.ActionDoubleClick:
		err = el.DoubleClick(ctx)
	case scenario.ActionHover:
		err = el.Hover(ctx)
	case scenario.ActionFill:
		err = el.Fill(ctx, step.Value.String())
	case scenario.ActionSelectOption:
		err = el.SelectOption(ctx, step.Value.String())
	case scenario.ActionCheck:
		err = el.Check(ctx)
	case scenario.ActionPressKey:
		err = el.Press(ctx, step.Value.String())
	case scenario.ActionScrollIntoView:
		err = el.ScrollIntoView(ctx)
	case scenario.ActionAssertVisible:
		err = el.WaitVisible(ctx, r.cfg.ActionTimeout)
	case scenario.ActionAssertText:
		err = assertText(ctx, el, step.Value.String())
	}
	if err != nil {
		return fmt.Errorf("%w: %s on %s: %v", ErrActionFailed, step.Action, step.Target.Brief(), err)
	}
	return nil
}

func assertText(ctx context.Context, el browser.Element, want string) error {
	got, err := el.Text(ctx)
	if err != nil {
		return err
	}
	if want == "" {
		return nil
	}
	if !strings.Contains(strings.ToLower(got), strings.ToLower(want)) {
		return fmt.Errorf("text %q not found in %q", want, truncateText(got, 200))
	}
	return nil
}

// parseWait reads the wait payload in milliseconds, keeping the default
// on anything unparseable.
func parseWait(v scenario.Value) time.Duration {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return defaultWait
	}
	ms, err := strconv.Atoi(s)
	if err != nil || ms <= 0 {
		return defaultWait
	}
	return time.Duration(ms) * time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
