package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zerotouch/qa-runner/internal/browser"
	"github.com/zerotouch/qa-runner/internal/browser/browsertest"
	"github.com/zerotouch/qa-runner/internal/config"
	"github.com/zerotouch/qa-runner/internal/heal"
	"github.com/zerotouch/qa-runner/internal/runner"
	"github.com/zerotouch/qa-runner/internal/scenario"
)

// memorySink collects run events in memory and fakes evidence capture.
type memorySink struct {
	events   []map[string]any
	captured []string
}

func (s *memorySink) Event(fields map[string]any) {
	s.events = append(s.events, fields)
}

func (s *memorySink) CaptureEvidence(ctx context.Context, page browser.Page, name string) (string, error) {
	if err := page.Screenshot(ctx, name); err != nil {
		return "", err
	}
	s.captured = append(s.captured, name)
	return name, nil
}

func newRunner(session *browsertest.Session, cfg config.Config) (*runner.Runner, *memorySink) {
	sink := &memorySink{}
	healer := heal.NewController(cfg, nil, zerolog.Nop())
	return runner.New(cfg, session, healer, sink, zerolog.Nop()), sink
}

func TestExecuteHealsRenamedButton(t *testing.T) {
	// The scenario still says Login, the page says Sign In. Candidate
	// search must substitute the new name and let the run pass.
	// A second button keeps the lone-role-match shortcut out of play; the
	// renamed button has to be found by candidate search.
	signIn := &browsertest.Node{Role: "button", Name: "Sign In", Visible: true}
	reset := &browsertest.Node{Role: "button", Name: "Reset", Visible: true}
	email := &browsertest.Node{Role: "textbox", Name: "Email", Label: "Email", Visible: true}
	page := &browsertest.Page{Nodes: []*browsertest.Node{signIn, reset, email}}
	session := browsertest.NewSession(page)

	steps := []scenario.Step{
		{Action: scenario.ActionNavigate, Value: "https://example.test/login"},
		{Action: scenario.ActionFill, Target: scenario.Target{Label: "Email"}, Value: "user@example.test"},
		{Action: scenario.ActionClick, Target: scenario.Target{Role: "button", Name: "Login"}},
	}

	r, sink := newRunner(session, config.Default())
	records, healed, err := r.Execute(context.Background(), steps)
	require.NoError(t, err)
	require.Len(t, records, 3)

	require.Equal(t, runner.StatusPass, records[0].Status)
	require.Equal(t, heal.StageNone, records[0].HealStage)
	require.Equal(t, []string{"https://example.test/login"}, page.History)

	require.Equal(t, []string{"user@example.test"}, email.Filled)

	require.Equal(t, runner.StatusPass, records[2].Status)
	require.Equal(t, heal.StageCandidateSearch, records[2].HealStage)
	require.Equal(t, 1, signIn.Clicks)

	// The healed scenario carries the working target for the next run.
	require.Equal(t, scenario.Target{Role: "button", Name: "Sign In"}, healed[2].Target)
	// The caller's scenario is untouched.
	require.Equal(t, "Login", steps[2].Target.Name)

	require.Equal(t, []string{"step_1_pass.png", "step_2_pass.png", "step_3_pass.png"}, sink.captured)
	require.NotEmpty(t, sink.events)
}

func TestExecuteAbortsOnUnrecoveredFailure(t *testing.T) {
	// Two buttons so the lone-role-match shortcut does not apply, both
	// with names too far from Checkout for candidate search to accept.
	signIn := &browsertest.Node{Role: "button", Name: "Sign In", Visible: true}
	signUp := &browsertest.Node{Role: "button", Name: "Sign Up", Visible: true}
	page := &browsertest.Page{Nodes: []*browsertest.Node{signIn, signUp}}
	session := browsertest.NewSession(page)

	steps := []scenario.Step{
		{Action: scenario.ActionNavigate, Value: "https://example.test"},
		{Action: scenario.ActionClick, Target: scenario.Target{Role: "button", Name: "Checkout"}},
		{Action: scenario.ActionClick, Target: scenario.Target{Role: "button", Name: "Sign In"}},
	}

	r, sink := newRunner(session, config.Default())
	records, healed, err := r.Execute(context.Background(), steps)
	require.ErrorIs(t, err, runner.ErrScenarioAborted)

	// The failing step is recorded, later steps never run.
	require.Len(t, records, 2)
	require.Equal(t, runner.StatusFail, records[1].Status)
	require.Equal(t, heal.StageHealFailed, records[1].HealStage)
	require.NotEmpty(t, records[1].Error)
	require.Zero(t, signIn.Clicks)
	require.Zero(t, signUp.Clicks)

	// Failed healing leaves the original target in place.
	require.Equal(t, "Checkout", healed[1].Target.Name)
	require.Equal(t, []string{"step_1_pass.png", "step_2_fail.png"}, sink.captured)
}

func TestExecuteNavigationFailureIsNeverHealed(t *testing.T) {
	navErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
	page := &browsertest.Page{NavErr: navErr}
	session := browsertest.NewSession(page)

	steps := []scenario.Step{
		{Action: scenario.ActionNavigate, Value: "https://no-such-host.test"},
	}

	r, _ := newRunner(session, config.Default())
	records, _, err := r.Execute(context.Background(), steps)
	require.ErrorIs(t, err, runner.ErrScenarioAborted)
	require.Len(t, records, 1)
	require.Equal(t, runner.StatusFail, records[0].Status)
	require.Equal(t, heal.StageNone, records[0].HealStage)
}

func TestExecuteFollowsNewBrowsingContext(t *testing.T) {
	second := &browsertest.Page{
		Addr:  "https://example.test/popup",
		Nodes: []*browsertest.Node{{Role: "button", Name: "Continue", Visible: true}},
	}
	session := browsertest.NewSession()

	opener := &browsertest.Node{Role: "link", Name: "Open Help", Visible: true}
	opener.OnClick = func() { session.Open(second) }
	first := &browsertest.Page{
		Addr:  "https://example.test",
		Nodes: []*browsertest.Node{opener},
	}
	session.Open(first)

	steps := []scenario.Step{
		{Action: scenario.ActionClick, Target: scenario.Target{Role: "link", Name: "Open Help"}},
		{Action: scenario.ActionClick, Target: scenario.Target{Role: "button", Name: "Continue"}},
	}

	r, _ := newRunner(session, config.Default())
	records, _, err := r.Execute(context.Background(), steps)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 1, second.Nodes[0].Clicks)
	// Control moved to the popup right after the click, so evidence for
	// both steps is taken from it.
	require.Empty(t, first.Shots)
	require.Equal(t, []string{"step_1_pass.png", "step_2_pass.png"}, second.Shots)
}

func TestExecuteRejectsUnknownAction(t *testing.T) {
	page, _ := browsertest.NewButtonPage("button", "Login")
	session := browsertest.NewSession(page)

	steps := []scenario.Step{{Action: "teleport"}}

	r, _ := newRunner(session, config.Default())
	records, _, err := r.Execute(context.Background(), steps)
	require.ErrorIs(t, err, scenario.ErrUnsupportedAction)
	require.Empty(t, records)
}

func TestExecuteAssertions(t *testing.T) {
	page := &browsertest.Page{Nodes: []*browsertest.Node{
		{Role: "heading", Name: "Welcome", Text: "Welcome back", InnerText: "Welcome back, Kim!", Visible: true},
	}}
	session := browsertest.NewSession(page)

	steps := []scenario.Step{
		{Action: scenario.ActionAssertVisible, Target: scenario.Target{Role: "heading", Name: "Welcome"}},
		{Action: scenario.ActionAssertText, Target: scenario.Target{Text: "Welcome back"}, Value: "welcome back, kim"},
	}

	r, _ := newRunner(session, config.Default())
	records, _, err := r.Execute(context.Background(), steps)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, runner.StatusPass, records[1].Status)
}

func TestExecuteEmptySession(t *testing.T) {
	session := browsertest.NewSession()
	r, _ := newRunner(session, config.Default())

	_, _, err := r.Execute(context.Background(), []scenario.Step{
		{Action: scenario.ActionNavigate, Value: "https://example.test"},
	})
	require.Error(t, err)
}
