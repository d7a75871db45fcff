package report_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zerotouch/qa-runner/internal/browser/browsertest"
	"github.com/zerotouch/qa-runner/internal/report"
	"github.com/zerotouch/qa-runner/internal/runner"
	"github.com/zerotouch/qa-runner/internal/scenario"
)

func newWorkspace(t *testing.T) *report.Workspace {
	t.Helper()
	w, err := report.NewWorkspace(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NotEmpty(t, w.RunID())
	return w
}

func TestEventAppendsJSONLines(t *testing.T) {
	w := newWorkspace(t)
	w.Event(map[string]any{"phase": "execute", "step": 1, "event": "start"})
	w.Event(map[string]any{"phase": "execute", "step": 1, "event": "pass"})

	f, err := os.Open(filepath.Join(w.Dir(), "run_log.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var rows []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		rows = append(rows, row)
	}
	require.NoError(t, sc.Err())
	require.Len(t, rows, 2)
	require.Equal(t, w.RunID(), rows[0]["run_id"])
	require.NotEmpty(t, rows[0]["ts"])
	require.Equal(t, "start", rows[0]["event"])
	require.Equal(t, "pass", rows[1]["event"])
}

func TestWriteHealedScenarioRoundTrips(t *testing.T) {
	w := newWorkspace(t)
	steps := []scenario.Step{{
		ID:     1,
		Action: scenario.ActionClick,
		Target: scenario.Target{Role: "button", Name: "Sign In"},
	}}
	require.NoError(t, w.WriteHealedScenario(steps))

	data, err := os.ReadFile(filepath.Join(w.Dir(), "test_scenario.healed.json"))
	require.NoError(t, err)

	var got []scenario.Step
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, steps, got)
}

func TestWriteHTMLReport(t *testing.T) {
	w := newWorkspace(t)
	records := []runner.Record{
		{Step: 1, Action: scenario.ActionNavigate, Description: "open login page", HealStage: "none", Status: runner.StatusPass, Evidence: "step_1_pass.png"},
		{Step: 2, Action: scenario.ActionClick, Description: "press login", HealStage: "candidate_search", Status: runner.StatusPass, Evidence: "step_2_pass.png"},
		{Step: 3, Action: scenario.ActionAssertText, HealStage: "heal_failed", Status: runner.StatusFail, Error: "text \"Welcome\" not found"},
	}
	require.NoError(t, w.WriteHTMLReport(records))

	data, err := os.ReadFile(filepath.Join(w.Dir(), "index.html"))
	require.NoError(t, err)
	html := string(data)

	require.Contains(t, html, w.RunID())
	require.Contains(t, html, "candidate_search")
	require.Contains(t, html, `class="pass"`)
	require.Contains(t, html, `class="fail"`)
	require.Contains(t, html, `href="step_2_pass.png"`)
	// The error text is escaped into the description column.
	require.Contains(t, html, "not found")
}

func TestCaptureEvidence(t *testing.T) {
	w := newWorkspace(t)
	page := &browsertest.Page{}

	name, err := w.CaptureEvidence(context.Background(), page, "step_1_pass.png")
	require.NoError(t, err)
	require.Equal(t, "step_1_pass.png", name)
	require.Equal(t, []string{filepath.Join(w.Dir(), "step_1_pass.png")}, page.Shots)
}
