// Package report is the artifact sink: the append-only JSONL run log,
// the healed scenario file, per-step screenshot evidence and the HTML
// summary report.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zerotouch/qa-runner/internal/browser"
	"github.com/zerotouch/qa-runner/internal/runner"
	"github.com/zerotouch/qa-runner/internal/scenario"
)

const (
	healedScenarioFile = "test_scenario.healed.json"
	runLogFile         = "run_log.jsonl"
	reportFile         = "index.html"
)

// Workspace owns one run's output directory. Every artifact of a run is
// stamped with the same run id.
type Workspace struct {
	dir    string
	runID  string
	logger zerolog.Logger
}

func NewWorkspace(dir string, logger zerolog.Logger) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &Workspace{dir: dir, runID: uuid.NewString(), logger: logger}, nil
}

func (w *Workspace) RunID() string { return w.runID }
func (w *Workspace) Dir() string   { return w.dir }

// Event appends one row to the JSONL run log. Logging failures must not
// break a running scenario, so they are reported and dropped.
func (w *Workspace) Event(fields map[string]any) {
	row := map[string]any{
		"ts":     time.Now().Format(time.RFC3339),
		"run_id": w.runID,
	}
	for k, v := range fields {
		row[k] = v
	}
	data, err := json.Marshal(row)
	if err != nil {
		w.logger.Warn().Err(err).Msg("marshal run log event")
		return
	}
	f, err := os.OpenFile(filepath.Join(w.dir, runLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		w.logger.Warn().Err(err).Msg("open run log")
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		w.logger.Warn().Err(err).Msg("append run log")
	}
}

// CaptureEvidence screenshots the page into the workspace and returns the
// file name the report links to.
func (w *Workspace) CaptureEvidence(ctx context.Context, page browser.Page, name string) (string, error) {
	if err := page.Screenshot(ctx, filepath.Join(w.dir, name)); err != nil {
		return "", err
	}
	return name, nil
}

// WriteHealedScenario persists the scenario with all target mutations the
// healer made, even after a failed run.
func (w *Workspace) WriteHealedScenario(steps []scenario.Step) error {
	data, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal healed scenario: %w", err)
	}
	return os.WriteFile(filepath.Join(w.dir, healedScenarioFile), data, 0o644)
}

// WriteHTMLReport renders the single-file run summary.
func (w *Workspace) WriteHTMLReport(records []runner.Record) error {
	f, err := os.Create(filepath.Join(w.dir, reportFile))
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	return reportTmpl.Execute(f, reportData{
		RunID:   w.runID,
		Records: records,
	})
}

type reportData struct {
	RunID   string
	Records []runner.Record
}

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"statusClass": func(status string) string {
		if status == runner.StatusPass {
			return "pass"
		}
		return "fail"
	},
}).Parse(`<html>
<head>
<meta charset="utf-8"/>
<style>
  body { font-family: Arial, sans-serif; margin: 18px; }
  table { border-collapse: collapse; width: 100%; }
  th, td { border: 1px solid #ddd; padding: 8px; vertical-align: top; }
  th { background: #f2f2f2; }
  .pass { color: #137333; font-weight: bold; }
  .fail { color: #b3261e; font-weight: bold; }
  .mono { font-family: Menlo, Consolas, monospace; font-size: 12px; }
</style>
</head>
<body>
<h2>Scenario Run Report</h2>
<div>
  <span>Run:</span> <span class="mono">{{.RunID}}</span>
  | <a href="test_scenario.healed.json">test_scenario.healed.json</a>
  | <a href="run_log.jsonl">run_log.jsonl</a>
</div>
<br/>
<table>
<tr>
  <th style="width:60px;">Step</th>
  <th style="width:110px;">Action</th>
  <th>Description</th>
  <th style="width:130px;">Healing</th>
  <th style="width:80px;">Result</th>
  <th style="width:100px;">Evidence</th>
</tr>
{{range .Records}}
<tr>
  <td class="mono">{{.Step}}</td>
  <td class="mono">{{.Action}}</td>
  <td>{{.Description}}{{if .Error}}<br/><span class="mono">{{.Error}}</span>{{end}}</td>
  <td class="mono">{{.HealStage}}</td>
  <td class="{{statusClass .Status}}">{{.Status}}</td>
  <td>{{if .Evidence}}<a href="{{.Evidence}}">open</a>{{else}}-{{end}}</td>
</tr>
{{end}}
</table>
</body>
</html>
`))
