// Package scenario defines the declarative test-step model the runner
// executes: intent-based element targets, a fixed action vocabulary, and
// loaders for JSON and YAML scenario files.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedAction marks a step whose action is outside the fixed
// vocabulary. It is never healed and aborts the scenario immediately.
var ErrUnsupportedAction = errors.New("unsupported action")

// Action is one entry of the fixed step vocabulary.
type Action string

const (
	ActionNavigate       Action = "navigate"
	ActionClick          Action = "click"
	ActionDoubleClick    Action = "double-click"
	ActionHover          Action = "hover"
	ActionFill           Action = "fill"
	ActionSelectOption   Action = "select-option"
	ActionCheck          Action = "check"
	ActionPressKey       Action = "press-key"
	ActionScrollIntoView Action = "scroll-into-view"
	ActionAssertVisible  Action = "assert-visible"
	ActionAssertText     Action = "assert-text"
	ActionWait           Action = "wait"
	ActionGoBack         Action = "go-back"
	ActionGoForward      Action = "go-forward"
)

var supported = map[Action]bool{
	ActionNavigate:       true,
	ActionClick:          true,
	ActionDoubleClick:    true,
	ActionHover:          true,
	ActionFill:           true,
	ActionSelectOption:   true,
	ActionCheck:          true,
	ActionPressKey:       true,
	ActionScrollIntoView: true,
	ActionAssertVisible:  true,
	ActionAssertText:     true,
	ActionWait:           true,
	ActionGoBack:         true,
	ActionGoForward:      true,
}

// Supported reports whether a is part of the vocabulary.
func (a Action) Supported() bool { return supported[a] }

// Healable reports whether failures of this action may enter the
// escalation controller. Navigation, waits, key presses and scrolling are
// excluded: substituting a different target cannot fix them.
func (a Action) Healable() bool {
	switch a {
	case ActionClick, ActionDoubleClick, ActionHover, ActionFill,
		ActionSelectOption, ActionCheck, ActionAssertVisible, ActionAssertText:
		return true
	default:
		return false
	}
}

// Target describes which element a step refers to by intent: semantic
// attributes a user would recognize, not a brittle selector. Selector is
// kept as the last-resort escape hatch.
type Target struct {
	Role        string `json:"role,omitempty" yaml:"role,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Label       string `json:"label,omitempty" yaml:"label,omitempty"`
	Text        string `json:"text,omitempty" yaml:"text,omitempty"`
	Placeholder string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	TestID      string `json:"testid,omitempty" yaml:"testid,omitempty"`
	Selector    string `json:"selector,omitempty" yaml:"selector,omitempty"`
}

// Empty reports whether no attribute is populated. An empty target can
// never resolve.
func (t Target) Empty() bool {
	return t == Target{}
}

// Query returns the text used when searching for replacement candidates:
// accessible name first, then visible text, then form label.
func (t Target) Query() string {
	if t.Name != "" {
		return t.Name
	}
	if t.Text != "" {
		return t.Text
	}
	return t.Label
}

// Brief is a compact form for logs.
func (t Target) Brief() string {
	return fmt.Sprintf("role=%s name=%s label=%s text=%s", t.Role, t.Name, t.Label, t.Text)
}

// UnmarshalJSON accepts either a structured target or a free-form string.
// A bare string is treated as visible text, which keeps hand-written
// scenarios intent-based instead of selector-based.
func (t *Target) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Target{Text: s}
		return nil
	}
	type plain Target
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Target(p)
	return nil
}

// UnmarshalYAML mirrors the JSON tagged-union rule for YAML scenarios.
func (t *Target) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = Target{Text: node.Value}
		return nil
	}
	type plain Target
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = Target(p)
	return nil
}

// Value carries the action-specific payload (URL, input text, key name,
// wait duration in milliseconds). Scenario authors may write it as a bare
// number; it is normalized to a string at parse time.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("value must be string or number: %w", err)
	}
	*v = Value(n.String())
	return nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("value must be a scalar")
	}
	*v = Value(node.Value)
	return nil
}

func (v Value) String() string { return string(v) }

// Step is one scenario instruction. The healer rewrites Target (and on a
// model heal, Fallbacks) through the execution loop; nothing else mutates
// a step after parsing.
type Step struct {
	ID          int      `json:"step,omitempty" yaml:"step,omitempty"`
	Action      Action   `json:"action" yaml:"action"`
	Value       Value    `json:"value,omitempty" yaml:"value,omitempty"`
	Target      Target   `json:"target,omitempty" yaml:"target,omitempty"`
	Fallbacks   []Target `json:"fallback_targets,omitempty" yaml:"fallback_targets,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Validate checks the action vocabulary for every step and assigns stable
// sequential ids to steps that lack one.
func Validate(steps []Step) error {
	for i := range steps {
		if steps[i].ID == 0 {
			steps[i].ID = i + 1
		}
		if !steps[i].Action.Supported() {
			return fmt.Errorf("step %d: %w: %q", steps[i].ID, ErrUnsupportedAction, steps[i].Action)
		}
	}
	return nil
}

// Clone deep-copies a scenario so healing mutations never touch the
// caller's original.
func Clone(steps []Step) []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	for i := range out {
		if len(steps[i].Fallbacks) > 0 {
			out[i].Fallbacks = append([]Target(nil), steps[i].Fallbacks...)
		}
	}
	return out
}

// Load reads a scenario file, JSON or YAML by extension, validates the
// action vocabulary and assigns missing step ids.
func Load(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var steps []Step
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &steps); err != nil {
			return nil, fmt.Errorf("parse yaml scenario: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &steps); err != nil {
			return nil, fmt.Errorf("parse json scenario: %w", err)
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("scenario %s is empty", path)
	}
	if err := Validate(steps); err != nil {
		return nil, err
	}
	return steps, nil
}
