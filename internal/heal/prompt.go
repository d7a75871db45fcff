package heal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zerotouch/qa-runner/internal/scenario"
)

// Proposal is the replacement the completion service suggests for a
// failed step: a new target plus a refreshed fallback list.
type Proposal struct {
	Target    scenario.Target   `json:"target"`
	Fallbacks []scenario.Target `json:"fallback_targets"`
}

// BuildPrompt assembles the recovery request: the failed action and
// target, the latest error, the page address and the top-ranked
// candidates currently on screen. The model must answer with one JSON
// object matching Proposal.
func BuildPrompt(action scenario.Action, failed scenario.Target, errText, pageURL string, ranked []Ranked, topN int) string {
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	failedJSON, _ := json.Marshal(failed)
	candidatesJSON, _ := json.MarshalIndent(ranked, "", "  ")

	var b strings.Builder
	b.WriteString("[Self-Healing Request]\n")
	b.WriteString("A test step failed because its target element could not be used. ")
	b.WriteString("Propose a working replacement target and fallback_targets as JSON.\n\n")
	fmt.Fprintf(&b, "[Action]\n%s\n\n", action)
	fmt.Fprintf(&b, "[Failed Target]\n%s\n\n", failedJSON)
	fmt.Fprintf(&b, "[Error]\n%s\n\n", errText)
	fmt.Fprintf(&b, "[URL]\n%s\n\n", pageURL)
	fmt.Fprintf(&b, "[Candidate Elements]\n%s\n\n", candidatesJSON)
	b.WriteString(`[Output Rules]
1. Respond with exactly one JSON object and nothing else.
2. Build target from role+name, label or text; avoid invented selectors.
3. Include at least two fallback_targets.

[Output Schema]
{
  "target": {"role": "...", "name": "..."},
  "fallback_targets": [
    {"role": "...", "name": "..."},
    {"text": "..."}
  ]
}`)
	return b.String()
}

// ParseProposal extracts the outermost JSON object from the response and
// decodes it. Models often wrap the object in prose or code fences; only
// the brace-balanced span is parsed.
func ParseProposal(text string) (Proposal, error) {
	raw, err := extractJSONObject(text)
	if err != nil {
		return Proposal{}, err
	}
	var p Proposal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Proposal{}, fmt.Errorf("heal proposal parse: %w", err)
	}
	return p, nil
}

// extractJSONObject returns the first brace-balanced {...} span, string
// literals respected.
func extractJSONObject(text string) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("response contains no JSON object")
}
