// Package heal implements the recovery protocol that runs after a step
// fails: accessibility candidate search and the bounded escalation
// controller that tries declared fallbacks, ranked candidates and a
// model-proposed target in order.
package heal

import (
	"math"
	"sort"
	"strings"

	"github.com/zerotouch/qa-runner/internal/browser"
	"github.com/zerotouch/qa-runner/internal/scenario"
)

// Candidate is a role/name pair harvested from the accessibility tree.
// Candidates live for one healing attempt on one page state.
type Candidate struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

// Ranked is a candidate with its similarity score against the original
// target's query text.
type Ranked struct {
	Candidate
	Score float64 `json:"score"`
}

// Collect walks the accessibility tree depth-first and keeps every node
// that has both a role and an accessible name, de-duplicated by pair.
// Tree order is preserved; Rank relies on it for stable tie-breaks.
func Collect(root *browser.AXNode) []Candidate {
	if root == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []Candidate
	var walk func(n *browser.AXNode)
	walk = func(n *browser.AXNode) {
		if n.Role != "" && n.Name != "" {
			key := n.Role + "|" + n.Name
			if !seen[key] {
				seen[key] = true
				out = append(out, Candidate{Role: n.Role, Name: n.Name})
			}
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)
	return out
}

var (
	clickableRoles = map[string]bool{
		"button": true, "link": true, "menuitem": true,
		"tab": true, "checkbox": true, "radio": true,
	}
	fillableRoles = map[string]bool{
		"textbox": true, "searchbox": true, "combobox": true,
	}
)

// FilterByAction narrows candidates to roles that can plausibly receive
// the failed action. A replacement for a failed fill must accept input; a
// replacement for a click must be clickable. Other actions keep the full
// list.
func FilterByAction(action scenario.Action, candidates []Candidate) []Candidate {
	var allowed map[string]bool
	switch action {
	case scenario.ActionClick, scenario.ActionDoubleClick, scenario.ActionHover:
		allowed = clickableRoles
	case scenario.ActionFill:
		allowed = fillableRoles
	default:
		return candidates
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if allowed[c.Role] {
			out = append(out, c)
		}
	}
	return out
}

const (
	// containmentFloor rewards partial matches aggressively: "log" should
	// rank "login" near the top even though the ratio alone is lower.
	containmentFloor = 0.85
	roleBonus        = 0.10
)

// Rank scores candidates against the query text and the preferred role,
// highest first. Equal scores keep their tree-walk order.
func Rank(query, preferredRole string, candidates []Candidate) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		s := Similarity(query, c.Name)
		if contains(query, c.Name) {
			s = math.Max(s, containmentFloor)
		}
		if preferredRole != "" && c.Role == preferredRole {
			s += roleBonus
		}
		if s > 1 {
			s = 1
		}
		ranked = append(ranked, Ranked{Candidate: c, Score: round3(s)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func contains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// Similarity is the classic matching-blocks ratio: twice the total length
// of the longest matching blocks over the combined length, in [0,1],
// case-insensitive.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	m := matchedLen(ra, rb)
	return float64(2*m) / float64(len(ra)+len(rb))
}

func matchedLen(a, b []rune) int {
	ai, bi, size := longestBlock(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchedLen(a[:ai], b[:bi]) +
		matchedLen(a[ai+size:], b[bi+size:])
}

// longestBlock finds the longest common substring, preferring the
// earliest occurrence in a, then in b.
func longestBlock(a, b []rune) (int, int, int) {
	bestA, bestB, bestSize := 0, 0, 0
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			if a[i] == b[j] {
				cur[j+1] = prev[j] + 1
				if cur[j+1] > bestSize {
					bestSize = cur[j+1]
					bestA = i - bestSize + 1
					bestB = j - bestSize + 1
				}
			} else {
				cur[j+1] = 0
			}
		}
		prev, cur = cur, prev
	}
	return bestA, bestB, bestSize
}
