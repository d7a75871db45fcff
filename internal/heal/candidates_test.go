package heal_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerotouch/qa-runner/internal/browser"
	"github.com/zerotouch/qa-runner/internal/heal"
	"github.com/zerotouch/qa-runner/internal/scenario"
)

func TestCollectWalksAndDeduplicates(t *testing.T) {
	tree := &browser.AXNode{
		Role: "document", Name: "Login Page",
		Children: []*browser.AXNode{
			{Role: "navigation", Children: []*browser.AXNode{
				{Role: "link", Name: "Home"},
				{Role: "link", Name: "Home"},
			}},
			{Role: "main", Children: []*browser.AXNode{
				{Role: "button", Name: "Sign In"},
				{Role: "textbox", Name: "Email"},
				{Role: "generic", Name: ""},
			}},
		},
	}

	got := heal.Collect(tree)
	require.Equal(t, []heal.Candidate{
		{Role: "document", Name: "Login Page"},
		{Role: "link", Name: "Home"},
		{Role: "button", Name: "Sign In"},
		{Role: "textbox", Name: "Email"},
	}, got)
}

func TestCollectNilTree(t *testing.T) {
	require.Empty(t, heal.Collect(nil))
}

func TestFilterByAction(t *testing.T) {
	candidates := []heal.Candidate{
		{Role: "button", Name: "Sign In"},
		{Role: "link", Name: "Help"},
		{Role: "textbox", Name: "Email"},
		{Role: "heading", Name: "Welcome"},
	}

	clickable := heal.FilterByAction(scenario.ActionClick, candidates)
	require.Equal(t, []heal.Candidate{
		{Role: "button", Name: "Sign In"},
		{Role: "link", Name: "Help"},
	}, clickable)

	fillable := heal.FilterByAction(scenario.ActionFill, candidates)
	require.Equal(t, []heal.Candidate{{Role: "textbox", Name: "Email"}}, fillable)

	// Assertions can retarget anything with a name.
	require.Equal(t, candidates, heal.FilterByAction(scenario.ActionAssertText, candidates))
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"login", "login", 1},
		{"Login", "LOGIN", 1},
		{"log", "login", 0.75},
		{"login", "sign in", 0.5},
		{"", "login", 0},
		{"abc", "xyz", 0},
	}
	for _, tc := range cases {
		require.InDelta(t, tc.want, heal.Similarity(tc.a, tc.b), 1e-9, "Similarity(%q, %q)", tc.a, tc.b)
	}
}

func TestRankContainmentFloor(t *testing.T) {
	// "log" is a substring of "login"; partial matches rank near the top
	// even though the raw ratio is lower.
	ranked := heal.Rank("log", "", []heal.Candidate{{Role: "button", Name: "login"}})
	require.Len(t, ranked, 1)
	require.Equal(t, 0.85, ranked[0].Score)
}

func TestRankRoleBonusAndClamp(t *testing.T) {
	ranked := heal.Rank("Login", "button", []heal.Candidate{
		{Role: "button", Name: "Login"},
		{Role: "link", Name: "Login"},
	})
	require.Len(t, ranked, 2)
	// Exact match plus role bonus clamps at 1.
	require.Equal(t, "button", ranked[0].Role)
	require.Equal(t, 1.0, ranked[0].Score)
	require.Equal(t, "link", ranked[1].Role)
	require.Equal(t, 1.0, ranked[1].Score)
}

func TestRankOrdersByScoreKeepingTreeOrderOnTies(t *testing.T) {
	candidates := []heal.Candidate{
		{Role: "link", Name: "Help"},
		{Role: "button", Name: "Sign In"},
		{Role: "button", Name: "Login"},
		{Role: "link", Name: "Sign In"},
	}
	ranked := heal.Rank("Sign In", "button", candidates)
	require.Len(t, ranked, 4)
	// Both exact matches score 1.0; the tree-order tie-break puts the
	// button first because it was collected first.
	require.Equal(t, heal.Candidate{Role: "button", Name: "Sign In"}, ranked[0].Candidate)
	require.Equal(t, heal.Candidate{Role: "link", Name: "Sign In"}, ranked[1].Candidate)
	require.Equal(t, ranked[0].Score, ranked[1].Score)
	require.Equal(t, "Login", ranked[2].Name)
	require.Equal(t, "Help", ranked[3].Name)
}

func TestRankIsIdempotent(t *testing.T) {
	candidates := []heal.Candidate{
		{Role: "button", Name: "Sign In"},
		{Role: "button", Name: "Sign Up"},
	}
	first := heal.Rank("Sign In", "button", candidates)
	second := heal.Rank("Sign In", "button", candidates)
	require.Equal(t, first, second)
}
