// Package browser is the boundary to the automation backend. The engine
// only sees the Session/Page/Element interfaces; the playwright-backed
// implementation lives in playwright.go.
package browser

import (
	"context"
	"time"
)

// Element is a lazy, possibly multi-match handle to something on a page.
// Nothing is looked up until an operation or a visibility wait runs.
type Element interface {
	// WaitVisible blocks until the first match is visible or the timeout
	// elapses. The resolver calls it with the fast-fail window; actions
	// use the longer action timeout.
	WaitVisible(ctx context.Context, timeout time.Duration) error
	// Count returns how many elements currently match.
	Count(ctx context.Context) (int, error)

	Click(ctx context.Context) error
	DoubleClick(ctx context.Context) error
	Hover(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Check(ctx context.Context) error
	Press(ctx context.Context, key string) error
	SelectOption(ctx context.Context, label string) error
	ScrollIntoView(ctx context.Context) error
	Text(ctx context.Context) (string, error)
}

// AXNode is one node of the accessibility snapshot: semantic role,
// computed accessible name, nested children.
type AXNode struct {
	Role     string    `json:"role"`
	Name     string    `json:"name"`
	Children []*AXNode `json:"children,omitempty"`
}

// Page is one browsing context (tab/window). Query methods are lazy and
// never fail themselves; failures surface on the returned Element.
type Page interface {
	ByRole(role, name string) Element
	ByRoleOnly(role string) Element
	ByLabel(label string) Element
	ByText(text string) Element
	ByPlaceholder(text string) Element
	ByTestID(id string) Element
	BySelector(selector string) Element

	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	URL() string

	// Accessibility returns the page's current accessibility tree.
	Accessibility(ctx context.Context) (*AXNode, error)
	// Screenshot writes an evidence capture to path.
	Screenshot(ctx context.Context, path string) error
}

// Session owns a set of browsing contexts. Pages is ordered by creation,
// so the newest context opened as an action side effect is always last.
type Session interface {
	Pages() []Page
	Close(ctx context.Context) error
}
