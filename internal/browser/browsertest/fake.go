// Package browsertest provides an in-memory browser.Session used by the
// resolver, healing and runner tests. Pages are flat lists of nodes with
// the same attributes the resolver queries on; no timing is simulated, a
// visibility wait succeeds or fails immediately.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zerotouch/qa-runner/internal/browser"
)

// ErrNotVisible is returned by WaitVisible when no matching node is
// visible. It stands in for the backend's timeout error.
var ErrNotVisible = errors.New("browsertest: element not visible")

// Node is one fake DOM element.
type Node struct {
	Role        string
	Name        string
	Label       string
	Text        string
	Placeholder string
	TestID      string
	Selector    string

	Visible   bool
	InnerText string

	// ActionErr, when set, makes every action on this node fail. Models
	// "found but not interactable".
	ActionErr error
	// OnClick runs after a successful click; tests use it to open a new
	// page in the owning session.
	OnClick func()

	Clicks       int
	DoubleClicks int
	Hovers       int
	Checks       int
	Filled       []string
	Pressed      []string
	Selected     []string
	Scrolled     int
}

// Page implements browser.Page over a node list.
type Page struct {
	Nodes   []*Node
	Addr    string
	History []string
	Tree    *browser.AXNode

	NavErr error
	Shots  []string
}

var _ browser.Page = (*Page)(nil)

func (p *Page) match(pred func(*Node) bool) *FakeElement {
	var hits []*Node
	for _, n := range p.Nodes {
		if pred(n) {
			hits = append(hits, n)
		}
	}
	return &FakeElement{hits: hits}
}

func (p *Page) ByRole(role, name string) browser.Element {
	return p.match(func(n *Node) bool {
		return n.Role == role && strings.EqualFold(n.Name, name)
	})
}

func (p *Page) ByRoleOnly(role string) browser.Element {
	return p.match(func(n *Node) bool { return n.Role == role })
}

func (p *Page) ByLabel(label string) browser.Element {
	return p.match(func(n *Node) bool { return n.Label == label })
}

func (p *Page) ByText(text string) browser.Element {
	return p.match(func(n *Node) bool {
		return n.Text != "" && strings.Contains(strings.ToLower(n.Text), strings.ToLower(text))
	})
}

func (p *Page) ByPlaceholder(text string) browser.Element {
	return p.match(func(n *Node) bool { return n.Placeholder == text })
}

func (p *Page) ByTestID(id string) browser.Element {
	return p.match(func(n *Node) bool { return n.TestID == id })
}

func (p *Page) BySelector(selector string) browser.Element {
	return p.match(func(n *Node) bool { return n.Selector == selector })
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.NavErr != nil {
		return p.NavErr
	}
	p.History = append(p.History, url)
	p.Addr = url
	return nil
}

func (p *Page) GoBack(ctx context.Context) error    { return ctx.Err() }
func (p *Page) GoForward(ctx context.Context) error { return ctx.Err() }

func (p *Page) URL() string { return p.Addr }

// Accessibility returns Tree when set, otherwise a flat tree synthesized
// from the node list.
func (p *Page) Accessibility(ctx context.Context) (*browser.AXNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Tree != nil {
		return p.Tree, nil
	}
	root := &browser.AXNode{Role: "document", Name: p.Addr}
	for _, n := range p.Nodes {
		root.Children = append(root.Children, &browser.AXNode{Role: n.Role, Name: n.Name})
	}
	return root, nil
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Shots = append(p.Shots, path)
	return nil
}

// FakeElement implements browser.Element over the matched nodes.
type FakeElement struct {
	hits []*Node
}

var _ browser.Element = (*FakeElement)(nil)

func (e *FakeElement) first() (*Node, error) {
	for _, n := range e.hits {
		if n.Visible {
			return n, nil
		}
	}
	return nil, ErrNotVisible
}

func (e *FakeElement) WaitVisible(ctx context.Context, timeout time.Duration) error {
	_ = timeout
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.first()
	return err
}

func (e *FakeElement) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(e.hits), nil
}

func (e *FakeElement) act(ctx context.Context, do func(*Node)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := e.first()
	if err != nil {
		return err
	}
	if n.ActionErr != nil {
		return n.ActionErr
	}
	do(n)
	return nil
}

func (e *FakeElement) Click(ctx context.Context) error {
	return e.act(ctx, func(n *Node) {
		n.Clicks++
		if n.OnClick != nil {
			n.OnClick()
		}
	})
}

func (e *FakeElement) DoubleClick(ctx context.Context) error {
	return e.act(ctx, func(n *Node) { n.DoubleClicks++ })
}

func (e *FakeElement) Hover(ctx context.Context) error {
	return e.act(ctx, func(n *Node) { n.Hovers++ })
}

func (e *FakeElement) Fill(ctx context.Context, value string) error {
	return e.act(ctx, func(n *Node) { n.Filled = append(n.Filled, value) })
}

func (e *FakeElement) Check(ctx context.Context) error {
	return e.act(ctx, func(n *Node) { n.Checks++ })
}

func (e *FakeElement) Press(ctx context.Context, key string) error {
	return e.act(ctx, func(n *Node) { n.Pressed = append(n.Pressed, key) })
}

func (e *FakeElement) SelectOption(ctx context.Context, label string) error {
	return e.act(ctx, func(n *Node) { n.Selected = append(n.Selected, label) })
}

func (e *FakeElement) ScrollIntoView(ctx context.Context) error {
	return e.act(ctx, func(n *Node) { n.Scrolled++ })
}

func (e *FakeElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n, err := e.first()
	if err != nil {
		return "", err
	}
	if n.ActionErr != nil {
		return "", n.ActionErr
	}
	return n.InnerText, nil
}

// Session implements browser.Session over a mutable page list.
type Session struct {
	PageList []*Page
	Closed   bool
}

var _ browser.Session = (*Session)(nil)

func NewSession(pages ...*Page) *Session {
	return &Session{PageList: pages}
}

// Open appends a new browsing context, as a link with target=_blank would.
func (s *Session) Open(p *Page) {
	s.PageList = append(s.PageList, p)
}

func (s *Session) Pages() []browser.Page {
	out := make([]browser.Page, 0, len(s.PageList))
	for _, p := range s.PageList {
		out = append(out, p)
	}
	return out
}

func (s *Session) Close(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Closed = true
	return nil
}

// NewButtonPage is a convenience page with a single visible node, handy in
// short tests.
func NewButtonPage(role, name string) (*Page, *Node) {
	n := &Node{Role: role, Name: name, Visible: true}
	return &Page{Nodes: []*Node{n}, Addr: fmt.Sprintf("https://example.test/%s", role)}, n
}
