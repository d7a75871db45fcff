package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/zerotouch/qa-runner/internal/config"
)

// Launcher owns the playwright lifecycle.
type Launcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	cfg     config.Config
}

func NewLauncher(ctx context.Context, cfg config.Config) (*Launcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Launcher{pw: pw, browser: b, cfg: cfg}, nil
}

// NewSession opens a fresh browser context with one page.
func (l *Launcher) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bctx, err := l.browser.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	pg, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	pg.SetDefaultTimeout(float64(l.cfg.ActionTimeout.Milliseconds()))
	return &session{bctx: bctx, cfg: l.cfg}, nil
}

func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

type session struct {
	bctx playwright.BrowserContext
	cfg  config.Config
}

func (s *session) Pages() []Page {
	raw := s.bctx.Pages()
	pages := make([]Page, 0, len(raw))
	for _, p := range raw {
		pages = append(pages, &page{p: p, cfg: s.cfg})
	}
	return pages
}

func (s *session) Close(ctx context.Context) error {
	_ = ctx
	return s.bctx.Close()
}

type page struct {
	p   playwright.Page
	cfg config.Config
}

func (p *page) ByRole(role, name string) Element {
	aria := playwright.AriaRole(strings.ToLower(strings.TrimSpace(role)))
	return p.elem(p.p.GetByRole(aria, playwright.PageGetByRoleOptions{Name: name}))
}

func (p *page) ByRoleOnly(role string) Element {
	aria := playwright.AriaRole(strings.ToLower(strings.TrimSpace(role)))
	return p.elem(p.p.GetByRole(aria))
}

func (p *page) ByLabel(label string) Element {
	return p.elem(p.p.GetByLabel(label))
}

func (p *page) ByText(text string) Element {
	return p.elem(p.p.GetByText(text, playwright.PageGetByTextOptions{
		Exact: playwright.Bool(false),
	}))
}

func (p *page) ByPlaceholder(text string) Element {
	return p.elem(p.p.GetByPlaceholder(text))
}

func (p *page) ByTestID(id string) Element {
	return p.elem(p.p.GetByTestId(id))
}

func (p *page) BySelector(selector string) Element {
	return p.elem(p.p.Locator(selector))
}

func (p *page) elem(loc playwright.Locator) Element {
	return &element{loc: loc}
}

func (p *page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.p.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(p.cfg.NavTimeout.Milliseconds())),
	})
	return wrap(err)
}

func (p *page) GoBack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.p.GoBack()
	return wrap(err)
}

func (p *page) GoForward(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.p.GoForward()
	return wrap(err)
}

func (p *page) URL() string {
	return p.p.URL()
}

func (p *page) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.p.Screenshot(playwright.PageScreenshotOptions{
		Path: playwright.String(path),
	})
	return wrap(err)
}

// Accessibility walks the live DOM and derives a role/name tree. The walk
// runs inside the page so one Evaluate round trip covers everything,
// shadow roots included when open.
func (p *page) Accessibility(ctx context.Context) (*AXNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, err := p.p.Evaluate(axScript)
	if err != nil {
		return nil, wrap(err)
	}
	data, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("marshal ax snapshot: %w", err)
	}
	var root AXNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode ax snapshot: %w", err)
	}
	return &root, nil
}

type element struct {
	loc playwright.Locator
}

func (e *element) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.loc.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}))
}

func (e *element) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := e.loc.Count()
	return n, wrap(err)
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.loc.First().Click())
}

func (e *element) DoubleClick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.loc.First().Dblclick())
}

func (e *element) Hover(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.loc.First().Hover())
}

func (e *element) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.loc.First().Fill(value))
}

func (e *element) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.loc.First().Check())
}

func (e *element) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.loc.First().Press(key))
}

func (e *element) SelectOption(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.loc.First().SelectOption(playwright.SelectOptionValues{
		Labels: &[]string{label},
	})
	return wrap(err)
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.loc.First().ScrollIntoViewIfNeeded())
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	txt, err := e.loc.First().InnerText()
	return txt, wrap(err)
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}

const axScript = `() => {
	const roleByTag = {
		a: "link", button: "button", select: "combobox", textarea: "textbox",
		nav: "navigation", main: "main", header: "banner", footer: "contentinfo",
		img: "img", table: "table", option: "option", li: "listitem", ul: "list",
		ol: "list", form: "form", dialog: "dialog",
		h1: "heading", h2: "heading", h3: "heading", h4: "heading", h5: "heading", h6: "heading"
	};
	const inputRoles = {
		button: "button", submit: "button", reset: "button", checkbox: "checkbox",
		radio: "radio", search: "searchbox", range: "slider"
	};
	function roleOf(el) {
		const explicit = (el.getAttribute("role") || "").trim();
		if (explicit) return explicit.split(/\s+/)[0];
		const tag = el.tagName.toLowerCase();
		if (tag === "input") {
			const type = (el.getAttribute("type") || "text").toLowerCase();
			return inputRoles[type] || "textbox";
		}
		if (tag === "a" && !el.hasAttribute("href")) return "";
		return roleByTag[tag] || "";
	}
	function labelText(el) {
		if (el.id) {
			const lab = document.querySelector('label[for="' + el.id.replace(/"/g, '\\"') + '"]');
			if (lab) return (lab.innerText || lab.textContent || "").trim();
		}
		const wrapper = el.closest("label");
		if (wrapper) return (wrapper.innerText || wrapper.textContent || "").trim();
		return "";
	}
	function nameOf(el, role) {
		const aria = (el.getAttribute("aria-label") || "").trim();
		if (aria) return aria;
		const labelled = el.getAttribute("aria-labelledby");
		if (labelled) {
			const parts = labelled.split(/\s+/).map(id => {
				const ref = document.getElementById(id);
				return ref ? (ref.innerText || ref.textContent || "").trim() : "";
			}).filter(Boolean);
			if (parts.length) return parts.join(" ");
		}
		const tag = el.tagName.toLowerCase();
		if (tag === "input" || tag === "textarea" || tag === "select") {
			const lab = labelText(el);
			if (lab) return lab;
			const ph = (el.getAttribute("placeholder") || "").trim();
			if (ph) return ph;
			if (role === "button") return (el.value || "").trim();
		}
		if (tag === "img") return (el.getAttribute("alt") || "").trim();
		const title = (el.getAttribute("title") || "").trim();
		let text = (el.innerText || el.textContent || "").trim().replace(/\s+/g, " ");
		if (text.length > 120) text = text.slice(0, 120);
		return text || title;
	}
	function visible(el) {
		const rect = el.getBoundingClientRect();
		return rect.width > 0 || rect.height > 0;
	}
	function walk(el) {
		const node = { role: "", name: "", children: [] };
		if (el.nodeType === Node.ELEMENT_NODE && visible(el)) {
			node.role = roleOf(el);
			node.name = node.role ? nameOf(el, node.role) : "";
		}
		const roots = [];
		if (el.shadowRoot) roots.push(el.shadowRoot);
		roots.push(el);
		for (const root of roots) {
			for (const child of root.children || []) {
				const sub = walk(child);
				if (sub.role || sub.name || sub.children.length) node.children.push(sub);
			}
		}
		return node;
	}
	const root = walk(document.body || document.documentElement);
	root.role = root.role || "document";
	root.name = root.name || (document.title || "");
	return root;
}`
