package target

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
)

type cssLocator struct{ sel string }

func (l *cssLocator) Type() string  { return TypeCSS }
func (l *cssLocator) Value() string { return l.sel }

func (l *cssLocator) Validate(ctx context.Context, page *rod.Page) error {
	res, err := page.Context(ctx).Eval(`(s) => {
		try { document.createDocumentFragment().querySelector(s); return true; }
		catch (e) { return false; }
	}`, l.sel)
	if err != nil {
		return fmt.Errorf("target: validate css: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%w: css selector %q", ErrInvalidLocator, l.sel)
	}
	return nil
}

func (l *cssLocator) Find(ctx context.Context, page *rod.Page) (rod.Elements, error) {
	return page.Context(ctx).ElementsByJS(rod.Eval(`(s) => Array.from(document.querySelectorAll(s))`, l.sel))
}

type xpathLocator struct{ expr string }

func (l *xpathLocator) Type() string  { return TypeXPath }
func (l *xpathLocator) Value() string { return l.expr }

func (l *xpathLocator) Validate(ctx context.Context, page *rod.Page) error {
	res, err := page.Context(ctx).Eval(`(x) => {
		try { document.createExpression(x); return true; }
		catch (e) { return false; }
	}`, l.expr)
	if err != nil {
		return fmt.Errorf("target: validate xpath: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%w: xpath %q", ErrInvalidLocator, l.expr)
	}
	return nil
}

func (l *xpathLocator) Find(ctx context.Context, page *rod.Page) (rod.Elements, error) {
	return page.Context(ctx).ElementsByJS(rod.Eval(`(x) => {
		const r = document.evaluate(x, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		const out = [];
		for (let i = 0; i < r.snapshotLength; i++) {
			const n = r.snapshotItem(i);
			if (n.nodeType === Node.ELEMENT_NODE) out.push(n);
			else if (n.parentElement) out.push(n.parentElement);
		}
		return out;
	}`, l.expr))
}

// textLocator matches on rendered text. Exact matches (after whitespace
// normalization) win over substring matches, and only the deepest element
// carrying the text is a candidate.
type textLocator struct {
	raw  string
	want string
}

func (l *textLocator) Type() string  { return TypeText }
func (l *textLocator) Value() string { return l.raw }

func (l *textLocator) Validate(context.Context, *rod.Page) error { return nil }

// textFinderJS drops hidden elements before keeping the deepest ones, so a
// hidden copy of the text inside a visible control does not shadow it.
const textFinderJS = `(want) => {
	const norm = (s) => (s || "").replace(/\s+/g, " ").trim();
	const visible = (el) => {
		if (el.checkVisibility) return el.checkVisibility({visibilityProperty: true, checkVisibilityCSS: true});
		const st = getComputedStyle(el);
		return el.getClientRects().length > 0 && st.visibility !== "hidden";
	};
	const all = Array.from(document.body ? document.body.querySelectorAll("*") : []).filter(visible);
	const text = (el) => norm(el.innerText !== undefined ? el.innerText : el.textContent);
	const deepest = (list) => list.filter((el) => !list.some((o) => o !== el && el.contains(o)));

	const exact = deepest(all.filter((el) => text(el) === want));
	if (exact.length > 0) return exact;
	const lw = want.toLowerCase();
	return deepest(all.filter((el) => text(el).toLowerCase().includes(lw)));
}`

func (l *textLocator) Find(ctx context.Context, page *rod.Page) (rod.Elements, error) {
	return page.Context(ctx).ElementsByJS(rod.Eval(textFinderJS, l.want))
}
