package target

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// ariaLocator queries Chrome's accessibility tree, so the accessible name is
// computed by the browser (aria-label, aria-labelledby, alt, label for, text).
type ariaLocator struct {
	raw  string
	role string
	name string
}

func (l *ariaLocator) Type() string  { return TypeARIA }
func (l *ariaLocator) Value() string { return l.raw }

func (l *ariaLocator) Validate(context.Context, *rod.Page) error { return nil }

func (l *ariaLocator) Find(ctx context.Context, page *rod.Page) (rod.Elements, error) {
	p := page.Context(ctx)
	depth := 0
	doc, err := proto.DOMGetDocument{Depth: &depth}.Call(p)
	if err != nil {
		return nil, fmt.Errorf("target: DOM.getDocument: %w", err)
	}
	res, err := proto.AccessibilityQueryAXTree{
		BackendNodeID:  doc.Root.BackendNodeID,
		AccessibleName: l.name,
		Role:           l.role,
	}.Call(p)
	if err != nil {
		return nil, fmt.Errorf("target: Accessibility.queryAXTree: %w", err)
	}

	var out rod.Elements
	for _, n := range res.Nodes {
		if n.Ignored || n.BackendDOMNodeID == 0 {
			continue
		}
		if l.role == "" && n.Role != nil && textRoles[n.Role.Value.Str()] {
			continue
		}
		el, err := p.ElementFromNode(&proto.DOMNode{BackendNodeID: n.BackendDOMNodeID})
		if err != nil {
			continue
		}
		out = append(out, el)
	}
	return out, nil
}

var textRoles = map[string]bool{
	"StaticText":    true,
	"InlineTextBox": true,
	"text":          true,
	"LineBreak":     true,
}

// knownRoles is the subset of WAI-ARIA roles accepted as a "role:" prefix.
// A value like "Note: read me" keeps its colon as part of the name.
var knownRoles = map[string]bool{}

func init() {
	for _, r := range strings.Fields(`alert alertdialog application article banner button cell checkbox
		columnheader combobox complementary contentinfo definition dialog directory document feed figure
		form grid gridcell group heading img image link list listbox listitem log main marquee math menu
		menubar menuitem menuitemcheckbox menuitemradio navigation none note option presentation
		progressbar radio radiogroup region row rowgroup rowheader scrollbar search searchbox separator
		slider spinbutton status switch tab table tablist tabpanel term textbox timer toolbar tooltip
		tree treegrid treeitem`) {
		knownRoles[r] = true
	}
}

func isKnownRole(r string) bool { return knownRoles[r] }
