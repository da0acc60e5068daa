// Package fingerprint reduces a rendered DOM to a stable digest. Two pages
// with the same visible structure and content produce the same digest even
// when script blobs, nonces, attribute order or indentation differ.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"slices"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/html"
)

const (
	AlgoSHA256  = "sha256"
	AlgoBLAKE2b = "blake2b"
)

// Options is the canonicalization surface. Nil lists mean the defaults.
type Options struct {
	Algorithm      string   `yaml:"algorithm"`
	DropElements   []string `yaml:"drop_elements"`
	DropAttributes []string `yaml:"drop_attributes"`
	// KeepEventHandlers keeps on* attributes (onclick, onload...), which are
	// dropped by default.
	KeepEventHandlers bool `yaml:"keep_event_handlers"`
}

func DefaultOptions() Options {
	return Options{
		Algorithm:      AlgoSHA256,
		DropElements:   []string{"script", "style", "noscript", "template"},
		DropAttributes: []string{"nonce", "data-timestamp", "data-ts", "data-time"},
	}
}

// Computer canonicalizes and digests HTML. It is safe for concurrent use.
type Computer struct {
	algo      string
	dropElems map[string]bool
	dropAttrs map[string]bool
	dropOn    bool
}

func New(o Options) (*Computer, error) {
	def := DefaultOptions()
	if o.DropElements == nil {
		o.DropElements = def.DropElements
	}
	if o.DropAttributes == nil {
		o.DropAttributes = def.DropAttributes
	}
	switch o.Algorithm {
	case "":
		o.Algorithm = AlgoSHA256
	case AlgoSHA256, AlgoBLAKE2b:
	default:
		return nil, fmt.Errorf("fingerprint: unknown algorithm %q", o.Algorithm)
	}
	c := &Computer{
		algo:      o.Algorithm,
		dropElems: make(map[string]bool, len(o.DropElements)),
		dropAttrs: make(map[string]bool, len(o.DropAttributes)),
		dropOn:    !o.KeepEventHandlers,
	}
	for _, e := range o.DropElements {
		c.dropElems[strings.ToLower(e)] = true
	}
	for _, a := range o.DropAttributes {
		c.dropAttrs[strings.ToLower(a)] = true
	}
	return c, nil
}

// Compute returns the hex digest (64 chars) of the canonical form of src.
func (c *Computer) Compute(src []byte) (string, error) {
	canon, err := c.Canonical(src)
	if err != nil {
		return "", err
	}
	var h hash.Hash
	if c.algo == AlgoBLAKE2b {
		h, _ = blake2b.New256(nil)
	} else {
		h = sha256.New()
	}
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonical returns the serialization that Compute digests.
func (c *Computer) Canonical(src []byte) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("fingerprint: parse: %w", err)
	}
	var b bytes.Buffer
	c.write(&b, doc)
	return b.Bytes(), nil
}

func (c *Computer) write(b *bytes.Buffer, n *html.Node) {
	switch n.Type {
	case html.DocumentNode:
		c.children(b, n)
	case html.TextNode:
		if t := c.text(n); t != "" {
			b.WriteString(html.EscapeString(t))
		}
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if c.dropElems[tag] {
			return
		}
		b.WriteByte('<')
		b.WriteString(tag)
		for _, a := range c.attrs(n.Attr) {
			b.WriteByte(' ')
			b.WriteString(a.Key)
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(a.Val))
			b.WriteByte('"')
		}
		b.WriteByte('>')
		c.children(b, n)
		b.WriteString("</")
		b.WriteString(tag)
		b.WriteByte('>')
	}
	// Comments, doctype and raw nodes are not part of the fingerprint.
}

func (c *Computer) children(b *bytes.Buffer, n *html.Node) {
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.write(b, ch)
	}
}

func (c *Computer) attrs(in []html.Attribute) []html.Attribute {
	out := make([]html.Attribute, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, a := range in {
		key := strings.ToLower(a.Key)
		if a.Namespace != "" {
			key = strings.ToLower(a.Namespace) + ":" + key
		}
		if seen[key] || c.dropAttrs[key] || (c.dropOn && strings.HasPrefix(key, "on")) {
			continue
		}
		seen[key] = true
		out = append(out, html.Attribute{Key: key, Val: strings.Trim(collapse(a.Val), " ")})
	}
	slices.SortFunc(out, func(x, y html.Attribute) int { return strings.Compare(x.Key, y.Key) })
	return out
}

// text renders a text node the way a browser lays it out: whitespace runs
// become one space, and a space survives unless it touches a block
// boundary. Inside pre and textarea whitespace is kept verbatim.
func (c *Computer) text(n *html.Node) string {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && preformatted[strings.ToLower(p.Data)] {
			return n.Data
		}
	}
	t := collapse(n.Data)
	if c.boundaryBefore(n) {
		t = strings.TrimLeft(t, " ")
	}
	if c.boundaryAfter(n) {
		t = strings.TrimRight(t, " ")
	}
	return t
}

func (c *Computer) boundaryBefore(n *html.Node) bool {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if c.rendered(s) {
			return c.isBlock(s)
		}
	}
	return c.parentBoundary(n, c.boundaryBefore)
}

func (c *Computer) boundaryAfter(n *html.Node) bool {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if c.rendered(s) {
			return c.isBlock(s)
		}
	}
	return c.parentBoundary(n, c.boundaryAfter)
}

// parentBoundary continues the search outside an inline parent.
func (c *Computer) parentBoundary(n *html.Node, next func(*html.Node) bool) bool {
	p := n.Parent
	if p == nil || p.Type != html.ElementNode || c.isBlock(p) {
		return true
	}
	return next(p)
}

// rendered reports whether a sibling takes part in inline layout.
func (c *Computer) rendered(n *html.Node) bool {
	switch n.Type {
	case html.TextNode:
		return true
	case html.ElementNode:
		return !c.dropElems[strings.ToLower(n.Data)]
	}
	return false
}

func (c *Computer) isBlock(n *html.Node) bool {
	return n.Type == html.ElementNode && blockElements[strings.ToLower(n.Data)]
}

// collapse replaces every run of HTML whitespace with one space. Other
// Unicode spaces such as U+00A0 render and are kept.
func collapse(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\f', '\r':
			if !space {
				b.WriteByte(' ')
			}
			space = true
		default:
			b.WriteByte(s[i])
			space = false
		}
	}
	return b.String()
}

var preformatted = map[string]bool{"pre": true, "textarea": true, "listing": true, "plaintext": true}

// blockElements start and end a line box; whitespace next to them is not
// rendered. Head content never renders.
var blockElements = map[string]bool{
	"html": true, "head": true, "body": true, "title": true, "meta": true, "link": true, "base": true,
	"address": true, "article": true, "aside": true, "blockquote": true, "details": true,
	"dialog": true, "dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true, "hgroup": true, "hr": true,
	"li": true, "main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"summary": true, "table": true, "caption": true, "colgroup": true, "col": true, "thead": true,
	"tbody": true, "tfoot": true, "tr": true, "td": true, "th": true, "ul": true, "menu": true,
	"br": true, "option": true, "optgroup": true, "select": true, "legend": true,
}
