// Package target turns a (click type, click value) pair into the element a
// user would click. Four strategies exist: visible text, CSS selector,
// XPath expression and accessible role/name.
package target

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// Click types accepted in requests and persisted verbatim.
const (
	TypeText  = "text"
	TypeCSS   = "css"
	TypeXPath = "xpath"
	TypeARIA  = "aria"
)

var (
	// ErrInvalidLocator means the locator can never match: unknown type,
	// empty value, or an expression the browser rejects.
	ErrInvalidLocator = errors.New("target: invalid locator")
	// ErrTargetNotFound means no visible element matched before the wait expired.
	ErrTargetNotFound = errors.New("target: no visible match")
)

// PollInterval is the delay between two resolution attempts.
var PollInterval = 200 * time.Millisecond

// Locator finds candidate elements on a page.
type Locator interface {
	Type() string
	Value() string
	// Validate checks the expression against the page once, before polling.
	Validate(ctx context.Context, page *rod.Page) error
	// Find makes one attempt, without waiting, and returns the matching
	// elements in document order.
	Find(ctx context.Context, page *rod.Page) (rod.Elements, error)
}

// Types lists the supported click types.
func Types() []string { return []string{TypeText, TypeCSS, TypeXPath, TypeARIA} }

// ValidType reports whether t is a supported click type.
func ValidType(t string) bool {
	switch t {
	case TypeText, TypeCSS, TypeXPath, TypeARIA:
		return true
	}
	return false
}

// New builds the Locator for clickType. value is kept verbatim; each
// strategy normalizes it for matching only.
func New(clickType, value string) (Locator, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("%w: empty click_value", ErrInvalidLocator)
	}
	switch clickType {
	case TypeText:
		return &textLocator{raw: value, want: normalize(value)}, nil
	case TypeCSS:
		return &cssLocator{sel: value}, nil
	case TypeXPath:
		return &xpathLocator{expr: value}, nil
	case TypeARIA:
		role, name := parseARIA(value)
		if name == "" {
			return nil, fmt.Errorf("%w: aria value %q has no accessible name", ErrInvalidLocator, value)
		}
		return &ariaLocator{raw: value, role: role, name: name}, nil
	default:
		return nil, fmt.Errorf("%w: unknown click_type %q", ErrInvalidLocator, clickType)
	}
}

// Resolve polls loc until a visible match exists or timeout expires. The
// first visible match in document order wins.
func Resolve(ctx context.Context, page *rod.Page, loc Locator, timeout time.Duration) (*rod.Element, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := loc.Validate(ctx, page); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	var lastErr error
	for {
		els, err := loc.Find(ctx, page)
		if err != nil {
			lastErr = err
		}
		if el := firstVisible(els); el != nil {
			return el, nil
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %s %q: %v", ErrTargetNotFound, loc.Type(), loc.Value(), lastErr)
			}
			return nil, fmt.Errorf("%w: %s %q within %s", ErrTargetNotFound, loc.Type(), loc.Value(), timeout)
		case <-ticker.C:
		}
	}
}

func firstVisible(els rod.Elements) *rod.Element {
	for _, el := range els {
		if ok, err := el.Visible(); err == nil && ok {
			return el
		}
	}
	return nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseARIA splits "role:name". Without a colon the whole value is the name.
func parseARIA(v string) (role, name string) {
	if i := strings.IndexByte(v, ':'); i > 0 {
		r := strings.ToLower(strings.TrimSpace(v[:i]))
		if isKnownRole(r) {
			return r, normalize(v[i+1:])
		}
	}
	return "", normalize(v)
}
