// Package navigate drives one session through load, target resolution,
// click and settle, then reports which page the user ended up on.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/linkaudit/clickaudit/internal/browser"
	"github.com/hazyhaar/linkaudit/clickaudit/internal/target"
)

// Stage is the last pipeline state reached.
type Stage string

const (
	StagePending        Stage = "pending"
	StageNavigated      Stage = "navigated"
	StageTargetResolved Stage = "target_resolved"
	StageClicked        Stage = "clicked"
	StageSettled        Stage = "settled"
)

var (
	ErrNavigation = errors.New("navigate: origin page could not be loaded")
	ErrClick      = errors.New("navigate: click failed")
	// ErrSettle means the settle wait or the final URL read was interrupted.
	ErrSettle = errors.New("navigate: settle interrupted")
)

type Config struct {
	LoadTimeout    time.Duration
	ResolveTimeout time.Duration
	ClickTimeout   time.Duration
	Logger         *slog.Logger
}

func (c *Config) defaults() {
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 30 * time.Second
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 10 * time.Second
	}
	if c.ClickTimeout <= 0 {
		c.ClickTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Plan is one click to perform.
type Plan struct {
	URL     string
	Locator target.Locator
	Settle  time.Duration
}

// Result describes where the run stopped. Page is the page evidence must be
// taken from: the settled page once StageSettled is reached, the origin
// page otherwise. URL is only set at StageSettled.
type Result struct {
	Stage Stage
	Page  *rod.Page
	URL   string
	Popup bool
}

type Executor struct {
	cfg Config
}

func NewExecutor(cfg Config) *Executor {
	cfg.defaults()
	return &Executor{cfg: cfg}
}

// Run performs the plan. The returned Result is never nil; on error it
// tells how far the run got.
func (e *Executor) Run(ctx context.Context, s *browser.Session, p Plan) (*Result, error) {
	log := e.cfg.Logger.With("url", p.URL, "click_type", p.Locator.Type())
	res := &Result{Stage: StagePending, Page: s.Page}

	if err := e.load(ctx, s.Page, p.URL); err != nil {
		return res, err
	}
	res.Stage = StageNavigated
	log.Debug("navigate: origin loaded")

	el, err := target.Resolve(ctx, s.Page, p.Locator, e.cfg.ResolveTimeout)
	if err != nil {
		return res, err
	}
	res.Stage = StageTargetResolved

	before, err := s.Targets(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrClick, err)
	}
	if err := e.click(ctx, el); err != nil {
		return res, err
	}
	res.Stage = StageClicked
	log.Debug("navigate: clicked", "settle", p.Settle)

	if err := sleepCtx(ctx, p.Settle); err != nil {
		return res, fmt.Errorf("%w: %v", ErrSettle, err)
	}

	page, popup, err := e.settledPage(ctx, s, before)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrSettle, err)
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return res, fmt.Errorf("%w: read url: %v", ErrSettle, err)
	}

	res.Stage = StageSettled
	res.Page = page
	res.URL = info.URL
	res.Popup = popup
	log.Debug("navigate: settled", "page_url", info.URL, "popup", popup)
	return res, nil
}

func (e *Executor) load(ctx context.Context, page *rod.Page, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, e.cfg.LoadTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		// A page that never fires load may still render its link.
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %v", ErrNavigation, url, ctx.Err())
		}
		e.cfg.Logger.Warn("navigate: wait load timeout", "url", url, "error", err)
	}
	return nil
}

func (e *Executor) click(ctx context.Context, el *rod.Element) error {
	clickCtx, cancel := context.WithTimeout(ctx, e.cfg.ClickTimeout)
	defer cancel()
	if err := el.Context(clickCtx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrClick, err)
	}
	return nil
}

// settledPage returns the page opened by the click if there is one, the
// origin page otherwise.
func (e *Executor) settledPage(ctx context.Context, s *browser.Session, before []*proto.TargetTargetInfo) (*rod.Page, bool, error) {
	after, err := s.Targets(ctx)
	if err != nil {
		return nil, false, err
	}
	id := newTarget(before, after, s.Page.TargetID)
	if id == "" {
		return s.Page, false, nil
	}
	p, err := s.PageFor(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// newTarget picks the most recent target absent from before, preferring one
// whose opener is the origin page.
func newTarget(before, after []*proto.TargetTargetInfo, origin proto.TargetTargetID) proto.TargetTargetID {
	seen := make(map[proto.TargetTargetID]bool, len(before))
	for _, t := range before {
		seen[t.TargetID] = true
	}
	var anyNew, opened proto.TargetTargetID
	for _, t := range after {
		if seen[t.TargetID] || t.TargetID == origin {
			continue
		}
		anyNew = t.TargetID
		if t.OpenerID == origin {
			opened = t.TargetID
		}
	}
	if opened != "" {
		return opened
	}
	return anyNew
}

// OuterHTML serializes the current DOM of page.
func OuterHTML(ctx context.Context, page *rod.Page) ([]byte, error) {
	res, err := page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("navigate: read DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
