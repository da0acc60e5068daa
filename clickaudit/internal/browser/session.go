package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Session is one isolated browsing context with its initial page. Pages the
// site opens (popups, target=_blank) live in the same context and are
// disposed with it.
type Session struct {
	Page *rod.Page

	ctxBrowser *rod.Browser
	router     *rod.HijackRouter
	mgr        *Manager
	once       sync.Once
}

// Acquire opens a fresh browser context with one stealth page sized to the
// configured viewport.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	ctx, cancel := acquireCtx(ctx)
	defer cancel()

	m.mu.Lock()
	b, err := m.ensureLocked()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	s := &Session{mgr: m}
	m.active[s] = struct{}{}
	m.mu.Unlock()

	if err := s.open(ctx, b); err != nil {
		s.Release()
		if ctx.Err() == nil {
			m.dropBrowser(b)
		}
		return nil, err
	}
	return s, nil
}

func (s *Session) open(ctx context.Context, b *rod.Browser) error {
	cfg := s.mgr.cfg

	incog, err := b.Context(ctx).Incognito()
	if err != nil {
		return fmt.Errorf("browser: create context: %w", err)
	}
	// Handles outlive the acquire deadline; callers bind their own ctx per call.
	s.ctxBrowser = incog.Context(context.Background())

	page, err := stealth.Page(incog)
	if err != nil {
		return fmt.Errorf("browser: create page: %w", err)
	}
	s.Page = page.Context(context.Background())

	err = page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.ViewportWidth,
		Height:            cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("browser: set viewport: %w", err)
	}

	if len(cfg.BlockResources) > 0 {
		s.router = blockResources(s.Page, cfg.BlockResources)
	}
	return nil
}

// ContextID identifies the session's browser context.
func (s *Session) ContextID() proto.BrowserBrowserContextID {
	if s.ctxBrowser == nil {
		return ""
	}
	return s.ctxBrowser.BrowserContextID
}

// Targets lists the page targets currently open in this session's context.
func (s *Session) Targets(ctx context.Context) ([]*proto.TargetTargetInfo, error) {
	res, err := proto.TargetGetTargets{}.Call(s.ctxBrowser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("browser: list targets: %w", err)
	}
	var out []*proto.TargetTargetInfo
	for _, t := range res.TargetInfos {
		if t.Type == proto.TargetTargetInfoTypePage && t.BrowserContextID == s.ContextID() {
			out = append(out, t)
		}
	}
	return out, nil
}

// PageFor attaches to a page target of this session.
func (s *Session) PageFor(ctx context.Context, id proto.TargetTargetID) (*rod.Page, error) {
	p, err := s.ctxBrowser.Context(ctx).PageFromTarget(id)
	if err != nil {
		return nil, fmt.Errorf("browser: attach page %s: %w", id, err)
	}
	return p, nil
}

// Release disposes the browser context and every page in it. Safe to call
// more than once and on a partially opened session.
func (s *Session) Release() {
	s.once.Do(func() {
		if s.router != nil {
			s.router.Stop()
		}
		if s.ctxBrowser != nil {
			if err := s.ctxBrowser.Close(); err != nil {
				s.mgr.cfg.Logger.Warn("browser: dispose context", "error", err)
			}
		}
		s.mgr.mu.Lock()
		delete(s.mgr.active, s)
		s.mgr.mu.Unlock()
	})
}
