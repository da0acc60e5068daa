package clickaudit

import (
	"context"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/linkaudit/clickaudit/internal/browser"
	"github.com/hazyhaar/linkaudit/clickaudit/internal/evidence"
	"github.com/hazyhaar/linkaudit/clickaudit/internal/navigate"
)

// driver is the browser-facing half of the pipeline.
type driver interface {
	Open(ctx context.Context) (tab, error)
	Close() error
}

// tab is one exclusive browsing session. After Observe, HTML and
// Screenshot read the page the run stopped on.
type tab interface {
	Observe(ctx context.Context, p navigate.Plan) (observation, error)
	HTML(ctx context.Context) ([]byte, error)
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Release()
}

type observation struct {
	Stage Stage
	URL   string
	Popup bool
}

type rodDriver struct {
	mgr  *browser.Manager
	exec *navigate.Executor
}

func (d *rodDriver) Open(ctx context.Context) (tab, error) {
	s, err := d.mgr.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &rodTab{sess: s, exec: d.exec, page: s.Page}, nil
}

func (d *rodDriver) Close() error { return d.mgr.Close() }

type rodTab struct {
	sess *browser.Session
	exec *navigate.Executor
	page *rod.Page
}

func (t *rodTab) Observe(ctx context.Context, p navigate.Plan) (observation, error) {
	res, err := t.exec.Run(ctx, t.sess, p)
	if res.Page != nil {
		t.page = res.Page
	}
	return observation{Stage: Stage(res.Stage), URL: res.URL, Popup: res.Popup}, err
}

func (t *rodTab) HTML(ctx context.Context) ([]byte, error) {
	return navigate.OuterHTML(ctx, t.page)
}

func (t *rodTab) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return evidence.Screenshot(ctx, t.page, fullPage)
}

func (t *rodTab) Release() { t.sess.Release() }
