// Package clickaudit records tamper evidence for external links.
//
// A snapshot loads an origin page in a fresh browser context, clicks the
// designated control like a user would, waits for the result to settle,
// then records where the click landed (page_url), a digest of the rendered
// DOM (page_hash) and a screenshot. Records are append-only: comparing the
// history of one link over time shows whether its destination changed.
//
// Usage:
//
//	svc, err := clickaudit.New(cfg, logger)
//	defer svc.Close()
//	snap, err := svc.CreateSnapshot(ctx, clickaudit.SnapshotRequest{...})
//	http.ListenAndServe(cfg.ListenAddr, svc.Handler())
//	svc.RegisterMCP(mcpServer)
package clickaudit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/linkaudit/clickaudit/internal/browser"
	"github.com/hazyhaar/linkaudit/clickaudit/internal/evidence"
	"github.com/hazyhaar/linkaudit/clickaudit/internal/fingerprint"
	"github.com/hazyhaar/linkaudit/clickaudit/internal/navigate"
	"github.com/hazyhaar/linkaudit/clickaudit/internal/pool"
	"github.com/hazyhaar/linkaudit/clickaudit/internal/store"
	"github.com/hazyhaar/linkaudit/clickaudit/internal/target"
	"github.com/hazyhaar/linkaudit/horosafe"
)

// Service runs snapshots and serves the audit log.
type Service struct {
	cfg    *Config
	store  *store.Store
	blobs  evidence.BlobStore
	driver driver
	fp     *fingerprint.Computer
	pool   *pool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// New opens the audit store and the screenshot directory and prepares the
// browser manager. Chrome itself starts with the first snapshot.
func New(cfg *Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	dbOpts, err := cfg.Database.options()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DBPath, dbOpts...)
	if err != nil {
		return nil, err
	}
	blobs, err := evidence.NewFSBlobStore(cfg.ScreenshotDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	bcfg := cfg.Browser
	bcfg.Logger = logger
	drv := &rodDriver{
		mgr: browser.NewManager(bcfg),
		exec: navigate.NewExecutor(navigate.Config{
			LoadTimeout:    cfg.Navigate.LoadTimeout,
			ResolveTimeout: cfg.Navigate.ResolveTimeout,
			ClickTimeout:   cfg.Navigate.ClickTimeout,
			Logger:         logger,
		}),
	}

	svc, err := newService(cfg, st, blobs, drv, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	logger.Info("clickaudit: ready", "db", cfg.DBPath, "screenshots", cfg.ScreenshotDir, "workers", cfg.Workers)
	return svc, nil
}

func newService(cfg *Config, st *store.Store, blobs evidence.BlobStore, drv driver, logger *slog.Logger) (*Service, error) {
	fp, err := fingerprint.New(cfg.Fingerprint)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:    cfg,
		store:  st,
		blobs:  blobs,
		driver: drv,
		fp:     fp,
		pool:   pool.New(cfg.Workers, cfg.QueueSize),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close shuts down the browser and closes the database.
func (s *Service) Close() error {
	return errors.Join(s.driver.Close(), s.store.Close())
}

// Store returns the audit store for direct read access.
func (s *Service) Store() store.AuditStore { return s.store }

// Stats reports worker pool occupancy.
func (s *Service) Stats() pool.Stats { return s.pool.Stats() }

// Health checks that the audit store answers.
func (s *Service) Health(ctx context.Context) error {
	return s.store.DB.PingContext(ctx)
}

// CreateSnapshot performs one click observation and appends its record.
//
// A failure before the screenshot (navigation, target resolution, click,
// fingerprint) still appends a partial record; the returned Snapshot then
// has Err() set and a nil error. Capture and store failures append nothing
// and are returned as errors.
func (s *Service) CreateSnapshot(ctx context.Context, req SnapshotRequest) (*Snapshot, error) {
	plan, err := s.plan(req)
	if err != nil {
		return nil, err
	}

	var snap *Snapshot
	err = s.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		snap, err = s.run(ctx, req, plan)
		return err
	})
	if errors.Is(err, pool.ErrQueueFull) {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Service) plan(req SnapshotRequest) (navigate.Plan, error) {
	if err := horosafe.ValidateURL(req.OriginURL, s.cfg.AllowPrivateTargets); err != nil {
		return navigate.Plan{}, fmt.Errorf("%w: origin_url: %v", ErrInvalidRequest, err)
	}
	loc, err := target.New(req.ClickType, req.ClickValue)
	if err != nil {
		return navigate.Plan{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	settle, err := req.settle(s.cfg.DefaultSettle, s.cfg.MaxDuration)
	if err != nil {
		return navigate.Plan{}, err
	}
	return navigate.Plan{URL: req.OriginURL, Locator: loc, Settle: settle}, nil
}

func (s *Service) run(ctx context.Context, req SnapshotRequest, plan navigate.Plan) (*Snapshot, error) {
	log := s.logger.With("origin_url", req.OriginURL, "click_type", req.ClickType)
	snap := &Snapshot{Stage: StagePending}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.MaxDuration)
	defer cancel()

	t, err := s.driver.Open(runCtx)
	if err != nil {
		log.Error("clickaudit: open session", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSession, err)
	}
	defer t.Release()

	var pageURL, pageHash *string

	obs, err := t.Observe(runCtx, plan)
	snap.Stage = obs.Stage
	snap.Popup = obs.Popup
	if err != nil {
		snap.err = classify(obs.Stage, err)
	} else {
		u := obs.URL
		pageURL = &u
		if h, err := s.fingerprint(runCtx, t); err != nil {
			snap.err = fmt.Errorf("%w: %w", ErrFingerprint, err)
		} else {
			pageHash = &h
			snap.Stage = StageFingerprinted
		}
	}
	if snap.err != nil {
		snap.StoppedAt = snap.Stage
		log.Warn("clickaudit: pipeline stopped early", "stage", snap.StoppedAt, "error", snap.err)
	}

	// Evidence is taken even when the run deadline has passed.
	capCtx, capCancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CaptureTimeout)
	defer capCancel()
	png, err := t.Screenshot(capCtx, req.fullPage())
	if err != nil {
		log.Error("clickaudit: screenshot", "stage", snap.Stage, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	path, err := s.blobs.Save(capCtx, png)
	if err != nil {
		log.Error("clickaudit: save screenshot", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	snap.Stage = StageCaptured

	storeCtx, storeCancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer storeCancel()
	rec, err := s.store.Append(storeCtx, store.NewRecord{
		OriginURL:      req.OriginURL,
		ClickType:      req.ClickType,
		ClickValue:     req.ClickValue,
		PageURL:        pageURL,
		PageHash:       pageHash,
		ScreenshotPath: path,
	})
	if err != nil {
		log.Error("clickaudit: append", "screenshot", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	snap.Record = rec
	snap.Stage = StageRecorded
	if snap.err != nil {
		snap.Failure = snap.err.Error()
	}
	log.Info("clickaudit: snapshot recorded",
		"id", rec.ID, "stopped_at", snap.StoppedAt, "page_url", deref(pageURL), "popup", snap.Popup,
		"complete", snap.Complete())
	return snap, nil
}

func (s *Service) fingerprint(ctx context.Context, t tab) (string, error) {
	html, err := t.HTML(ctx)
	if err != nil {
		return "", err
	}
	return s.fp.Compute(html)
}

// classify maps the stage a run stopped at to the failure kind.
func classify(reached Stage, err error) error {
	switch reached {
	case StagePending:
		return fmt.Errorf("%w: %w", ErrNavigation, err)
	case StageNavigated:
		return fmt.Errorf("%w: %w", ErrTargetResolution, err)
	default:
		return fmt.Errorf("%w: %w", ErrClick, err)
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
