// Package browser owns the Chrome process and hands out isolated sessions.
// Each session is a fresh browser context: no cookies, storage or cache are
// shared between two snapshots.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("browser: manager is closed")

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string `yaml:"remote_url"`

	// Bin overrides the Chrome binary. Empty = launcher lookup/download.
	Bin string `yaml:"bin"`

	// Headful runs Chrome with a real display under Xvfb.
	Headful     bool   `yaml:"headful"`
	XvfbDisplay string `yaml:"xvfb_display"`

	// NoSandbox is needed when running as root in containers.
	NoSandbox bool `yaml:"no_sandbox"`

	// RecycleInterval is the maximum lifetime of a Chrome process. The
	// process is only recycled while no session is active. Default: 4h.
	RecycleInterval time.Duration `yaml:"recycle_interval"`

	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`

	// BlockResources lists resource types to refuse (fonts, media).
	// Images and stylesheets are part of the evidence and should stay.
	BlockResources []string `yaml:"block_resources"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1366
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 768
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager manages the Chrome lifecycle and the sessions opened on it.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	startAt time.Time
	closed  bool
	active  map[*Session]struct{}
}

// NewManager creates a Manager. Chrome is started lazily by the first Acquire.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, active: make(map[*Session]struct{})}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Active returns the number of sessions not yet released.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Close releases every open session and shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	leftovers := make([]*Session, 0, len(m.active))
	for s := range m.active {
		leftovers = append(leftovers, s)
	}
	m.mu.Unlock()

	for _, s := range leftovers {
		s.Release()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanup()
	return nil
}

// ensureLocked returns a live browser, launching or recycling as needed.
func (m *Manager) ensureLocked() (*rod.Browser, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil && len(m.active) == 0 && time.Since(m.startAt) > m.cfg.RecycleInterval {
		m.cfg.Logger.Info("browser: recycle interval reached", "uptime", time.Since(m.startAt))
		m.cleanup()
	}
	if m.browser != nil {
		return m.browser, nil
	}
	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()
	return b, nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Headful && m.cfg.RemoteURL == "" {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New()
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.Headful {
			l = l.Headless(false).Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
		} else {
			l = l.Headless(true)
		}
		if m.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			m.stopXvfb()
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Kill()
			m.lnch = nil
		}
		m.stopXvfb()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}

// dropBrowser forgets a browser that stopped answering so the next Acquire
// launches a new one.
func (m *Manager) dropBrowser(b *rod.Browser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == b && len(m.active) == 0 {
		m.cfg.Logger.Warn("browser: dropping unresponsive browser")
		m.cleanup()
	}
}

// Available reports whether a local Chrome binary can be found without
// downloading one. Tests use it to skip.
func Available() bool {
	_, ok := launcher.LookPath()
	return ok
}

// AcquireTimeout bounds session creation when ctx carries no deadline.
const AcquireTimeout = 30 * time.Second

func acquireCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, AcquireTimeout)
}
