package clickaudit

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/linkaudit/clickaudit/internal/browser"
	"github.com/hazyhaar/linkaudit/clickaudit/internal/fingerprint"
	"github.com/hazyhaar/linkaudit/dbopen"
)

// Config holds all clickaudit configuration.
type Config struct {
	// DBPath is a SQLite file path or a libsql:// URL.
	DBPath        string `yaml:"db_path"`
	ScreenshotDir string `yaml:"screenshot_dir"`
	ListenAddr    string `yaml:"listen_addr"`

	Database DatabaseConfig `yaml:"database"`

	// AllowPrivateTargets lets origin_url point at loopback and private
	// networks. Off by default.
	AllowPrivateTargets bool `yaml:"allow_private_targets"`

	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`

	DefaultSettle  time.Duration `yaml:"default_settle"`
	MaxDuration    time.Duration `yaml:"max_duration"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	StoreTimeout   time.Duration `yaml:"store_timeout"`

	Navigate    NavigateConfig      `yaml:"navigate"`
	Browser     browser.Config      `yaml:"browser"`
	Fingerprint fingerprint.Options `yaml:"fingerprint"`
}

// NavigateConfig bounds the individual browser phases.
type NavigateConfig struct {
	LoadTimeout    time.Duration `yaml:"load_timeout"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`
	ClickTimeout   time.Duration `yaml:"click_timeout"`
}

// DatabaseConfig tunes how the audit database is opened. Zero values keep
// the dbopen defaults.
type DatabaseConfig struct {
	// Driver forces "sqlite" or "libsql" instead of detecting it from DBPath.
	Driver        string `yaml:"driver"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
	// Synchronous is the SQLite synchronous mode: OFF, NORMAL, FULL or EXTRA.
	Synchronous string `yaml:"synchronous"`
	// SkipPing opens without a round trip, for remote endpoints that are
	// reached lazily.
	SkipPing bool `yaml:"skip_ping"`
}

func (d DatabaseConfig) options() ([]dbopen.Option, error) {
	var opts []dbopen.Option
	switch d.Driver {
	case "":
	case dbopen.DriverSQLite, dbopen.DriverLibSQL:
		opts = append(opts, dbopen.WithDriver(d.Driver))
	default:
		return nil, fmt.Errorf("clickaudit: database.driver %q: want sqlite or libsql", d.Driver)
	}
	if d.BusyTimeoutMs < 0 {
		return nil, fmt.Errorf("clickaudit: database.busy_timeout_ms must be >= 0")
	}
	if d.BusyTimeoutMs > 0 {
		opts = append(opts, dbopen.WithBusyTimeout(d.BusyTimeoutMs))
	}
	if d.Synchronous != "" {
		mode := strings.ToUpper(d.Synchronous)
		switch mode {
		case "OFF", "NORMAL", "FULL", "EXTRA":
		default:
			return nil, fmt.Errorf("clickaudit: database.synchronous %q", d.Synchronous)
		}
		opts = append(opts, dbopen.WithSynchronous(mode))
	}
	if d.SkipPing {
		opts = append(opts, dbopen.WithoutPing())
	}
	return opts, nil
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "data/linkaudit.db"
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = "data/screenshots"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8000"
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.DefaultSettle <= 0 {
		c.DefaultSettle = 3 * time.Second
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 120 * time.Second
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 20 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 10 * time.Second
	}
	if c.Navigate.LoadTimeout <= 0 {
		c.Navigate.LoadTimeout = 30 * time.Second
	}
	if c.Navigate.ResolveTimeout <= 0 {
		c.Navigate.ResolveTimeout = 10 * time.Second
	}
	if c.Navigate.ClickTimeout <= 0 {
		c.Navigate.ClickTimeout = 10 * time.Second
	}
	if c.Fingerprint.Algorithm == "" {
		c.Fingerprint.Algorithm = fingerprint.AlgoSHA256
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("clickaudit: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables on c. getenv is os.Getenv in
// production.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := getenv("SCREENSHOT_DIR"); v != "" {
		c.ScreenshotDir = v
	}
	if v := getenv("CHROME_REMOTE_URL"); v != "" {
		c.Browser.RemoteURL = v
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	for key, dst := range map[string]*int{"WORKERS": &c.Workers, "QUEUE_SIZE": &c.QueueSize} {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("clickaudit: %s: %w", key, err)
			}
			*dst = n
		}
	}
	if v := getenv("ALLOW_PRIVATE_TARGETS"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("clickaudit: ALLOW_PRIVATE_TARGETS: %w", err)
		}
		c.AllowPrivateTargets = b
	}
	return nil
}
