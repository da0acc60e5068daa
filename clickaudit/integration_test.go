package clickaudit

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/linkaudit/clickaudit/internal/browser"
)

// chromeService runs the real pipeline against a local Chrome.
func chromeService(t *testing.T) *Service {
	t.Helper()
	if testing.Short() || !browser.Available() {
		t.Skip("no local chrome")
	}
	dir := t.TempDir()
	cfg := &Config{
		DBPath:              dir + "/audit.db",
		ScreenshotDir:       dir + "/shots",
		AllowPrivateTargets: true,
		Workers:             2,
		Navigate:            NavigateConfig{ResolveTimeout: 2 * time.Second},
	}
	cfg.Browser.NoSandbox = os.Geteuid() == 0
	svc, err := New(cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

// linkSite serves an origin page whose "Download" link points at the
// current value of dest.
func linkSite(t *testing.T, dest *atomic.Value) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<!DOCTYPE html><html><body style="margin:0">
			<h1>Reports</h1>
			<p>Get the <a id="dl" href="%s">Download</a> here.</p>
			<button aria-label="Open report" onclick="location.href='/report'">&#x2193;</button>
			<a href="/report" target="_blank">New tab</a>
			<div style="height:3000px">tall</div>
		</body></html>`, dest.Load().(string))
	})
	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h2>Annual report 2026</h2></body></html>`)
	})
	mux.HandleFunc("/evil", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h2>Annual report 2026</h2><p>install this</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func intp(n int) *int    { return &n }
func boolp(b bool) *bool { return &b }

func TestChromeScenarios(t *testing.T) {
	svc := chromeService(t)
	var dest atomic.Value
	dest.Store("/report")
	site := linkSite(t, &dest)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var first *Snapshot
	t.Run("A text link", func(t *testing.T) {
		snap, err := svc.CreateSnapshot(ctx, SnapshotRequest{
			OriginURL: site.URL + "/", ClickType: "text", ClickValue: "Download",
			SettleWaitMs: intp(1000), FullPage: boolp(true),
		})
		require.NoError(t, err)
		require.NoError(t, snap.Err())
		require.NotNil(t, snap.PageURL)
		assert.Equal(t, site.URL+"/report", *snap.PageURL)
		require.NotNil(t, snap.PageHash)
		assert.Len(t, *snap.PageHash, 64)

		data, err := svc.Screenshot(ctx, snap.ID)
		require.NoError(t, err)
		img, err := png.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 1366, img.Width)
		first = snap
	})

	t.Run("B tampered destination", func(t *testing.T) {
		require.NotNil(t, first)
		dest.Store("/evil")
		defer dest.Store("/report")

		snap, err := svc.CreateSnapshot(ctx, SnapshotRequest{
			OriginURL: site.URL + "/", ClickType: "text", ClickValue: "Download", SettleWaitMs: intp(1000),
		})
		require.NoError(t, err)
		c := Compare(first.Record, snap.Record)
		assert.True(t, c.Tampered)
		assert.True(t, c.URLChanged)
		assert.True(t, c.HashChanged)
	})

	t.Run("C missing target", func(t *testing.T) {
		snap, err := svc.CreateSnapshot(ctx, SnapshotRequest{
			OriginURL: site.URL + "/", ClickType: "css", ClickValue: "#nonexistent",
		})
		require.NoError(t, err)
		assert.ErrorIs(t, snap.Err(), ErrTargetResolution)
		assert.Equal(t, StageRecorded, snap.Stage)
		assert.Equal(t, StageNavigated, snap.StoppedAt)
		assert.Nil(t, snap.PageURL)
		assert.Nil(t, snap.PageHash)
		assert.NotEmpty(t, snap.ScreenshotPath)

		data, err := svc.Screenshot(ctx, snap.ID)
		require.NoError(t, err)
		img, err := png.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Greater(t, img.Height, 768, "full page capture of the origin")
	})

	t.Run("D zero settle", func(t *testing.T) {
		start := time.Now()
		snap, err := svc.CreateSnapshot(ctx, SnapshotRequest{
			OriginURL: site.URL + "/", ClickType: "xpath", ClickValue: `//a[@id="dl"]`, SettleWaitMs: intp(0),
		})
		require.NoError(t, err)
		require.NoError(t, snap.Err())
		assert.NotNil(t, snap.PageHash)
		assert.Less(t, time.Since(start), 30*time.Second)
	})

	t.Run("E viewport capture", func(t *testing.T) {
		snap, err := svc.CreateSnapshot(ctx, SnapshotRequest{
			OriginURL: site.URL + "/", ClickType: "css", ClickValue: "#nonexistent", FullPage: boolp(false),
		})
		require.NoError(t, err)
		data, err := svc.Screenshot(ctx, snap.ID)
		require.NoError(t, err)
		img, err := png.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 1366, img.Width)
		assert.Equal(t, 768, img.Height)
	})

	t.Run("aria button", func(t *testing.T) {
		snap, err := svc.CreateSnapshot(ctx, SnapshotRequest{
			OriginURL: site.URL + "/", ClickType: "aria", ClickValue: "button:Open report", SettleWaitMs: intp(1000),
		})
		require.NoError(t, err)
		require.NoError(t, snap.Err())
		assert.Equal(t, site.URL+"/report", *snap.PageURL)
	})

	t.Run("popup", func(t *testing.T) {
		snap, err := svc.CreateSnapshot(ctx, SnapshotRequest{
			OriginURL: site.URL + "/", ClickType: "text", ClickValue: "New tab", SettleWaitMs: intp(1500),
		})
		require.NoError(t, err)
		require.NoError(t, snap.Err())
		assert.True(t, snap.Popup)
		assert.Equal(t, site.URL+"/report", *snap.PageURL)
	})
}

func TestChromeNavigationFailure(t *testing.T) {
	svc := chromeService(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	snap, err := svc.CreateSnapshot(context.Background(), SnapshotRequest{
		OriginURL: url + "/", ClickType: "text", ClickValue: "Download",
	})
	require.NoError(t, err)
	assert.ErrorIs(t, snap.Err(), ErrNavigation)
	assert.NotEmpty(t, snap.ScreenshotPath)
}

func TestChromeTextResolution(t *testing.T) {
	svc := chromeService(t)
	pages := map[string]string{
		"/ties": `<a href="/dest/hidden" style="display:none">Choose</a>
			<p><a href="/dest/first">Choose</a></p><p><a href="/dest/second">Choose</a></p>`,
		"/exact": `<p><a href="/dest/partial">Download now</a></p><p><a href="/dest/exact">Download</a></p>`,
		"/nested": `<button onclick="location.href='/dest/button'">Download<span style="display:none">Download</span></button>`,
	}
	mux := http.NewServeMux()
	for path, body := range pages {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `<!DOCTYPE html><html><body>%s</body></html>`, body)
		})
	}
	mux.HandleFunc("/dest/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><h2>%s</h2></body></html>`, r.URL.Path)
	})
	site := httptest.NewServer(mux)
	t.Cleanup(site.Close)

	for _, tc := range []struct {
		name, path, value, want string
	}{
		{"first visible in document order", "/ties", "Choose", "/dest/first"},
		{"exact text over substring", "/exact", "Download", "/dest/exact"},
		{"hidden copy inside visible control", "/nested", "Download", "/dest/button"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			snap, err := svc.CreateSnapshot(ctx, SnapshotRequest{
				OriginURL: site.URL + tc.path, ClickType: "text", ClickValue: tc.value,
				SettleWaitMs: intp(1000), FullPage: boolp(false),
			})
			require.NoError(t, err)
			require.NoError(t, snap.Err())
			require.NotNil(t, snap.PageURL)
			assert.Equal(t, site.URL+tc.want, *snap.PageURL)
		})
	}
}
