package clickaudit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, newTab func() *fakeTab) (*Service, *httptest.Server) {
	t.Helper()
	svc, _ := testService(t, nil, newTab)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return svc, srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	json.Unmarshal(data, &out)
	return resp, out
}

func TestHTTPCreateAndGet(t *testing.T) {
	_, srv := testServer(t, okTab)

	resp, body := post(t, srv.URL+"/api/external-link-snapshot",
		`{"origin_url":"https://origin.example/","click_type":"text","click_value":"Download","wait_after_click_ms":0}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))
	id := int(body["snapshot_id"].(float64))
	require.Positive(t, id)

	snap := body["snapshot"].(map[string]any)
	assert.Equal(t, "recorded", snap["stage"])
	assert.Equal(t, "https://dest.example/r.pdf", snap["page_url"])

	get, err := http.Get(srv.URL + "/api/external-link-snapshot/" + itoa(id))
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)
	var rec Record
	require.NoError(t, json.NewDecoder(get.Body).Decode(&rec))
	assert.Equal(t, int64(id), rec.ID)
	assert.Equal(t, "Download", rec.ClickValue)

	shot, err := http.Get(srv.URL + "/api/external-link-snapshot/" + itoa(id) + "/screenshot")
	require.NoError(t, err)
	defer shot.Body.Close()
	assert.Equal(t, "image/png", shot.Header.Get("Content-Type"))
	png, _ := io.ReadAll(shot.Body)
	assert.Equal(t, testPNG, png)
}

func TestHTTPPartialSnapshot(t *testing.T) {
	_, srv := testServer(t, func() *fakeTab {
		return &fakeTab{stage: StageNavigated, err: assert.AnError}
	})
	resp, body := post(t, srv.URL+"/api/external-link-snapshot",
		`{"origin_url":"https://origin.example/","click_type":"css","click_value":"#nonexistent"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "partial", body["status"])
	snap := body["snapshot"].(map[string]any)
	assert.Nil(t, snap["page_url"])
	assert.Nil(t, snap["page_hash"])
	assert.NotEmpty(t, snap["screenshot_path"])
	assert.NotEmpty(t, snap["failure"])
	assert.Equal(t, "recorded", snap["stage"])
	assert.Equal(t, "navigated", snap["stopped_at"])
}

func TestHTTPValidation(t *testing.T) {
	_, srv := testServer(t, okTab)
	for name, body := range map[string]string{
		"malformed":     `{"origin_url":`,
		"missing value": `{"origin_url":"https://o/","click_type":"text"}`,
		"bad type":      `{"origin_url":"https://o/","click_type":"label","click_value":"x"}`,
		"unknown field": `{"origin_url":"https://o/","click_type":"text","click_value":"x","wait":1}`,
		"neg settle":    `{"origin_url":"https://o/","click_type":"text","click_value":"x","settle_wait_ms":-5}`,
		"bad scheme":    `{"origin_url":"ftp://o/","click_type":"text","click_value":"x"}`,
	} {
		resp, out := post(t, srv.URL+"/api/external-link-snapshot", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
		assert.Equal(t, "error", out["status"], name)
	}
}

func TestHTTPNotFound(t *testing.T) {
	_, srv := testServer(t, okTab)

	resp, err := http.Get(srv.URL + "/api/external-link-snapshot/42")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/external-link-snapshot/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPReports(t *testing.T) {
	svc, srv := testServer(t, okTab)
	_, err := svc.CreateSnapshot(t.Context(), request())
	require.NoError(t, err)
	today := time.Now().UTC()

	decodeList := func(resp *http.Response) []any {
		t.Helper()
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out []any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}
	postRaw := func(path, body string) *http.Response {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		return resp
	}

	assert.Len(t, decodeList(postRaw("/get-daily-stats-last-60-days", "")), 1)
	assert.Len(t, decodeList(postRaw("/get-events-by-day", `{"day":"`+today.Format(time.DateOnly)+`"}`)), 1)
	assert.Len(t, decodeList(postRaw("/get-events-by-month",
		`{"year":`+itoa(today.Year())+`,"month":`+itoa(int(today.Month()))+`}`)), 1)
	assert.Len(t, decodeList(postRaw("/get-events-by-range",
		`{"start_time":"`+today.Add(-time.Hour).Format("2006-01-02T15:04:05")+
			`","end_time":"`+today.Add(time.Hour).Format("2006-01-02T15:04:05")+`"}`)), 1)
	assert.Empty(t, decodeList(postRaw("/get-yesterday-events", "")))

	history := decodeList(postRaw("/api/external-link-snapshot/history",
		`{"origin_url":"https://origin.example/","click_type":"text","click_value":"Download"}`))
	assert.Len(t, history, 1)

	resp := postRaw("/get-events-by-month", `{"year":2026,"month":13}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPHealth(t *testing.T) {
	_, srv := testServer(t, okTab)
	for _, path := range []string{"/health", "/", "/api/stats"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
