package store

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/linkaudit/dbopen"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	var opts []dbopen.Option
	for _, s := range Schema {
		opts = append(opts, dbopen.WithSchema(s))
	}
	s, err := New(dbopen.OpenMemory(t, opts...))
	require.NoError(t, err)
	return s
}

func strp(s string) *string { return &s }

func sample(origin string) NewRecord {
	return NewRecord{
		OriginURL:      origin,
		ClickType:      "text",
		ClickValue:     "  Download PDF ",
		PageURL:        strp("https://dest.example/file.pdf"),
		PageHash:       strp("ab12"),
		ScreenshotPath: "2026-10-17/20261017_101010_abcd1234.png",
	}
}

func TestAppendGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec, err := s.Append(ctx, sample("https://origin.example/"))
	require.NoError(t, err)
	assert.Positive(t, rec.ID)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, "  Download PDF ", got.ClickValue, "click_value stored verbatim")

	again, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestGetNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendPartialRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := sample("https://origin.example/")
	r.PageURL, r.PageHash = nil, nil
	rec, err := s.Append(ctx, r)
	require.NoError(t, err)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PageURL)
	assert.Nil(t, got.PageHash)
	assert.NotEmpty(t, got.ScreenshotPath)

	// Settled but fingerprint failed: url without hash is valid.
	r.PageURL = strp("https://dest.example/")
	_, err = s.Append(ctx, r)
	require.NoError(t, err)
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := sample("https://origin.example/")
	r.PageURL = nil
	_, err := s.Append(ctx, r)
	assert.ErrorIs(t, err, ErrInvalidRecord)

	r = sample("https://origin.example/")
	r.ScreenshotPath = ""
	_, err = s.Append(ctx, r)
	assert.ErrorIs(t, err, ErrInvalidRecord)

	// The table enforces the same pairing even for raw inserts.
	_, err = s.DB.Exec(`INSERT INTO external_link_snapshot
		(origin_url, click_type, click_value, page_url, page_hash, screenshot_path, created_at)
		VALUES ('o','text','v',NULL,'h','p',1)`)
	assert.Error(t, err)
}

func TestAppendOnlyTriggers(t *testing.T) {
	s := testStore(t)
	rec, err := s.Append(context.Background(), sample("https://origin.example/"))
	require.NoError(t, err)

	_, err = s.DB.Exec(`UPDATE external_link_snapshot SET page_hash = 'x' WHERE id = ?`, rec.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = s.DB.Exec(`DELETE FROM external_link_snapshot WHERE id = ?`, rec.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	got, err := s.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestConcurrentAppendOrdering(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const n = 32
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.Append(ctx, sample("https://origin.example/"))
			assert.NoError(t, err)
			ids[i] = rec.ID
		}()
	}
	wg.Wait()

	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for i := 1; i < n; i++ {
		assert.Less(t, ids[i-1], ids[i], "ids must be unique")
	}

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, n)
	for i := 1; i < n; i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
		assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt))
	}
}

func TestCreatedAtMonotonic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	first, err := s.Append(ctx, sample("https://origin.example/"))
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(-time.Hour) }
	second, err := s.Append(ctx, sample("https://origin.example/"))
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestListFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	s.now = func() time.Time { return day1 }
	_, err := s.Append(ctx, sample("https://a.example/"))
	require.NoError(t, err)
	s.now = func() time.Time { return day2 }
	_, err = s.Append(ctx, sample("https://a.example/"))
	require.NoError(t, err)
	_, err = s.Append(ctx, sample("https://b.example/"))
	require.NoError(t, err)

	got, err := s.List(ctx, Filter{OriginURL: "https://a.example/"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.List(ctx, Filter{From: day2.Truncate(24 * time.Hour), To: day2.Truncate(24 * time.Hour).AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = s.Append(ctx, sample("https://a.example/"))
	require.NoError(t, err)
	got, err = s.List(ctx, Filter{GroupByOrigin: true})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "https://b.example/", got[3].OriginURL)

	got, err = s.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://a.example/", got[0].OriginURL)
}

func TestHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := sample("https://a.example/")
	b := sample("https://a.example/")
	b.ClickType, b.ClickValue = "css", "#dl"
	for _, r := range []NewRecord{a, b, a} {
		_, err := s.Append(ctx, r)
		require.NoError(t, err)
	}

	h, err := s.History(ctx, a.OriginURL, a.ClickType, a.ClickValue)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Less(t, h[0].ID, h[1].ID)
}

func TestDailyStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return now.AddDate(0, 0, -90) }
	_, err := s.Append(ctx, sample("https://a.example/"))
	require.NoError(t, err)

	s.now = func() time.Time { return now }
	r1 := sample("https://a.example/")
	r2 := sample("https://a.example/")
	r2.PageHash = strp("cd34")
	r3 := sample("https://a.example/")
	r3.PageURL, r3.PageHash = nil, nil
	for _, r := range []NewRecord{r1, r2, r3} {
		_, err := s.Append(ctx, r)
		require.NoError(t, err)
	}

	stats, err := s.DailyStats(ctx, 60)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, DayStat{
		Day:            "2026-10-17",
		OriginURL:      "https://a.example/",
		TotalEvents:    3,
		DistinctHashes: 2,
	}, stats[0])
}
