package clickaudit

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/linkaudit/clickaudit/internal/store"
)

// Get returns the record with id, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	return s.store.Get(ctx, id)
}

// Screenshot returns the PNG evidence of record id.
func (s *Service) Screenshot(ctx context.Context, id int64) ([]byte, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.blobs.Load(ctx, rec.ScreenshotPath)
}

// DailyStats returns per-day, per-origin counts for the last days days.
func (s *Service) DailyStats(ctx context.Context, days int) ([]DayStat, error) {
	return s.store.DailyStats(ctx, days)
}

// EventsYesterday returns every record of the previous UTC day, oldest first.
func (s *Service) EventsYesterday(ctx context.Context) ([]Record, error) {
	today := startOfDay(s.now())
	return s.store.List(ctx, store.Filter{From: today.AddDate(0, 0, -1), To: today})
}

// EventsByDay returns the records of one UTC day given as YYYY-MM-DD,
// grouped by origin.
func (s *Service) EventsByDay(ctx context.Context, day string) ([]Record, error) {
	d, err := time.Parse(time.DateOnly, day)
	if err != nil {
		return nil, fmt.Errorf("%w: day %q: want YYYY-MM-DD", ErrInvalidRequest, day)
	}
	return s.store.List(ctx, store.Filter{From: d, To: d.AddDate(0, 0, 1), GroupByOrigin: true})
}

// EventsByMonth returns the records of one UTC calendar month, grouped by origin.
func (s *Service) EventsByMonth(ctx context.Context, year, month int) ([]Record, error) {
	if month < 1 || month > 12 || year < 1970 || year > 9999 {
		return nil, fmt.Errorf("%w: year %d month %d", ErrInvalidRequest, year, month)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return s.store.List(ctx, store.Filter{From: from, To: from.AddDate(0, 1, 0), GroupByOrigin: true})
}

// EventsByRange returns the records created in [start, end], both bounds
// included, grouped by origin.
func (s *Service) EventsByRange(ctx context.Context, start, end time.Time) ([]Record, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end_time before start_time", ErrInvalidRequest)
	}
	return s.store.List(ctx, store.Filter{From: start, To: end.Add(time.Millisecond), GroupByOrigin: true})
}

// Comparison describes how two observations of a link differ.
type Comparison struct {
	// SameTarget is true when both records observe the same origin and control.
	SameTarget  bool `json:"same_target"`
	URLChanged  bool `json:"url_changed"`
	HashChanged bool `json:"hash_changed"`
	// Tampered is SameTarget with a changed destination URL or DOM digest.
	Tampered bool `json:"tampered"`
}

// Compare reports the differences between an earlier record a and a later
// record b. Missing page_url/page_hash values never count as a change.
func Compare(a, b Record) Comparison {
	c := Comparison{
		SameTarget: a.OriginURL == b.OriginURL && a.ClickType == b.ClickType && a.ClickValue == b.ClickValue,
	}
	c.URLChanged = a.PageURL != nil && b.PageURL != nil && *a.PageURL != *b.PageURL
	c.HashChanged = a.PageHash != nil && b.PageHash != nil && *a.PageHash != *b.PageHash
	c.Tampered = c.SameTarget && (c.URLChanged || c.HashChanged)
	return c
}

// HistoryEntry is one observation of a link with its difference from the
// previous complete observation.
type HistoryEntry struct {
	Record
	Change *Comparison `json:"change,omitempty"`
}

// History returns every observation of one link, oldest first. Each entry
// after the first complete one carries its comparison with the previous
// complete observation.
func (s *Service) History(ctx context.Context, originURL, clickType, clickValue string) ([]HistoryEntry, error) {
	recs, err := s.store.History(ctx, originURL, clickType, clickValue)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, len(recs))
	var prev *Record
	for i := range recs {
		out[i].Record = recs[i]
		if recs[i].PageHash == nil {
			continue
		}
		if prev != nil {
			c := Compare(*prev, recs[i])
			out[i].Change = &c
		}
		prev = &recs[i]
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseTime accepts RFC 3339 and the zone-less forms older clients send,
// which are read as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: time %q: want RFC 3339 or YYYY-MM-DDTHH:MM:SS", ErrInvalidRequest, s)
}
