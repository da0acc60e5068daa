package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Filter selects records for List. Zero fields do not filter. The time
// range is half-open: From <= created_at < To.
type Filter struct {
	OriginURL string
	From      time.Time
	To        time.Time
	Limit     int
	// GroupByOrigin orders by origin_url first, then id.
	GroupByOrigin bool
}

// List returns matching records ordered by id.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	var where []string
	var args []any
	if f.OriginURL != "" {
		where = append(where, "origin_url = ?")
		args = append(args, f.OriginURL)
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, f.To.UnixMilli())
	}

	q := `SELECT ` + recordColumns + ` FROM external_link_snapshot`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.GroupByOrigin {
		q += " ORDER BY origin_url, id"
	} else {
		q += " ORDER BY id"
	}
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return s.queryRecords(ctx, q, args...)
}

// History returns every observation of one (origin, click type, click value)
// triple, oldest first.
func (s *Store) History(ctx context.Context, originURL, clickType, clickValue string) ([]Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM external_link_snapshot
		WHERE origin_url = ? AND click_type = ? AND click_value = ?
		ORDER BY id`, originURL, clickType, clickValue)
}

func (s *Store) queryRecords(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DayStat counts the observations of one origin on one UTC day.
type DayStat struct {
	Day            string `json:"day"` // YYYY-MM-DD
	OriginURL      string `json:"origin_url"`
	TotalEvents    int64  `json:"total_events"`
	DistinctHashes int64  `json:"distinct_hashes"`
}

// DailyStats aggregates the trailing window of days*24h per UTC day and
// origin, oldest day first. More than one distinct hash on a day means the
// destination content changed within that day.
func (s *Store) DailyStats(ctx context.Context, days int) ([]DayStat, error) {
	if days <= 0 {
		days = 60
	}
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()

	rows, err := s.DB.QueryContext(ctx, `
		SELECT date(created_at / 1000, 'unixepoch') AS day,
		       origin_url,
		       COUNT(*),
		       COUNT(DISTINCT page_hash)
		FROM external_link_snapshot
		WHERE created_at >= ?
		GROUP BY day, origin_url
		ORDER BY day, origin_url`, since)
	if err != nil {
		return nil, fmt.Errorf("store: daily stats: %w", err)
	}
	defer rows.Close()

	out := []DayStat{}
	for rows.Next() {
		var d DayStat
		if err := rows.Scan(&d.Day, &d.OriginURL, &d.TotalEvents, &d.DistinctHashes); err != nil {
			return nil, fmt.Errorf("store: daily stats: scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
