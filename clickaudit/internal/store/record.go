package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/linkaudit/dbopen"
)

// NewRecord is what the pipeline hands to Append. Id and creation time are
// assigned by the store.
type NewRecord struct {
	OriginURL      string
	ClickType      string
	ClickValue     string
	PageURL        *string
	PageHash       *string
	ScreenshotPath string
}

// Record is one persisted observation. It never changes after Append.
type Record struct {
	ID             int64     `json:"id"`
	OriginURL      string    `json:"origin_url"`
	ClickType      string    `json:"click_type"`
	ClickValue     string    `json:"click_value"`
	PageURL        *string   `json:"page_url"`
	PageHash       *string   `json:"page_hash"`
	ScreenshotPath string    `json:"screenshot_path"`
	CreatedAt      time.Time `json:"created_at"`
}

func (n NewRecord) validate() error {
	switch {
	case n.OriginURL == "":
		return fmt.Errorf("%w: empty origin_url", ErrInvalidRecord)
	case n.ClickType == "":
		return fmt.Errorf("%w: empty click_type", ErrInvalidRecord)
	case n.ScreenshotPath == "":
		return fmt.Errorf("%w: empty screenshot_path", ErrInvalidRecord)
	case n.PageHash != nil && n.PageURL == nil:
		return fmt.Errorf("%w: page_hash without page_url", ErrInvalidRecord)
	}
	return nil
}

// Append inserts r and returns it as persisted. Appends are serialized so
// ids and created_at follow the same order.
func (s *Store) Append(ctx context.Context, r NewRecord) (Record, error) {
	if err := r.validate(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.now().UnixMilli()
	if ms < s.lastMS {
		ms = s.lastMS
	}

	res, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO external_link_snapshot
			(origin_url, click_type, click_value, page_url, page_hash, screenshot_path, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		r.OriginURL, r.ClickType, r.ClickValue,
		nullStr(r.PageURL), nullStr(r.PageHash), r.ScreenshotPath, ms,
	)
	if err != nil {
		return Record{}, fmt.Errorf("store: append: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("store: append: last insert id: %w", err)
	}
	s.lastMS = ms

	return Record{
		ID:             id,
		OriginURL:      r.OriginURL,
		ClickType:      r.ClickType,
		ClickValue:     r.ClickValue,
		PageURL:        r.PageURL,
		PageHash:       r.PageHash,
		ScreenshotPath: r.ScreenshotPath,
		CreatedAt:      time.UnixMilli(ms).UTC(),
	}, nil
}

const recordColumns = `id, origin_url, click_type, click_value, page_url, page_hash, screenshot_path, created_at`

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM external_link_snapshot WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: get %d: %w", id, err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var r Record
	var pageURL, pageHash sql.NullString
	var created int64
	if err := sc.Scan(&r.ID, &r.OriginURL, &r.ClickType, &r.ClickValue,
		&pageURL, &pageHash, &r.ScreenshotPath, &created); err != nil {
		return Record{}, err
	}
	if pageURL.Valid {
		r.PageURL = &pageURL.String
	}
	if pageHash.Valid {
		r.PageHash = &pageHash.String
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	return r, nil
}

func nullStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
