package clickaudit

import (
	"fmt"
	"time"

	"github.com/hazyhaar/linkaudit/clickaudit/internal/store"
	"github.com/hazyhaar/linkaudit/clickaudit/internal/target"
)

// Stage is the last state the snapshot pipeline reached.
type Stage string

const (
	StagePending        Stage = "pending"
	StageNavigated      Stage = "navigated"
	StageTargetResolved Stage = "target_resolved"
	StageClicked        Stage = "clicked"
	StageSettled        Stage = "settled"
	StageFingerprinted  Stage = "fingerprinted"
	StageCaptured       Stage = "captured"
	StageRecorded       Stage = "recorded"
)

// Record is one persisted observation.
type Record = store.Record

// DayStat is one row of the daily report.
type DayStat = store.DayStat

// SnapshotRequest asks for one observation of a link.
type SnapshotRequest struct {
	OriginURL  string `json:"origin_url"`
	ClickType  string `json:"click_type"`
	ClickValue string `json:"click_value"`
	// SettleWaitMs is the wait after the click before observing, in ms.
	SettleWaitMs *int `json:"settle_wait_ms,omitempty"`
	// WaitAfterClickMs is an alias of SettleWaitMs kept for older clients.
	WaitAfterClickMs *int  `json:"wait_after_click_ms,omitempty"`
	FullPage         *bool `json:"full_page,omitempty"`
}

// settle returns the requested wait. It must stay below limit, which is
// checked in milliseconds so huge values cannot overflow a Duration.
func (r SnapshotRequest) settle(def, limit time.Duration) (time.Duration, error) {
	ms := r.SettleWaitMs
	if ms == nil {
		ms = r.WaitAfterClickMs
	}
	if ms == nil {
		if def >= limit {
			return 0, fmt.Errorf("%w: default settle wait %s exceeds max duration %s", ErrInvalidRequest, def, limit)
		}
		return def, nil
	}
	if *ms < 0 {
		return 0, fmt.Errorf("%w: settle_wait_ms must be >= 0", ErrInvalidRequest)
	}
	if int64(*ms) >= limit.Milliseconds() {
		return 0, fmt.Errorf("%w: settle_wait_ms %d exceeds max duration %s", ErrInvalidRequest, *ms, limit)
	}
	return time.Duration(*ms) * time.Millisecond, nil
}

func (r SnapshotRequest) fullPage() bool {
	return r.FullPage == nil || *r.FullPage
}

// Snapshot is the outcome of CreateSnapshot: the persisted record plus how
// far the observation got. Every returned Snapshot has reached
// StageRecorded. StoppedAt is the last stage the browser part reached
// when it was cut short, empty on a complete run. Stage, StoppedAt, Popup
// and Failure are not persisted.
type Snapshot struct {
	Record
	Stage     Stage  `json:"stage"`
	StoppedAt Stage  `json:"stopped_at,omitempty"`
	Popup     bool   `json:"popup,omitempty"`
	Failure   string `json:"failure,omitempty"`

	err error
}

// Err returns the recoverable error that cut the pipeline short, or nil.
func (s *Snapshot) Err() error { return s.err }

// Complete reports whether the record carries both page_url and page_hash.
func (s *Snapshot) Complete() bool { return s.err == nil && s.PageHash != nil }

// ClickTypes lists the accepted click types.
func ClickTypes() []string { return target.Types() }
