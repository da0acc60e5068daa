package clickaudit

import (
	"errors"
	"net/http"

	"github.com/hazyhaar/linkaudit/clickaudit/internal/store"
)

// Pipeline failures. The first four stop the pipeline early but still
// produce a partial record with a screenshot. The others are returned to
// the caller and nothing is recorded.
var (
	ErrNavigation       = errors.New("clickaudit: navigation failed")
	ErrTargetResolution = errors.New("clickaudit: click target not resolved")
	ErrClick            = errors.New("clickaudit: click failed")
	ErrFingerprint      = errors.New("clickaudit: fingerprint failed")

	ErrSession = errors.New("clickaudit: browser session unavailable")
	ErrCapture = errors.New("clickaudit: capture failed")
	ErrStore   = errors.New("clickaudit: audit store failed")
)

var (
	// ErrInvalidRequest is returned before any browser work starts.
	ErrInvalidRequest = errors.New("clickaudit: invalid request")
	// ErrBusy means the worker queue is full.
	ErrBusy = errors.New("clickaudit: too many pending snapshots")
	// ErrNotFound is returned for an unknown snapshot id.
	ErrNotFound = store.ErrNotFound
)

// Recoverable reports whether err is a failure that still yields a record.
func Recoverable(err error) bool {
	return errors.Is(err, ErrNavigation) || errors.Is(err, ErrTargetResolution) ||
		errors.Is(err, ErrClick) || errors.Is(err, ErrFingerprint)
}

// HTTPStatus maps an error to a response code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
