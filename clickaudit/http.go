package clickaudit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/linkaudit/shield"
)

// Version is reported by GET /.
var Version = "1.0.0"

// Handler returns the HTTP API with the shield middleware stack applied.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack() {
		r.Use(mw)
	}
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API on r.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "linkaudit", "version": Version, "status": "running",
		})
	})
	r.Get("/health", s.handleHealth)
	r.Get("/api/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.Stats())
	})

	r.Route("/api/external-link-snapshot", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Post("/history", s.handleHistory)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/screenshot", s.handleScreenshot)
	})

	r.Post("/get-daily-stats-last-60-days", s.handleDailyStats)
	r.Post("/get-yesterday-events", func(w http.ResponseWriter, r *http.Request) {
		recs, err := s.EventsYesterday(r.Context())
		writeResult(w, r, recs, err)
	})
	r.Post("/get-events-by-day", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Day string `json:"day"`
		}
		if !decodeBody(w, r, "day", &req) {
			return
		}
		recs, err := s.EventsByDay(r.Context(), req.Day)
		writeResult(w, r, recs, err)
	})
	r.Post("/get-events-by-month", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Year  int `json:"year"`
			Month int `json:"month"`
		}
		if !decodeBody(w, r, "month", &req) {
			return
		}
		recs, err := s.EventsByMonth(r.Context(), req.Year, req.Month)
		writeResult(w, r, recs, err)
	})
	r.Post("/get-events-by-range", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
		}
		if !decodeBody(w, r, "range", &req) {
			return
		}
		start, err := ParseTime(req.StartTime)
		if err != nil {
			writeError(w, r, err)
			return
		}
		end, err := ParseTime(req.EndTime)
		if err != nil {
			writeError(w, r, err)
			return
		}
		recs, err := s.EventsByRange(r.Context(), start, end)
		writeResult(w, r, recs, err)
	})
}

type createResponse struct {
	SnapshotID int64     `json:"snapshot_id"`
	Status     string    `json:"status"` // "ok" or "partial"
	Snapshot   *Snapshot `json:"snapshot"`
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if !decodeBody(w, r, "snapshot", &req) {
		return
	}
	log := shield.GetLogger(r.Context())
	log.Info("clickaudit: snapshot requested", "origin_url", req.OriginURL, "click_type", req.ClickType)

	snap, err := s.CreateSnapshot(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := "ok"
	if snap.Err() != nil {
		status = "partial"
	}
	writeJSON(w, http.StatusOK, createResponse{SnapshotID: snap.ID, Status: status, Snapshot: snap})
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := s.Get(r.Context(), id)
	writeResult(w, r, rec, err)
}

func (s *Service) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	png, err := s.Screenshot(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OriginURL  string `json:"origin_url"`
		ClickType  string `json:"click_type"`
		ClickValue string `json:"click_value"`
	}
	if !decodeBody(w, r, "history", &req) {
		return
	}
	h, err := s.History(r.Context(), req.OriginURL, req.ClickType, req.ClickValue)
	writeResult(w, r, h, err)
}

func (s *Service) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days int `json:"days"`
	}
	if !decodeBody(w, r, "stats", &req) {
		return
	}
	if req.Days == 0 {
		req.Days = 60
	}
	stats, err := s.DailyStats(r.Context(), req.Days)
	writeResult(w, r, stats, err)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: read body: %v", ErrInvalidRequest, err))
		return false
	}
	if err := decodeValid(schema, data, dst); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, fmt.Errorf("%w: id must be a positive integer", ErrInvalidRequest))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeResult[T any](w http.ResponseWriter, r *http.Request, v T, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := HTTPStatus(err)
	if code >= 500 && !errors.Is(err, ErrBusy) {
		shield.GetLogger(r.Context()).Error("clickaudit: request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"status": "error", "message": err.Error()})
}
