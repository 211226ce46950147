package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"registro/internal/core"
)

type lineItemResponse struct {
	Description string   `json:"description"`
	Price       string   `json:"price"`
	PriceCents  int64    `json:"price_cents"`
	Quantity    string   `json:"quantity"`
	Categories  []string `json:"categories"`
	ImageRefs   []string `json:"image_refs"`
	Checked     bool     `json:"checked"`
	SourceID    *int64   `json:"source_id,omitempty"`
}

type recordResponse struct {
	ID           int64              `json:"id"`
	Day          string             `json:"day"`
	Master       bool               `json:"master"`
	Items        []lineItemResponse `json:"items"`
	TotalCents   int64              `json:"total_cents"`
	CheckedCount int                `json:"checked_count"`
	CheckedCents int64              `json:"checked_cents"`
	UpdatedAtMs  int64              `json:"updated_at_ms"`
}

type saveResponse struct {
	Queued         bool `json:"queued"`
	RegularCreated bool `json:"regular_created"`
	MasterChanged  bool `json:"master_changed"`
}

func (s *Server) toRecordResponse(rec core.LedgerRecord) recordResponse {
	items := make([]lineItemResponse, 0, len(rec.Items))
	for _, it := range rec.Items {
		items = append(items, lineItemResponse{
			Description: it.Description,
			Price:       it.Price,
			PriceCents:  it.PriceCents(),
			Quantity:    it.Quantity,
			Categories:  it.Categories,
			ImageRefs:   it.ImageRefs,
			Checked:     it.Checked,
			SourceID:    it.SourceID,
		})
	}
	return recordResponse{
		ID:           rec.ID,
		Day:          time.UnixMilli(rec.RecordDateMs).In(s.loc).Format("2006-01-02"),
		Master:       rec.Master,
		Items:        items,
		TotalCents:   rec.TotalCents,
		CheckedCount: rec.CheckedCount,
		CheckedCents: rec.CheckedCents,
		UpdatedAtMs:  rec.UpdatedAtMs,
	}
}

// handleDays routes /api/days/{day}/{action} requests.
func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/days/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	day, err := core.ParseDay(parts[0], s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid day, expected YYYY-MM-DD")
		return
	}

	switch parts[1] {
	case "save":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, "POST")
			return
		}
		s.handleSaveDay(w, r, day, parts[0])
	case "records":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, "GET")
			return
		}
		s.handleDayRecords(w, r, day)
	case "master":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, "GET")
			return
		}
		s.handleDayMaster(w, r, day)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleSaveDay queues the save when a publisher is configured, otherwise
// reconciles synchronously in the request.
func (s *Server) handleSaveDay(w http.ResponseWriter, r *http.Request, day time.Time, dayStr string) {
	if s.publisher != nil {
		if err := s.publisher.PublishDaySave(r.Context(), dayStr); err != nil {
			slog.ErrorContext(r.Context(), "Failed to queue day save, falling back to sync",
				"day", dayStr, "error", err)
		} else {
			writeJSON(w, http.StatusAccepted, saveResponse{Queued: true})
			return
		}
	}

	res, err := s.service.SaveDay(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{
		RegularCreated: res.RegularCreated,
		MasterChanged:  res.MasterChanged,
	})
}

func (s *Server) handleDayRecords(w http.ResponseWriter, r *http.Request, day time.Time) {
	master := strings.EqualFold(r.URL.Query().Get("master"), "true")

	records, err := s.service.RecordsForDay(r.Context(), day, master)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, s.toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDayMaster(w http.ResponseWriter, r *http.Request, day time.Time) {
	rec, err := s.service.MasterForDay(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toRecordResponse(rec))
}
