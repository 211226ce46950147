package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"registro/internal/core"
)

type entryRequest struct {
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Price       string   `json:"price"`
	Quantity    string   `json:"quantity"`
	Categories  []string `json:"categories"`
	ImageRefs   []string `json:"image_refs"`
	Checked     bool     `json:"checked"`
}

type entryResponse struct {
	ID          int64    `json:"id"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Price       string   `json:"price"`
	PriceCents  int64    `json:"price_cents"`
	Quantity    string   `json:"quantity"`
	Categories  []string `json:"categories"`
	ImageRefs   []string `json:"image_refs"`
	Checked     bool     `json:"checked"`
}

func (s *Server) toEntry(req entryRequest) (core.Entry, error) {
	day, err := core.ParseDay(strings.TrimSpace(req.Date), s.loc)
	if err != nil {
		return core.Entry{}, core.ErrInvalidDate
	}
	return core.Entry{
		DateMs:      core.DayStartMs(day),
		Description: sanitizeInput(req.Description),
		Price:       strings.TrimSpace(req.Price),
		Quantity:    strings.TrimSpace(req.Quantity),
		Categories:  req.Categories,
		ImageRefs:   req.ImageRefs,
		Checked:     req.Checked,
	}, nil
}

func (s *Server) toEntryResponse(e core.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		Date:        time.UnixMilli(e.DateMs).In(s.loc).Format("2006-01-02"),
		Description: e.Description,
		Price:       e.Price,
		PriceCents:  core.PriceCents(e.Price),
		Quantity:    e.Quantity,
		Categories:  e.Categories,
		ImageRefs:   e.ImageRefs,
		Checked:     e.Checked,
	}
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateEntry(w, r)
	case http.MethodGet:
		s.handleListEntries(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := s.toEntry(req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := entry.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	id, err := s.service.CreateEntry(r.Context(), entry)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	entry.ID = id
	writeJSON(w, http.StatusCreated, s.toEntryResponse(entry))
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	dayParam := strings.TrimSpace(r.URL.Query().Get("day"))
	if dayParam == "" {
		writeError(w, http.StatusBadRequest, "missing day parameter")
		return
	}
	day, err := core.ParseDay(dayParam, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid day parameter, expected YYYY-MM-DD")
		return
	}

	entries, err := s.service.EntriesForDay(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEntryByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/entries/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, err := s.service.GetEntry(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.toEntryResponse(entry))

	case http.MethodPut:
		var req entryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		entry, err := s.toEntry(req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		entry.ID = id
		if err := entry.Validate(); err != nil {
			writeServiceError(w, r, err)
			return
		}
		if err := s.service.UpdateEntry(r.Context(), entry); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.toEntryResponse(entry))

	case http.MethodDelete:
		if err := s.service.DeleteEntry(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusNoContent, nil)

	default:
		methodNotAllowed(w, "GET, PUT, DELETE")
	}
}
