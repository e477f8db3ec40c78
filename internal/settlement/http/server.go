package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/settlement"
	"github.com/radieske/sports-wager-engine/internal/wager"
)

// Server expõe grading/cancelamento manual e consultas de apostas e ledger (admin)
type Server struct {
	log *zap.Logger
	eng *settlement.Engine
}

func NewServer(log *zap.Logger, eng *settlement.Engine) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log, eng: eng}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/wagers/pending", s.listPending)                      // ?before=RFC3339&limit=
	r.Get("/v1/wagers/{id}", s.getWager)                            // GET
	r.Post("/v1/wagers/{id}/grade", s.gradeWager)                   // POST {signals:[...]}
	r.Post("/v1/wagers/{id}/cancel", s.cancelWager)                 // POST {reason}
	r.Get("/v1/ledger/{owner}/{group}/{year}/{month}", s.getLedger) // GET
	return r
}

type gradeRequest struct {
	Signals []settlement.LegSignal `json:"signals"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// wagerResponse é a aposta como exposta pela API
type wagerResponse struct {
	ID                int64       `json:"id"`
	OwnerID           string      `json:"ownerId"`
	GroupID           string      `json:"groupId"`
	Kind              string      `json:"kind"`
	Legs              []wager.Leg `json:"legs"`
	Units             string      `json:"units"`
	Odds              int         `json:"odds"`
	OddsOverridden    bool        `json:"oddsOverridden"`
	Status            string      `json:"status"`
	ResultDescription string      `json:"resultDescription,omitempty"`
	ResultValue       string      `json:"resultValue"`
	Destination       string      `json:"destination"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

func toResponse(w *wager.Wager) wagerResponse {
	return wagerResponse{
		ID:                w.ID,
		OwnerID:           w.OwnerID,
		GroupID:           w.GroupID,
		Kind:              w.Kind.String(),
		Legs:              w.Legs,
		Units:             w.Units.String(),
		Odds:              w.Odds,
		OddsOverridden:    w.OddsOverridden,
		Status:            string(w.Status),
		ResultDescription: w.ResultDescription,
		ResultValue:       w.ResultValue.String(),
		Destination:       w.Destination,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, wager.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, wager.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, wager.ErrGradingConflict):
		status = http.StatusConflict
	case errors.Is(err, wager.ErrPersistence):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.log.Warn("settlement request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func wagerID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) getWager(w http.ResponseWriter, r *http.Request) {
	id, ok := wagerID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid wager id"})
		return
	}
	wg, err := s.eng.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(wg))
}

func (s *Server) gradeWager(w http.ResponseWriter, r *http.Request) {
	id, ok := wagerID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid wager id"})
		return
	}
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	wg, err := s.eng.Grade(r.Context(), id, req.Signals)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(wg))
}

func (s *Server) cancelWager(w http.ResponseWriter, r *http.Request) {
	id, ok := wagerID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid wager id"})
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
			return
		}
	}
	wg, err := s.eng.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(wg))
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	before := time.Now().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "before must be RFC3339"})
			return
		}
		before = t
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	ws, err := s.eng.Pending(r.Context(), before, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]wagerResponse, len(ws))
	for i := range ws {
		out[i] = toResponse(&ws[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	year, err1 := strconv.Atoi(chi.URLParam(r, "year"))
	month, err2 := strconv.Atoi(chi.URLParam(r, "month"))
	if err1 != nil || err2 != nil || month < 1 || month > 12 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid period"})
		return
	}
	le, err := s.eng.Ledger(r.Context(), wager.LedgerKey{
		OwnerID: chi.URLParam(r, "owner"),
		GroupID: chi.URLParam(r, "group"),
		Year:    year,
		Month:   month,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ownerId":   le.OwnerID,
		"groupId":   le.GroupID,
		"year":      le.Year,
		"month":     le.Month,
		"delta":     le.Delta.String(),
		"graded":    le.Graded,
		"updatedAt": le.UpdatedAt,
	})
}
