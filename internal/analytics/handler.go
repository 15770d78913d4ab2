package analytics

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"cinevault/internal/platform/logger"
)

// Handler exposes the event-reporting endpoints the player calls.
type Handler struct {
	rec *Recorder
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Recorder and Logger.
func NewHandler(rec *Recorder, log *slog.Logger) *Handler {
	return &Handler{rec: rec, log: log}
}

// Routes mounts the analytics endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/events", h.CreateEvent)
	r.Post("/events/{id}/complete", h.CompleteEvent)
}

type eventInput struct {
	Type            string  `json:"eventType"`
	SubjectID       string  `json:"subjectId"`
	Source          string  `json:"source"`
	DurationWatched float64 `json:"durationWatched"`
}

// CreateEvent handles POST /api/events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in eventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if in.Type == "" || in.SubjectID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ev := &Event{
		Type:            in.Type,
		SubjectID:       in.SubjectID,
		RequesterIP:     logger.RemoteIP(r),
		RequesterAgent:  r.UserAgent(),
		Source:          in.Source,
		DurationWatched: in.DurationWatched,
	}
	if err := h.rec.Record(r.Context(), ev); err != nil {
		h.log.Error("record event failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(ev)
}

// CompleteEvent handles POST /api/events/{id}/complete.
// Body: { "durationWatched": 5400.5 }.
func (h *Handler) CompleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var in struct {
		DurationWatched float64 `json:"durationWatched"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.rec.Complete(r.Context(), id, in.DurationWatched); err != nil {
		if errors.Is(err, ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("complete event failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
