package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type callDTO struct {
	CallID        string     `json:"call_id"`
	PeerID        string     `json:"peer_id"`
	RoomID        string     `json:"room_id"`
	Direction     string     `json:"direction"`
	MediaKind     string     `json:"media_kind"`
	State         string     `json:"state"`
	CreatedAt     time.Time  `json:"created_at"`
	TalkStartedAt *time.Time `json:"talk_started_at,omitempty"`
}

func toCallDTO(r domain.CallRecord) callDTO {
	return callDTO{
		CallID:        r.ID.String(),
		PeerID:        r.PeerUserID.String(),
		RoomID:        r.RoomID.String(),
		Direction:     string(r.Direction),
		MediaKind:     string(r.MediaKind),
		State:         r.State.String(),
		CreatedAt:     r.CreatedAt,
		TalkStartedAt: r.TalkStartedAt,
	}
}

type historyDTO struct {
	CallID     string    `json:"call_id"`
	PeerID     string    `json:"peer_id"`
	RoomID     string    `json:"room_id"`
	Direction  string    `json:"direction"`
	MediaKind  string    `json:"media_kind"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMs int64     `json:"duration_ms"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"calls":  len(h.Coordinator.Calls()),
	})
}

func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	calls := h.Coordinator.Calls()
	out := make([]callDTO, 0, len(calls))
	for _, c := range calls {
		out = append(out, toCallDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ActiveCall(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.Coordinator.Active()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toCallDTO(rec))
}

func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := h.Coordinator.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallDTO(rec))
}

func (h *Handler) EndCall(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	reason, err := domain.ParseEndReason(req.Reason)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.Coordinator.RequestEndCall(r.Context(), id, reason); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CallHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeJSON(w, http.StatusOK, []historyDTO{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.History.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read call history")
		writeError(w, http.StatusInternalServerError, errors.New("history unavailable"))
		return
	}
	out := make([]historyDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyDTO{
			CallID:     e.CallID.String(),
			PeerID:     e.PeerUserID.String(),
			RoomID:     e.RoomID.String(),
			Direction:  string(e.Direction),
			MediaKind:  string(e.MediaKind),
			Outcome:    string(e.Outcome),
			Reason:     string(e.Reason),
			CreatedAt:  e.CreatedAt,
			EndedAt:    e.EndedAt,
			DurationMs: e.DurationMs,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownCall):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrDuplicateCall), errors.Is(err, domain.ErrGateConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, domain.ErrAdapterFailure):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
