package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"competition-engine/internal/app"
	"competition-engine/internal/domain"
)

// Handler exposes the engine's operational surface: admin triggers for
// qualification, reconciliation and termination, plus the public
// leaderboard/winner reads.
type Handler struct {
	service *app.CompetitionService
	auth    app.Authorizer
}

func NewHandler(service *app.CompetitionService, auth app.Authorizer) *Handler {
	return &Handler{service: service, auth: auth}
}

// Register wires all routes into the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /competitions/{id}", h.getCompetition)
	mux.HandleFunc("POST /competitions/{id}/join", h.joinCompetition)
	mux.HandleFunc("POST /competitions/{id}/rounds/{roundID}/submit", h.submitPost)
	mux.HandleFunc("GET /rounds/{id}/leaderboard", h.getLeaderboard)
	mux.HandleFunc("GET /competitions/{id}/winners", h.getWinners)

	mux.HandleFunc("POST /competitions/{id}/rounds/{roundID}/process", h.requireAdmin(h.processRound))
	mux.HandleFunc("POST /competitions/{id}/reconcile", h.requireAdmin(h.reconcile))
	mux.HandleFunc("POST /competitions/{id}/evaluate", h.requireAdmin(h.evaluate))
}

func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		ok, err := h.auth.Authorize(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		next(w, r)
	}
}

// getCompetition returns the competition detail. Termination evaluation runs
// lazily here: a round boundary crossing has no natural caller, so every read
// is one. Evaluation failures never block the read.
func (h *Handler) getCompetition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.service.EvaluateTermination(r.Context(), id); err != nil {
		log.Printf("lazy termination evaluation for %s failed: %v", id, err)
	}
	comp, err := h.service.GetCompetition(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (h *Handler) joinCompetition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	participant, err := h.service.Join(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, participant)
}

func (h *Handler) submitPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		PostID string `json:"postId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.PostID == "" {
		http.Error(w, "userId and postId required", http.StatusBadRequest)
		return
	}
	entry, err := h.service.SubmitPost(r.Context(), r.PathValue("id"), req.UserID, r.PathValue("roundID"), req.PostID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	pageSize := 0
	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			pageSize = n
		}
	}
	page, err := h.service.BuildLeaderboard(r.Context(), r.PathValue("id"), r.URL.Query().Get("cursor"), pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) getWinners(w http.ResponseWriter, r *http.Request) {
	winners, err := h.service.ResolveWinners(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, winners)
}

func (h *Handler) processRound(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ProcessRound(r.Context(), r.PathValue("roundID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ReconcileCompetition(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	decision, err := h.service.EvaluateTermination(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrCompetitionNotFound),
		errors.Is(err, domain.ErrRoundNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrEntryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRoundNotClosed),
		errors.Is(err, domain.ErrRoundNotOpen),
		errors.Is(err, domain.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrDuplicateEntry),
		errors.Is(err, domain.ErrCompetitionTerminated),
		errors.Is(err, domain.ErrCompetitionNotEnded):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCursor):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrParticipantDisqualified):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrEngagementRead):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
