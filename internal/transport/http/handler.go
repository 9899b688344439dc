package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"quiz-ladder-service/internal/domain"
	"quiz-ladder-service/internal/game"
)

// AdminHandler exposes the operator surface: leaderboard reads, stage
// switching, loser release, and the full progress reset. Authentication and
// rendering live in front of this service.
type AdminHandler struct {
	service *game.Service
}

func NewAdminHandler(service *game.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// Register wires the admin routes onto mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/leaderboard", h.handleLeaderboard)
	mux.HandleFunc("/rank", h.handleRank)
	mux.HandleFunc("/stage", h.handleStage)
	mux.HandleFunc("/release", h.handleRelease)
	mux.HandleFunc("/reset", h.handleReset)
}

func (h *AdminHandler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	lb, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *AdminHandler) handleRank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		http.Error(w, "missing playerId", http.StatusBadRequest)
		return
	}
	rank, ranked, err := h.service.PlayerRank(r.Context(), playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ranked {
		writeJSON(w, http.StatusOK, map[string]any{"playerId": playerID, "unranked": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playerId": playerID, "rank": rank})
}

func (h *AdminHandler) handleStage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Stage int64 `json:"stage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.service.SetStage(r.Context(), body.Stage); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Notifying released players is the bot's job; the admin surface just
	// reports who to notify.
	var released []string
	advanced, err := h.service.BulkAdvanceLosers(r.Context(), func(p domain.Player) {
		released = append(released, p.ID)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"advanced": advanced, "players": released})
}

func (h *AdminHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.service.ResetAllProgress(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPlayerNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrVariantNotFound),
		errors.Is(err, domain.ErrStageNotFound),
		errors.Is(err, domain.ErrUnknownHintKind):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, "try again", http.StatusConflict)
	default:
		log.Printf("admin request failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
