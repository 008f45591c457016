package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/roomcoord/internal/coordinator"
	"github.com/cwrk-planet/roomcoord/internal/domain"

	"github.com/go-chi/chi/v5"
)

// Rooms: часть движка, доступная по REST.
type Rooms interface {
	CreateRoom(ctx context.Context, creatorID string, req coordinator.CreateRoom) (domain.Snapshot, error)
	ViewRoom(ctx context.Context, roomID string) (domain.Snapshot, error)
}

type Handler struct {
	rooms Rooms
}

func NewHandler(rooms Rooms) *Handler {
	return &Handler{rooms: rooms}
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var in coordinator.CreateRoom
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", domain.ErrInvalidRequest))
		return
	}
	snap, err := h.rooms.CreateRoom(r.Context(), "", in)
	if err != nil {
		slog.Warn("handler.CreateRoom", slog.Any("err", err))
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, snap)
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := h.rooms.ViewRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}
