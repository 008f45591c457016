package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/roomcoord/internal/domain"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{"data": data})
}

// writeError отдаёт {"error": {"code", "message"}} со статусом по виду ошибки.
func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		msg = "internal error"
	}
	writeJSON(w, statusFor(kind), envelope{
		"error": envelope{"code": kind, "message": msg},
	})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindRoomNotFound:
		return http.StatusNotFound
	case domain.KindRoomClosed, domain.KindRoomFull, domain.KindUserAlreadyInRoom,
		domain.KindUserNotInRoom, domain.KindDuplicateConnection:
		return http.StatusConflict
	case domain.KindClaimTokenRejected:
		return http.StatusForbidden
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
