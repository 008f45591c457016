package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/roomcoord/internal/domain"
	"github.com/cwrk-planet/roomcoord/pkg/logger"
)

// Hub: connID -> живое ws-соединение. Реализует domain.Notifier:
// Notify только кладёт кадр в буфер соединения и никогда не ждёт.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*wsConn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*wsConn)}
}

func (h *Hub) Add(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

func (h *Hub) Remove(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.conns[c.id]; ok && cur == c {
		delete(h.conns, c.id)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) Notify(connID string, evt domain.Event) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return // offline или уже закрыт
	}

	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("ws encode event failed", logger.Conn(connID), slog.String("type", evt.Type), slog.Any("err", err))
		return
	}
	if !c.enqueue(data) {
		// медленный клиент: закрываем, отключение придёт через readLoop
		slog.Warn("ws send buffer full, closing", logger.Conn(connID), slog.String("type", evt.Type))
		_ = c.Close()
	}
}
