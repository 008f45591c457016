package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwrk-planet/roomcoord/pkg/logger"
)

func (c *Coordinator) schedule(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if tm, ok := c.pending[connID]; ok {
		tm.Stop()
	}
	c.pending[connID] = time.AfterFunc(c.cfg.ClaimRetention, func() { c.expire(connID) })
}

func (c *Coordinator) cancel(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tm, ok := c.pending[connID]; ok {
		tm.Stop()
		delete(c.pending, connID)
	}
}

// expire: окно claim истекло, выходим из комнаты и удаляем запись.
// Если запись уже забрали через claim, делать нечего.
func (c *Coordinator) expire(connID string) {
	c.mu.Lock()
	delete(c.pending, connID)
	c.mu.Unlock()

	ident, ok := c.reg.Get(connID)
	if !ok || ident.Live {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.evict(ctx, connID, ident.RoomID)
	if _, removed := c.reg.RemoveOffline(connID); removed {
		slog.Info("claim window expired", logger.Conn(connID), logger.Room(ident.RoomID))
	}
}

// Pending: число отключённых соединений, ожидающих claim.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
