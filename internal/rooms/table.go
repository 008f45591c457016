// Package rooms держит активное состояние комнат: участников, историю
// сообщений и инвариант occupancy <= userLimit. Каждая комната
// сериализуется своим мьютексом, общего лока на таблицу нет.
package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/roomcoord/internal/domain"
	"github.com/cwrk-planet/roomcoord/internal/registry"
	"github.com/cwrk-planet/roomcoord/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const loadTimeout = 10 * time.Second

type Table struct {
	repo   Repository
	reg    *registry.Registry
	notify domain.Notifier

	now   func() time.Time
	newID func() string

	rooms sync.Map // roomID -> *room
	loads singleflight.Group
}

type Option func(*Table)

func WithClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

func NewTable(repo Repository, reg *registry.Registry, notify domain.Notifier, opts ...Option) *Table {
	t := &Table{
		repo:   repo,
		reg:    reg,
		notify: notify,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// EnsureLoaded подгружает метаданные при первом обращении.
// Параллельные первые обращения к одной комнате схлопываются в один Load.
func (t *Table) EnsureLoaded(ctx context.Context, roomID string) error {
	_, err := t.load(ctx, roomID)
	return err
}

// Seat кладёт созданную комнату в таблицу вместе с создателем и отдаёт
// ему снапшот событием create_room. Слот в реестре (active room = meta.ID)
// вызывающий резервирует заранее; если соединение его уже потеряло,
// комната остаётся пустой.
func (t *Table) Seat(meta domain.Room, creatorID string) domain.Snapshot {
	v, _ := t.rooms.LoadOrStore(meta.ID, newRoom(meta))
	rm := v.(*room)

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if creatorID != "" && !rm.has(creatorID) {
		if ident, ok := t.reg.Get(creatorID); ok && ident.RoomID == meta.ID {
			rm.add(creatorID)
		}
	}
	snap := rm.snapshot()
	if creatorID != "" {
		t.notify.Notify(creatorID, domain.Event{Type: domain.EventCreateRoom, Payload: snap})
	}
	return snap
}

// Join: вход в комнату. Повторный вход тем же соединением не ошибка:
// снапшот уходит только ему, остальным ничего.
func (t *Table) Join(ctx context.Context, roomID, connID string) (domain.Snapshot, error) {
	rm, err := t.load(ctx, roomID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap, joined, err := t.join(rm, connID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if joined {
		t.touch(ctx, roomID)
	}
	return snap, nil
}

func (t *Table) join(rm *room, connID string) (domain.Snapshot, bool, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !rm.meta.IsOpen {
		return domain.Snapshot{}, false, domain.ErrRoomClosed
	}
	if rm.has(connID) {
		snap := rm.snapshot()
		t.notify.Notify(connID, domain.Event{Type: domain.EventJoinRoom, Payload: snap})
		return snap, false, nil
	}
	if rm.full() {
		return domain.Snapshot{}, false, domain.ErrRoomFull
	}

	cur, ok, err := t.reg.SwapActiveRoom(connID, "", rm.meta.ID)
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("join %s: %w", rm.meta.ID, err)
	}
	if !ok && cur != rm.meta.ID {
		return domain.Snapshot{}, false, domain.ErrAlreadyInRoom
	}

	others := rm.others(connID)
	rm.add(connID)
	rm.meta.LastActive = t.now()

	snap := rm.snapshot()
	t.notify.Notify(connID, domain.Event{Type: domain.EventJoinRoom, Payload: snap})
	t.fanout(others, domain.Event{Type: domain.EventJoinRoom, Payload: domain.UserPayload{UserID: connID}})
	return snap, true, nil
}

// Exit: выход из комнаты. Оставшимся уходит exit_room, самому соединению
// (если selfNotice) и всем живым соединениям с тем же bubble: i_exit.
func (t *Table) Exit(ctx context.Context, roomID, connID string, selfNotice bool) error {
	rm, err := t.load(ctx, roomID)
	if err != nil {
		return err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !rm.has(connID) {
		return domain.ErrNotInRoom
	}
	rm.remove(connID)
	if _, _, err := t.reg.SwapActiveRoom(connID, roomID, ""); err != nil {
		slog.Debug("exit: connection already gone", logger.Conn(connID), logger.Room(roomID))
	}

	payload := domain.UserPayload{UserID: connID}
	t.fanout(rm.members, domain.Event{Type: domain.EventExitRoom, Payload: payload})
	t.fanout(t.personal(connID, selfNotice), domain.Event{Type: domain.EventIExit, Payload: payload})
	return nil
}

// personal: адресаты i_exit: сам вышедший и его bubble-соседи, без дублей.
func (t *Table) personal(connID string, self bool) []string {
	var out []string
	if self {
		out = append(out, connID)
	}
	ident, ok := t.reg.Get(connID)
	if !ok {
		return out
	}
	for _, id := range t.reg.ResolveBubbleSiblings(ident.BubbleID) {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}

// Post добавляет сообщение и рассылает его всем участникам, включая автора.
func (t *Table) Post(ctx context.Context, roomID, connID, body string) (domain.Message, error) {
	rm, err := t.load(ctx, roomID)
	if err != nil {
		return domain.Message{}, err
	}

	msg, err := t.post(rm, connID, body)
	if err != nil {
		return domain.Message{}, err
	}
	t.touch(ctx, roomID)
	return msg, nil
}

func (t *Table) post(rm *room, connID, body string) (domain.Message, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !rm.has(connID) {
		return domain.Message{}, domain.ErrNotInRoom
	}
	msg := domain.Message{
		ID:        t.newID(),
		RoomID:    rm.meta.ID,
		AuthorID:  connID,
		Body:      body,
		CreatedAt: rm.stamp(t.now()),
	}
	rm.messages = append(rm.messages, msg)
	rm.meta.LastActive = msg.CreatedAt

	t.fanout(rm.members, domain.Event{Type: domain.EventAddMessage, Payload: msg})
	return msg, nil
}

// Announce рассылает событие участникам комнаты, если connID в ней.
func (t *Table) Announce(ctx context.Context, roomID, connID string, evt domain.Event) (bool, error) {
	rm, err := t.load(ctx, roomID)
	if err != nil {
		return false, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !rm.has(connID) {
		return false, nil
	}
	t.fanout(rm.members, evt)
	return true, nil
}

// Swap переносит место oldID в комнате на newID. commit выполняется под
// блокировкой комнаты; при ошибке commit состав не меняется.
func (t *Table) Swap(ctx context.Context, roomID, oldID, newID string, commit func() error) error {
	rm, err := t.load(ctx, roomID)
	if err != nil {
		return err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !rm.has(oldID) {
		return domain.ErrNotInRoom
	}
	if err := commit(); err != nil {
		return err
	}
	rm.replace(oldID, newID)
	return nil
}

func (t *Table) Snapshot(ctx context.Context, roomID string) (domain.Snapshot, error) {
	rm, err := t.load(ctx, roomID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.snapshot(), nil
}

func (t *Table) Occupancy(ctx context.Context, roomID string) (int, error) {
	rm, err := t.load(ctx, roomID)
	if err != nil {
		return 0, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.occupancy(), nil
}

// load отдаёт комнату из таблицы, при первом обращении читает метаданные
// из репозитория. Дальше isOpen/userLimit живут в памяти: другого
// писателя таблицы rooms, кроме этого процесса, нет.
func (t *Table) load(ctx context.Context, roomID string) (*room, error) {
	if v, ok := t.rooms.Load(roomID); ok {
		return v.(*room), nil
	}

	// общий Load не зависит от отмены первого вызывающего: каждый ждёт
	// результат со своим ctx
	ch := t.loads.DoChan(roomID, func() (any, error) {
		if v, ok := t.rooms.Load(roomID); ok {
			return v, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		meta, err := t.repo.Load(lctx, roomID)
		if err != nil {
			return nil, err
		}
		actual, _ := t.rooms.LoadOrStore(roomID, newRoom(*meta))
		slog.Debug("room loaded", logger.Room(roomID))
		return actual, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("load room %s: %w", roomID, res.Err)
		}
		return res.Val.(*room), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("load room %s: %w", roomID, ctx.Err())
	}
}

func (t *Table) fanout(ids []string, evt domain.Event) {
	for _, id := range ids {
		t.notify.Notify(id, evt)
	}
}

// touch: best-effort, ошибки хранилища не влияют на операцию.
func (t *Table) touch(ctx context.Context, roomID string) {
	if err := t.repo.TouchActivity(ctx, roomID); err != nil {
		slog.Warn("touch room activity failed", logger.Room(roomID), slog.Any("err", err))
	}
}
