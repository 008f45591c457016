// Package coordinator: фасад движка комнат: принимает типизированные
// запросы от транспорта, проверяет их и раскладывает по реестру
// соединений, таблице комнат и claim-координатору.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cwrk-planet/roomcoord/internal/claim"
	"github.com/cwrk-planet/roomcoord/internal/domain"
	"github.com/cwrk-planet/roomcoord/internal/registry"
	"github.com/cwrk-planet/roomcoord/internal/rooms"
	"github.com/cwrk-planet/roomcoord/pkg/logger"

	"github.com/google/uuid"
)

// AdminCreator: createdBy для комнат, созданных через REST/gRPC.
const AdminCreator = "admin"

type Config struct {
	DefaultUserLimit int
	MaxUserLimit     int
	MaxMessageLen    int
	// сколько отключённое соединение с claim-токеном держит место в комнате
	ClaimRetention time.Duration
}

func (c *Config) setDefaults() {
	if c.DefaultUserLimit <= 0 {
		c.DefaultUserLimit = 10
	}
	if c.MaxUserLimit <= 0 {
		c.MaxUserLimit = 100
	}
	if c.DefaultUserLimit > c.MaxUserLimit {
		c.DefaultUserLimit = c.MaxUserLimit
	}
	if c.MaxMessageLen <= 0 {
		c.MaxMessageLen = 4000
	}
}

type Coordinator struct {
	cfg    Config
	repo   rooms.Repository
	reg    *registry.Registry
	table  *rooms.Table
	claims *claim.Coordinator
	notify domain.Notifier
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]*time.Timer // connID -> таймер окончательного удаления
	closed  bool
}

func New(repo rooms.Repository, notify domain.Notifier, cfg Config, opts ...rooms.Option) *Coordinator {
	cfg.setDefaults()
	reg := registry.New()
	table := rooms.NewTable(repo, reg, notify, opts...)

	return &Coordinator{
		cfg:     cfg,
		repo:    repo,
		reg:     reg,
		table:   table,
		claims:  claim.New(reg, table, notify),
		notify:  notify,
		now:     time.Now,
		pending: make(map[string]*time.Timer),
	}
}

// Connect регистрирует новое транспортное соединение.
// bubbleID может быть пустым.
func (c *Coordinator) Connect(connID, bubbleID string) error {
	if err := c.reg.Register(connID); err != nil {
		return err
	}
	if bubbleID != "" {
		if err := c.reg.SetBubbleID(connID, bubbleID); err != nil {
			return err
		}
	}
	slog.Debug("connection registered", logger.Conn(connID), slog.String("bubble", bubbleID))
	return nil
}

// Disconnect: хук транспорта на закрытие сессии. Если у соединения есть
// claim-токен, его место и идентичность живут ещё ClaimRetention.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	ident, ok := c.reg.Get(connID)
	if !ok {
		return
	}

	if ident.ClaimToken != "" && c.cfg.ClaimRetention > 0 {
		if _, err := c.reg.MarkOffline(connID, c.now()); err == nil {
			c.schedule(connID)
			slog.Debug("connection offline, claim pending", logger.Conn(connID), logger.Room(ident.RoomID))
			return
		}
	}
	c.evict(ctx, connID, ident.RoomID)
	c.reg.Remove(connID)
	slog.Debug("connection removed", logger.Conn(connID))
}

// Dispatch выполняет запрос. Ошибка уходит только вызвавшему соединению
// событием app_error и возвращается транспорту для логов.
func (c *Coordinator) Dispatch(ctx context.Context, connID string, req Request) error {
	err := c.dispatch(ctx, connID, req)
	if err != nil {
		kind := domain.KindOf(err)
		if kind == domain.KindInternal {
			slog.Error("operation failed", logger.Conn(connID), slog.String("op", req.Op()), slog.Any("err", err))
		} else {
			slog.Debug("operation rejected", logger.Conn(connID), slog.String("op", req.Op()), slog.String("code", string(kind)))
		}
		c.notify.Notify(connID, domain.ErrorEvent(req.Op(), err))
	}
	return err
}

func (c *Coordinator) dispatch(ctx context.Context, connID string, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	switch r := req.(type) {
	case CreateRoom:
		_, err := c.CreateRoom(ctx, connID, r)
		return err
	case JoinRoom:
		_, err := c.table.Join(ctx, strings.TrimSpace(r.RoomID), connID)
		return err
	case ExitRoom:
		return c.table.Exit(ctx, strings.TrimSpace(r.RoomID), connID, true)
	case ViewRoom:
		snap, err := c.ViewRoom(ctx, r.RoomID)
		if err != nil {
			return err
		}
		c.notify.Notify(connID, domain.Event{Type: domain.EventViewRoom, Payload: snap})
		return nil
	case AddMessage:
		text := strings.TrimSpace(r.Message)
		if utf8.RuneCountInString(text) > c.cfg.MaxMessageLen {
			return domain.ErrMessageTooLong
		}
		_, err := c.table.Post(ctx, strings.TrimSpace(r.RoomID), connID, text)
		return err
	case SetUserName:
		return c.rename(ctx, connID, strings.TrimSpace(r.NewName))
	case SetClaimToken:
		_, err := c.claims.SetToken(connID, r.ClaimToken)
		return err
	case ClaimID:
		oldID := strings.TrimSpace(r.OldSocketID)
		if _, err := c.claims.Claim(ctx, connID, oldID, r.ClaimToken); err != nil {
			return err
		}
		c.cancel(oldID)
		return nil
	default:
		return fmt.Errorf("%w: unsupported operation %q", domain.ErrInvalidRequest, req.Op())
	}
}

// CreateRoom создаёт комнату. Если creatorID не пуст, создатель получает
// снапшот событием create_room и, если комната открыта, сразу становится
// её первым участником. Всё, что может отказать, проверяется до записи
// в хранилище.
func (c *Coordinator) CreateRoom(ctx context.Context, creatorID string, req CreateRoom) (domain.Snapshot, error) {
	if err := req.Validate(); err != nil {
		return domain.Snapshot{}, err
	}

	meta := c.newRoom(creatorID, req)
	seat := creatorID != "" && meta.IsOpen
	if creatorID != "" {
		ident, ok := c.reg.Get(creatorID)
		if !ok {
			return domain.Snapshot{}, domain.ErrUnknownConnection
		}
		if ident.RoomID != "" {
			return domain.Snapshot{}, domain.ErrAlreadyInRoom
		}
	}
	if seat {
		// резерв слота: параллельный join в другую комнату теперь проиграет
		_, ok, err := c.reg.SwapActiveRoom(creatorID, "", meta.ID)
		if err != nil {
			return domain.Snapshot{}, err
		}
		if !ok {
			return domain.Snapshot{}, domain.ErrAlreadyInRoom
		}
	}

	if err := c.repo.Create(ctx, &meta); err != nil {
		if seat {
			_, _, _ = c.reg.SwapActiveRoom(creatorID, meta.ID, "")
		}
		return domain.Snapshot{}, fmt.Errorf("create room: %w", err)
	}
	slog.Info("room created", logger.Room(meta.ID), slog.String("created_by", meta.CreatedBy), slog.Int("user_limit", meta.UserLimit))

	if !seat {
		snap := c.table.Seat(meta, "")
		if creatorID != "" {
			// закрытая комната: создатель узнаёт id, но не входит
			c.notify.Notify(creatorID, domain.Event{Type: domain.EventCreateRoom, Payload: snap})
		}
		return snap, nil
	}
	return c.table.Seat(meta, creatorID), nil
}

// ViewRoom: снапшот комнаты без требования членства.
func (c *Coordinator) ViewRoom(ctx context.Context, roomID string) (domain.Snapshot, error) {
	roomID = strings.TrimSpace(roomID)
	if err := requireRoomID(roomID); err != nil {
		return domain.Snapshot{}, err
	}
	return c.table.Snapshot(ctx, roomID)
}

// Identity: текущая запись соединения (для транспорта и тестов).
func (c *Coordinator) Identity(connID string) (registry.Identity, bool) {
	return c.reg.Get(connID)
}

// Close останавливает таймеры удержания. Новых таймеров после Close нет.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, tm := range c.pending {
		tm.Stop()
		delete(c.pending, id)
	}
}

func (c *Coordinator) newRoom(creatorID string, req CreateRoom) domain.Room {
	name := strings.TrimSpace(req.RoomName)
	if name == "" {
		name = "Room"
	}
	typ := req.RoomType
	if typ == "" {
		typ = domain.RoomTypePublic
	}
	limit := req.UserLimit
	if limit <= 0 {
		limit = c.cfg.DefaultUserLimit
	}
	if limit > c.cfg.MaxUserLimit {
		limit = c.cfg.MaxUserLimit
	}
	open := true
	if req.IsOpen != nil {
		open = *req.IsOpen
	}
	categories := req.Categories
	if categories == nil {
		categories = []string{}
	}
	createdBy := creatorID
	if createdBy == "" {
		createdBy = AdminCreator
	}

	return domain.Room{
		ID:          uuid.NewString(),
		Name:        name,
		Type:        typ,
		UserLimit:   limit,
		Description: req.Description,
		Categories:  categories,
		CreatedBy:   createdBy,
		IsOpen:      open,
	}
}

func (c *Coordinator) rename(ctx context.Context, connID, name string) error {
	if err := c.reg.SetName(connID, name); err != nil {
		return err
	}
	evt := domain.Event{
		Type:    domain.EventSetUserName,
		Payload: domain.RenamePayload{UserID: connID, NewName: name},
	}

	ident, _ := c.reg.Get(connID)
	if ident.RoomID != "" {
		announced, err := c.table.Announce(ctx, ident.RoomID, connID, evt)
		if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			return err
		}
		if announced {
			return nil
		}
	}
	// вне комнаты подтверждаем только самому соединению
	c.notify.Notify(connID, evt)
	return nil
}

// evict: неявный выход из комнаты при окончательном уходе соединения.
func (c *Coordinator) evict(ctx context.Context, connID, roomID string) {
	if roomID == "" {
		return
	}
	err := c.table.Exit(ctx, roomID, connID, false)
	if err != nil && !errors.Is(err, domain.ErrNotInRoom) {
		slog.Warn("implicit exit failed", logger.Conn(connID), logger.Room(roomID), slog.Any("err", err))
	}
}
