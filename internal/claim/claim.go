// Package claim реализует handshake переподключения: соединение задаёт
// claim-токен, позже другое соединение предъявляет (токен, старый id) и
// наследует место в комнате, bubble и имя.
package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/roomcoord/internal/domain"
	"github.com/cwrk-planet/roomcoord/internal/registry"
	"github.com/cwrk-planet/roomcoord/internal/rooms"
	"github.com/cwrk-planet/roomcoord/pkg/logger"
)

// сколько раз перечитываем старую запись, если она успела сменить комнату
const maxAttempts = 3

var errMoved = errors.New("claim: old connection changed room")

type TokenAck struct {
	ClaimToken string `json:"claimToken"`
}

type Coordinator struct {
	reg    *registry.Registry
	table  *rooms.Table
	notify domain.Notifier
}

func New(reg *registry.Registry, table *rooms.Table, notify domain.Notifier) *Coordinator {
	return &Coordinator{reg: reg, table: table, notify: notify}
}

// SetToken сохраняет токен (пустой: сгенерирует) и подтверждает только вызвавшему.
func (c *Coordinator) SetToken(connID, token string) (string, error) {
	if token == "" {
		var err error
		if token, err = NewToken(); err != nil {
			return "", fmt.Errorf("generate claim token: %w", err)
		}
	}
	if err := c.reg.SetClaimToken(connID, token); err != nil {
		return "", err
	}

	c.notify.Notify(connID, domain.Event{Type: domain.EventSetClaimToken, Payload: TokenAck{ClaimToken: token}})
	return token, nil
}

// Claim передаёт newID идентичность oldID. Пирам в комнате ничего не
// рассылается: дальнейшие события просто идут с новым id.
func (c *Coordinator) Claim(ctx context.Context, newID, oldID, token string) (registry.Identity, error) {
	if oldID == "" {
		return registry.Identity{}, domain.ErrMissingOldConnID
	}
	if oldID == newID {
		return registry.Identity{}, domain.ErrInvalidOldConnID
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		prev, err := c.try(ctx, newID, oldID, token)
		switch {
		case err == nil:
			slog.Info("identity claimed", logger.Conn(newID), slog.String("old_conn", oldID), logger.Room(prev.RoomID))
			c.notify.Notify(newID, domain.Event{
				Type: domain.EventClaimID,
				Payload: domain.ClaimAckPayload{
					UserID:      newID,
					OldSocketID: oldID,
					RoomID:      prev.RoomID,
				},
			})
			return prev, nil
		case errors.Is(err, errMoved):
			continue
		case errors.Is(err, domain.ErrUnknownConnection):
			return registry.Identity{}, domain.ErrInvalidOldConnID
		default:
			slog.Debug("claim rejected", logger.Conn(newID), slog.String("old_conn", oldID), slog.Any("err", err))
			return registry.Identity{}, err
		}
	}
	return registry.Identity{}, fmt.Errorf("claim %s: %w", oldID, errMoved)
}

func (c *Coordinator) try(ctx context.Context, newID, oldID, token string) (registry.Identity, error) {
	seen, ok := c.reg.Get(oldID)
	if !ok || seen.ClaimToken == "" {
		return registry.Identity{}, domain.ErrInvalidOldConnID
	}
	if !tokensEqual(seen.ClaimToken, token) {
		return registry.Identity{}, domain.ErrClaimTokenRejected
	}

	// повторная проверка под блокировками обеих записей
	guard := func(old, cur registry.Identity) error {
		if old.ClaimToken == "" {
			return domain.ErrInvalidOldConnID
		}
		if !tokensEqual(old.ClaimToken, token) {
			return domain.ErrClaimTokenRejected
		}
		if cur.RoomID != "" {
			return domain.ErrAlreadyInRoom
		}
		if old.RoomID != seen.RoomID {
			return errMoved
		}
		return nil
	}

	if seen.RoomID == "" {
		return c.reg.Transfer(oldID, newID, guard)
	}

	var prev registry.Identity
	err := c.table.Swap(ctx, seen.RoomID, oldID, newID, func() error {
		var err error
		prev, err = c.reg.Transfer(oldID, newID, guard)
		return err
	})
	if errors.Is(err, domain.ErrNotInRoom) {
		return registry.Identity{}, errMoved
	}
	return prev, err
}
