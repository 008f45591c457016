package rooms

import (
	"context"

	"github.com/cwrk-planet/roomcoord/internal/domain"
)

// Repository: шлюз к персистентному хранилищу метаданных комнат.
// Load возвращает domain.ErrRoomNotFound, если комнаты нет.
type Repository interface {
	Create(ctx context.Context, room *domain.Room) error
	Load(ctx context.Context, id string) (*domain.Room, error)
	TouchActivity(ctx context.Context, id string) error
}
