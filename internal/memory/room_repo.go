// Package memory: хранилище метаданных комнат в памяти процесса
// (storage.driver: memory).
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cwrk-planet/roomcoord/internal/domain"

	"github.com/google/uuid"
)

type RoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]domain.Room
	now   func() time.Time
}

func NewRoomRepository() *RoomRepository {
	return &RoomRepository{
		rooms: make(map[string]domain.Room),
		now:   time.Now,
	}
}

func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if _, ok := r.rooms[room.ID]; ok {
		return domain.ErrInvalidRequest
	}
	now := r.now()
	room.CreatedAt = now
	room.LastActive = now

	stored := *room
	stored.Categories = slices.Clone(room.Categories)
	r.rooms[room.ID] = stored
	return nil
}

func (r *RoomRepository) Load(ctx context.Context, id string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	rm.Categories = slices.Clone(rm.Categories)
	return &rm, nil
}

func (r *RoomRepository) TouchActivity(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	rm.LastActive = r.now()
	r.rooms[id] = rm
	return nil
}
