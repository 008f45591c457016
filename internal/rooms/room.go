package rooms

import (
	"slices"
	"sync"
	"time"

	"github.com/cwrk-planet/roomcoord/internal/domain"

	"github.com/samber/lo"
)

// room: активное состояние одной комнаты. Все мутации идут под mu.
type room struct {
	mu sync.Mutex

	meta     domain.Room
	members  []string // в порядке входа
	index    map[string]struct{}
	messages []domain.Message // в порядке добавления
	lastAt   time.Time
}

func newRoom(meta domain.Room) *room {
	meta.Categories = cloneStrings(meta.Categories)
	return &room{
		meta:  meta,
		index: make(map[string]struct{}),
	}
}

func (r *room) has(connID string) bool {
	_, ok := r.index[connID]
	return ok
}

func (r *room) occupancy() int { return len(r.index) }

func (r *room) full() bool { return r.occupancy() >= r.meta.UserLimit }

func (r *room) add(connID string) {
	r.index[connID] = struct{}{}
	r.members = append(r.members, connID)
}

func (r *room) remove(connID string) {
	delete(r.index, connID)
	r.members = slices.DeleteFunc(r.members, func(id string) bool { return id == connID })
}

// replace подставляет newID на место oldID, не меняя occupancy.
func (r *room) replace(oldID, newID string) {
	delete(r.index, oldID)
	r.index[newID] = struct{}{}
	if i := slices.Index(r.members, oldID); i >= 0 {
		r.members[i] = newID
	}
}

// others: участники, кроме connID.
func (r *room) others(connID string) []string {
	return lo.Without(r.members, connID)
}

// stamp выдаёт строго возрастающее время внутри комнаты.
func (r *room) stamp(now time.Time) time.Time {
	if !now.After(r.lastAt) {
		now = r.lastAt.Add(time.Microsecond)
	}
	r.lastAt = now
	return now
}

func (r *room) snapshot() domain.Snapshot {
	msgs := make([]domain.Message, 0, len(r.messages))
	for i := len(r.messages) - 1; i >= 0; i-- {
		msgs = append(msgs, r.messages[i])
	}
	return domain.Snapshot{
		RoomID:       r.meta.ID,
		RoomName:     r.meta.Name,
		RoomType:     r.meta.Type,
		UserLimit:    r.meta.UserLimit,
		Description:  r.meta.Description,
		Categories:   cloneStrings(r.meta.Categories),
		IsOpen:       r.meta.IsOpen,
		Participants: cloneStrings(r.members),
		Messages:     msgs,
	}
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
