package rooms

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cwrk-planet/roomcoord/internal/domain"
	"github.com/cwrk-planet/roomcoord/internal/memory"
	"github.com/cwrk-planet/roomcoord/internal/registry"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events map[string][]domain.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(map[string][]domain.Event)}
}

func (r *recorder) Notify(connID string, evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[connID] = append(r.events[connID], evt)
}

func (r *recorder) of(connID, typ string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Event
	for _, e := range r.events[connID] {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[string][]domain.Event)
}

// countingRepo считает обращения к Load и может ломать TouchActivity.
type countingRepo struct {
	*memory.RoomRepository
	loads     atomic.Int32
	touchFail bool
}

func (c *countingRepo) Load(ctx context.Context, id string) (*domain.Room, error) {
	c.loads.Add(1)
	return c.RoomRepository.Load(ctx, id)
}

func (c *countingRepo) TouchActivity(ctx context.Context, id string) error {
	if c.touchFail {
		return errors.New("storage down")
	}
	return c.RoomRepository.TouchActivity(ctx, id)
}

// slowRepo держит Load до закрытия release и уважает только свой ctx.
type slowRepo struct {
	*countingRepo
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (s *slowRepo) Load(ctx context.Context, id string) (*domain.Room, error) {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.countingRepo.Load(ctx, id)
}

type fixture struct {
	ctx   context.Context
	repo  *countingRepo
	reg   *registry.Registry
	rec   *recorder
	table *Table
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		ctx:  context.Background(),
		repo: &countingRepo{RoomRepository: memory.NewRoomRepository()},
		reg:  registry.New(),
		rec:  newRecorder(),
	}
	f.table = NewTable(f.repo, f.reg, f.rec, opts...)
	return f
}

func (f *fixture) room(t *testing.T, limit int, open bool) string {
	t.Helper()
	rm := &domain.Room{Name: "Room", Type: domain.RoomTypePublic, UserLimit: limit, IsOpen: open}
	require.NoError(t, f.repo.Create(f.ctx, rm))
	return rm.ID
}

func (f *fixture) conns(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.reg.Register(id))
	}
}
