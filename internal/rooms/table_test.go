package rooms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwrk-planet/roomcoord/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestTable_Join_SnapshotAndMembershipEvent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 2, true)
	f.conns(t, "x", "y")

	_, err := f.table.Join(f.ctx, roomID, "x")
	req.NoError(err)
	snap, err := f.table.Join(f.ctx, roomID, "y")
	req.NoError(err)

	req.Equal(roomID, snap.RoomID)
	req.Equal([]string{"x", "y"}, snap.Participants)
	req.Empty(snap.Messages)

	joined := f.rec.of("x", domain.EventJoinRoom)
	req.Len(joined, 2) // свой снапшот + y вошёл
	req.Equal(domain.UserPayload{UserID: "y"}, joined[1].Payload)

	req.Len(f.rec.of("y", domain.EventJoinRoom), 1)

	ident, _ := f.reg.Get("y")
	req.Equal(roomID, ident.RoomID)
}

func TestTable_Join_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 5, true)
	f.conns(t, "x", "y")

	_, err := f.table.Join(f.ctx, roomID, "x")
	req.NoError(err)
	_, err = f.table.Join(f.ctx, roomID, "y")
	req.NoError(err)
	f.rec.reset()

	snap, err := f.table.Join(f.ctx, roomID, "y")
	req.NoError(err)
	req.Contains(snap.Participants, "x")

	occ, err := f.table.Occupancy(f.ctx, roomID)
	req.NoError(err)
	req.Equal(2, occ)
	req.Empty(f.rec.of("x", domain.EventJoinRoom))
	req.Len(f.rec.of("y", domain.EventJoinRoom), 1)
}

func TestTable_Join_RoomFull(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 2, true)
	f.conns(t, "x", "y", "z")

	for _, id := range []string{"x", "y"} {
		_, err := f.table.Join(f.ctx, roomID, id)
		req.NoError(err)
	}
	f.rec.reset()

	_, err := f.table.Join(f.ctx, roomID, "z")
	req.ErrorIs(err, domain.ErrRoomFull)
	req.Empty(f.rec.of("x", domain.EventJoinRoom))
	req.Empty(f.rec.of("y", domain.EventJoinRoom))
	req.Empty(f.rec.of("z", domain.EventJoinRoom))

	ident, _ := f.reg.Get("z")
	req.Empty(ident.RoomID)
}

func TestTable_Join_Closed(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 10, false)
	f.conns(t, "x")

	_, err := f.table.Join(f.ctx, roomID, "x")
	req.ErrorIs(err, domain.ErrRoomClosed)

	occ, err := f.table.Occupancy(f.ctx, roomID)
	req.NoError(err)
	req.Zero(occ)
}

func TestTable_Join_NotFound(t *testing.T) {
	f := newFixture(t)
	f.conns(t, "x")

	_, err := f.table.Join(f.ctx, "missing", "x")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestTable_Join_AlreadyInAnotherRoom(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	first := f.room(t, 5, true)
	second := f.room(t, 5, true)
	f.conns(t, "x")

	_, err := f.table.Join(f.ctx, first, "x")
	req.NoError(err)
	_, err = f.table.Join(f.ctx, second, "x")
	req.ErrorIs(err, domain.ErrAlreadyInRoom)

	occ, _ := f.table.Occupancy(f.ctx, second)
	req.Zero(occ)
}

func TestTable_Join_ConcurrentLastSlot(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 3, true)

	const n = 50
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("c-%02d", i)
	}
	f.conns(t, ids...)

	var ok, full atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := f.table.Join(f.ctx, roomID, id)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrRoomFull):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	req.EqualValues(3, ok.Load())
	req.EqualValues(n-3, full.Load())
	occ, _ := f.table.Occupancy(f.ctx, roomID)
	req.Equal(3, occ)
	req.EqualValues(1, f.repo.loads.Load(), "first loads must be coalesced")
}

func TestTable_Exit_FanOut(t *testing.T) {
	for _, siblings := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("siblings=%d", siblings), func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			roomID := f.room(t, 10, true)
			f.conns(t, "leaver", "stay-1", "stay-2")
			req.NoError(f.reg.SetBubbleID("leaver", "alice"))

			var sibIDs []string
			for i := 0; i < siblings; i++ {
				id := fmt.Sprintf("sib-%d", i)
				sibIDs = append(sibIDs, id)
				f.conns(t, id)
				req.NoError(f.reg.SetBubbleID(id, "alice"))
			}

			for _, id := range []string{"leaver", "stay-1", "stay-2"} {
				_, err := f.table.Join(f.ctx, roomID, id)
				req.NoError(err)
			}
			f.rec.reset()

			req.NoError(f.table.Exit(f.ctx, roomID, "leaver", true))

			want := domain.UserPayload{UserID: "leaver"}
			for _, id := range []string{"stay-1", "stay-2"} {
				got := f.rec.of(id, domain.EventExitRoom)
				req.Len(got, 1)
				req.Equal(want, got[0].Payload)
				req.Empty(f.rec.of(id, domain.EventIExit))
			}
			for _, id := range append([]string{"leaver"}, sibIDs...) {
				got := f.rec.of(id, domain.EventIExit)
				req.Len(got, 1, id)
				req.Equal(want, got[0].Payload)
			}
			req.Empty(f.rec.of("leaver", domain.EventExitRoom))

			snap, err := f.table.Snapshot(f.ctx, roomID)
			req.NoError(err)
			req.Equal([]string{"stay-1", "stay-2"}, snap.Participants)

			ident, _ := f.reg.Get("leaver")
			req.Empty(ident.RoomID)
		})
	}
}

func TestTable_Exit_WithoutSelfNotice(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 10, true)
	f.conns(t, "leaver", "sib")
	req.NoError(f.reg.SetBubbleID("leaver", "alice"))
	req.NoError(f.reg.SetBubbleID("sib", "alice"))

	_, err := f.table.Join(f.ctx, roomID, "leaver")
	req.NoError(err)
	req.NoError(f.table.Exit(f.ctx, roomID, "leaver", false))

	req.Empty(f.rec.of("leaver", domain.EventIExit))
	req.Len(f.rec.of("sib", domain.EventIExit), 1)
}

func TestTable_Exit_NotInRoom(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 10, true)
	f.conns(t, "x", "y")

	_, err := f.table.Join(f.ctx, roomID, "x")
	req.NoError(err)
	f.rec.reset()

	req.ErrorIs(f.table.Exit(f.ctx, roomID, "y", true), domain.ErrNotInRoom)
	req.Empty(f.rec.of("x", domain.EventExitRoom))
	req.ErrorIs(f.table.Exit(f.ctx, "missing", "y", true), domain.ErrRoomNotFound)
}

func TestTable_Post_NewestFirst(t *testing.T) {
	req := require.New(t)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return fixed }))
	roomID := f.room(t, 10, true)
	f.conns(t, "x", "y", "late")

	for _, id := range []string{"x", "y"} {
		_, err := f.table.Join(f.ctx, roomID, id)
		req.NoError(err)
	}
	m1, err := f.table.Post(f.ctx, roomID, "x", "1")
	req.NoError(err)
	m2, err := f.table.Post(f.ctx, roomID, "x", "2")
	req.NoError(err)
	req.True(m2.CreatedAt.After(m1.CreatedAt), "same clock reading must still order messages")

	// автор тоже получает своё сообщение
	req.Len(f.rec.of("x", domain.EventAddMessage), 2)
	req.Len(f.rec.of("y", domain.EventAddMessage), 2)

	req.NoError(f.table.Exit(f.ctx, roomID, "y", true))
	snap, err := f.table.Join(f.ctx, roomID, "late")
	req.NoError(err)
	req.Len(snap.Messages, 2)
	req.Equal("2", snap.Messages[0].Body)
	req.Equal("1", snap.Messages[1].Body)
	req.True(snap.Messages[1].CreatedAt.Before(snap.Messages[0].CreatedAt))
	req.Equal("x", snap.Messages[0].AuthorID)
}

func TestTable_Post_NotMember(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 10, true)
	f.conns(t, "x", "outsider")

	_, err := f.table.Join(f.ctx, roomID, "x")
	req.NoError(err)

	_, err = f.table.Post(f.ctx, roomID, "outsider", "hi")
	req.ErrorIs(err, domain.ErrNotInRoom)
	req.Empty(f.rec.of("x", domain.EventAddMessage))
}

func TestTable_Post_TouchFailureIsNotSurfaced(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 10, true)
	f.conns(t, "x")
	f.repo.touchFail = true

	_, err := f.table.Join(f.ctx, roomID, "x")
	req.NoError(err)
	_, err = f.table.Post(f.ctx, roomID, "x", "hi")
	req.NoError(err)
}

func TestTable_Swap(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 2, true)
	f.conns(t, "old", "peer", "new")

	for _, id := range []string{"old", "peer"} {
		_, err := f.table.Join(f.ctx, roomID, id)
		req.NoError(err)
	}
	f.rec.reset()

	committed := false
	req.NoError(f.table.Swap(f.ctx, roomID, "old", "new", func() error {
		committed = true
		return nil
	}))
	req.True(committed)

	snap, err := f.table.Snapshot(f.ctx, roomID)
	req.NoError(err)
	req.Equal([]string{"new", "peer"}, snap.Participants)
	req.Empty(f.rec.of("peer", domain.EventJoinRoom), "takeover is invisible to peers")

	req.ErrorIs(f.table.Swap(f.ctx, roomID, "old", "new", func() error { return nil }), domain.ErrNotInRoom)
}

func TestTable_Announce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 10, true)
	f.conns(t, "x", "y")

	_, err := f.table.Join(f.ctx, roomID, "x")
	req.NoError(err)

	evt := domain.Event{Type: domain.EventSetUserName, Payload: domain.RenamePayload{UserID: "x", NewName: "X"}}
	ok, err := f.table.Announce(f.ctx, roomID, "x", evt)
	req.NoError(err)
	req.True(ok)
	req.Len(f.rec.of("x", domain.EventSetUserName), 1)

	ok, err = f.table.Announce(f.ctx, roomID, "y", evt)
	req.NoError(err)
	req.False(ok)
}

func TestTable_Seat(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.conns(t, "creator", "late", "x")

	_, ok, err := f.reg.SwapActiveRoom("creator", "", "direct")
	req.NoError(err)
	req.True(ok)

	snap := f.table.Seat(domain.Room{ID: "direct", Name: "Direct", UserLimit: 2, IsOpen: true}, "creator")
	req.Equal([]string{"creator"}, snap.Participants)
	req.NotNil(snap.Categories)
	req.Len(f.rec.of("creator", domain.EventCreateRoom), 1)
	req.Zero(f.repo.loads.Load())

	// без резерва в реестре место не занимается
	snap = f.table.Seat(domain.Room{ID: "other", Name: "Other", UserLimit: 2, IsOpen: true}, "late")
	req.Empty(snap.Participants)

	_, err = f.table.Join(f.ctx, "direct", "x")
	req.NoError(err)
	req.Len(f.rec.of("creator", domain.EventJoinRoom), 1)
}

func TestTable_Load_CallerCancelDoesNotFailOthers(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	roomID := f.room(t, 3, true)
	f.conns(t, "b")

	slow := &slowRepo{countingRepo: f.repo, release: make(chan struct{}), started: make(chan struct{})}
	table := NewTable(slow, f.reg, f.rec)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() { errA <- table.EnsureLoaded(ctxA, roomID) }()
	<-slow.started

	errB := make(chan error, 1)
	go func() {
		_, err := table.Join(context.Background(), roomID, "b")
		errB <- err
	}()

	cancelA()
	req.ErrorIs(<-errA, context.Canceled)

	close(slow.release)
	req.NoError(<-errB)
	req.EqualValues(1, f.repo.loads.Load())
}
