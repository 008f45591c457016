// Package registry хранит живые (и ожидающие claim) соединения и их идентичность.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/roomcoord/internal/domain"

	"github.com/samber/lo"
)

// Identity: копия записи соединения на момент чтения.
type Identity struct {
	ID             string
	BubbleID       string
	ClaimToken     string
	RoomID         string
	Name           string
	Live           bool
	DisconnectedAt time.Time
}

type record struct {
	mu sync.Mutex

	id             string
	bubbleID       string
	claimToken     string
	roomID         string
	name           string
	live           bool
	gone           bool
	disconnectedAt time.Time
}

func (rec *record) identity() Identity {
	return Identity{
		ID:             rec.id,
		BubbleID:       rec.bubbleID,
		ClaimToken:     rec.claimToken,
		RoomID:         rec.roomID,
		Name:           rec.name,
		Live:           rec.live,
		DisconnectedAt: rec.disconnectedAt,
	}
}

// Registry: каждая запись синхронизируется своим мьютексом, r.mu защищает
// только сами map'ы. Порядок захвата: запись -> r.mu.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*record
	bubbles map[string]map[string]struct{} // bubbleID -> живые connID
}

func New() *Registry {
	return &Registry{
		conns:   make(map[string]*record),
		bubbles: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; ok {
		return domain.ErrDuplicateConnection
	}
	r.conns[id] = &record{id: id, live: true}
	return nil
}

func (r *Registry) Get(id string) (Identity, bool) {
	rec, err := r.lock(id)
	if err != nil {
		return Identity{}, false
	}
	defer rec.mu.Unlock()

	return rec.identity(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) SetBubbleID(id, bubbleID string) error {
	rec, err := r.lock(id)
	if err != nil {
		return err
	}
	defer rec.mu.Unlock()

	r.setBubbleLocked(rec, bubbleID)
	return nil
}

func (r *Registry) SetClaimToken(id, token string) error {
	return r.update(id, func(rec *record) { rec.claimToken = token })
}

func (r *Registry) SetName(id, name string) error {
	return r.update(id, func(rec *record) { rec.name = name })
}

func (r *Registry) SetActiveRoom(id, roomID string) error {
	return r.update(id, func(rec *record) { rec.roomID = roomID })
}

// SwapActiveRoom меняет активную комнату, только если текущая равна from.
// Возвращает текущее значение и признак успеха.
func (r *Registry) SwapActiveRoom(id, from, to string) (string, bool, error) {
	rec, err := r.lock(id)
	if err != nil {
		return "", false, err
	}
	defer rec.mu.Unlock()

	if rec.roomID != from {
		return rec.roomID, false, nil
	}
	rec.roomID = to
	return to, true, nil
}

// ResolveBubbleSiblings: все живые соединения с этим bubbleID.
func (r *Registry) ResolveBubbleSiblings(bubbleID string) []string {
	if bubbleID == "" {
		return nil
	}

	r.mu.RLock()
	ids := lo.Keys(r.bubbles[bubbleID])
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// MarkOffline: транспорт закрыт, но запись остаётся (ждёт claim).
func (r *Registry) MarkOffline(id string, at time.Time) (Identity, error) {
	rec, err := r.lock(id)
	if err != nil {
		return Identity{}, err
	}
	defer rec.mu.Unlock()

	rec.live = false
	rec.disconnectedAt = at
	r.unindexLocked(rec)
	return rec.identity(), nil
}

// Remove удаляет запись. Побочные эффекты в комнатах: забота вызывающего.
func (r *Registry) Remove(id string) (Identity, bool) {
	rec, err := r.lock(id)
	if err != nil {
		return Identity{}, false
	}
	defer rec.mu.Unlock()

	ident := rec.identity()
	r.dropLocked(rec)
	return ident, true
}

// RemoveOffline удаляет запись, только если она всё ещё offline.
func (r *Registry) RemoveOffline(id string) (Identity, bool) {
	rec, err := r.lock(id)
	if err != nil {
		return Identity{}, false
	}
	defer rec.mu.Unlock()

	if rec.live {
		return Identity{}, false
	}
	ident := rec.identity()
	r.dropLocked(rec)
	return ident, true
}

// Transfer атомарно передаёт комнату, bubble и имя старой записи новой.
// guard вызывается под блокировками обеих записей и может отменить перенос.
// Старая запись удаляется, а если её транспорт ещё жив: обнуляется.
func (r *Registry) Transfer(oldID, newID string, guard func(old, cur Identity) error) (Identity, error) {
	oldRec, newRec, err := r.lockPair(oldID, newID)
	if err != nil {
		return Identity{}, err
	}
	defer oldRec.mu.Unlock()
	defer newRec.mu.Unlock()

	prev := oldRec.identity()
	if err := guard(prev, newRec.identity()); err != nil {
		return Identity{}, err
	}

	newRec.roomID = prev.RoomID
	if prev.BubbleID != "" {
		r.setBubbleLocked(newRec, prev.BubbleID)
	}
	if prev.Name != "" {
		newRec.name = prev.Name
	}

	if oldRec.live {
		r.unindexLocked(oldRec)
		oldRec.bubbleID = ""
		oldRec.claimToken = ""
		oldRec.roomID = ""
		oldRec.name = ""
	} else {
		r.dropLocked(oldRec)
	}
	return prev, nil
}

func (r *Registry) update(id string, fn func(rec *record)) error {
	rec, err := r.lock(id)
	if err != nil {
		return err
	}
	defer rec.mu.Unlock()

	fn(rec)
	return nil
}

// lock возвращает захваченную запись или ErrUnknownConnection.
func (r *Registry) lock(id string) (*record, error) {
	r.mu.RLock()
	rec, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUnknownConnection
	}

	rec.mu.Lock()
	if rec.gone {
		rec.mu.Unlock()
		return nil, domain.ErrUnknownConnection
	}
	return rec, nil
}

// lockPair захватывает две разные записи в порядке id.
func (r *Registry) lockPair(a, b string) (*record, *record, error) {
	if a == b {
		return nil, nil, domain.ErrInvalidRequest
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}

	r1, err := r.lock(first)
	if err != nil {
		return nil, nil, err
	}
	r2, err := r.lock(second)
	if err != nil {
		r1.mu.Unlock()
		return nil, nil, err
	}
	if first == a {
		return r1, r2, nil
	}
	return r2, r1, nil
}

func (r *Registry) setBubbleLocked(rec *record, bubbleID string) {
	r.unindexLocked(rec)
	rec.bubbleID = bubbleID
	if rec.live && bubbleID != "" {
		r.mu.Lock()
		set, ok := r.bubbles[bubbleID]
		if !ok {
			set = make(map[string]struct{})
			r.bubbles[bubbleID] = set
		}
		set[rec.id] = struct{}{}
		r.mu.Unlock()
	}
}

func (r *Registry) unindexLocked(rec *record) {
	if rec.bubbleID == "" {
		return
	}
	r.mu.Lock()
	if set, ok := r.bubbles[rec.bubbleID]; ok {
		delete(set, rec.id)
		if len(set) == 0 {
			delete(r.bubbles, rec.bubbleID)
		}
	}
	r.mu.Unlock()
}

func (r *Registry) dropLocked(rec *record) {
	r.unindexLocked(rec)
	rec.gone = true
	r.mu.Lock()
	delete(r.conns, rec.id)
	r.mu.Unlock()
}
