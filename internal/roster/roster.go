package roster

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// SessionID identifies one connection for the lifetime of a lobby.
type SessionID uint64

// NoCharacter marks a record that has not picked a character yet.
const NoCharacter = -1

type Identity struct {
	PersistentID string `json:"persistentId"`
	DisplayName  string `json:"displayName"`
}

// Identity lets a fixed Identity value act as its own provider.
func (i Identity) Identity() Identity { return i }

type Record struct {
	SessionID         SessionID `json:"sessionId"`
	PersistentID      string    `json:"persistentId"`
	DisplayName       string    `json:"displayName"`
	IsReady           bool      `json:"isReady"`
	SelectedCharacter int       `json:"selectedCharacter"`
}

func (r Record) HasCharacter() bool { return r.SelectedCharacter != NoCharacter }

type EventKind string

const (
	EventAdded   EventKind = "added"
	EventRemoved EventKind = "removed"
	EventUpdated EventKind = "updated"
)

// Event is delivered to observers after the mutation is applied. Removed
// events carry the record as it was just before deletion.
type Event struct {
	Kind   EventKind
	Record Record
}

type Observer func(Event)

type observerEntry struct {
	id int
	fn Observer
}

// Roster maps session ids to player records and notifies observers
// synchronously, in subscription order, after every effective mutation.
// Mutations that hit a missing (or, for Add, an existing) key are no-ops and
// emit nothing.
type Roster struct {
	log *zap.Logger

	mu        sync.RWMutex
	records   map[SessionID]*Record
	observers []observerEntry
	nextObs   int
}

func New(log *zap.Logger) *Roster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Roster{
		log:     log,
		records: make(map[SessionID]*Record),
	}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function may be called more than once and from inside an observer.
func (r *Roster) Subscribe(fn Observer) (unsubscribe func()) {
	r.mu.Lock()
	r.nextObs++
	id := r.nextObs
	r.observers = append(r.observers, observerEntry{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.observers = slices.DeleteFunc(r.observers, func(e observerEntry) bool { return e.id == id })
	}
}

func (r *Roster) Add(id SessionID, identity Identity) bool {
	r.mu.Lock()
	if _, ok := r.records[id]; ok {
		r.mu.Unlock()
		return false
	}
	rec := &Record{
		SessionID:         id,
		PersistentID:      identity.PersistentID,
		DisplayName:       identity.DisplayName,
		IsReady:           false,
		SelectedCharacter: NoCharacter,
	}
	r.records[id] = rec
	snap := *rec
	r.mu.Unlock()

	r.log.Debug("player added", zap.Uint64("session", uint64(id)), zap.String("name", snap.DisplayName))
	r.notify(Event{Kind: EventAdded, Record: snap})
	return true
}

func (r *Roster) Remove(id SessionID) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.records, id)
	snap := *rec
	r.mu.Unlock()

	r.log.Debug("player removed", zap.Uint64("session", uint64(id)))
	r.notify(Event{Kind: EventRemoved, Record: snap})
	return true
}

func (r *Roster) SetReady(id SessionID, isReady bool) bool {
	return r.update(id, func(rec *Record) { rec.IsReady = isReady })
}

// SetCharacter stores characterID as-is; any int, including NoCharacter, is
// accepted.
func (r *Roster) SetCharacter(id SessionID, characterID int) bool {
	return r.update(id, func(rec *Record) { rec.SelectedCharacter = characterID })
}

func (r *Roster) update(id SessionID, mutate func(*Record)) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	mutate(rec)
	snap := *rec
	r.mu.Unlock()

	r.notify(Event{Kind: EventUpdated, Record: snap})
	return true
}

// Clear removes every record, emitting one removed event per record.
func (r *Roster) Clear() {
	for _, rec := range r.Snapshot() {
		r.Remove(rec.SessionID)
	}
}

func (r *Roster) Get(id SessionID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns copies of all records ordered by session id.
func (r *Roster) Snapshot() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		switch {
		case a.SessionID < b.SessionID:
			return -1
		case a.SessionID > b.SessionID:
			return 1
		}
		return 0
	})
	return out
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// AllReady is false for an empty roster so a game can never start with
// nobody in it.
func (r *Roster) AllReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.records) == 0 {
		return false
	}
	for _, rec := range r.records {
		if !rec.IsReady || !rec.HasCharacter() {
			return false
		}
	}
	return true
}

func (r *Roster) notify(ev Event) {
	r.mu.RLock()
	obs := slices.Clone(r.observers)
	r.mu.RUnlock()

	for _, o := range obs {
		o.fn(ev)
	}
}
