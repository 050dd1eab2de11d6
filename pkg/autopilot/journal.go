package autopilot

import (
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cpunion/moltbot/pkg/types"
)

// DefaultJournalCapacity is how many entries the journal keeps.
const DefaultJournalCapacity = 50

// EventKind tells subscribers what changed in the journal.
type EventKind int

const (
	// EntryAdded carries a new entry.
	EntryAdded EventKind = iota
	// JournalReset means all earlier entries were dropped.
	JournalReset
)

// Event is one journal change. Entry is set for EntryAdded only.
type Event struct {
	Kind  EventKind
	Entry types.LogEntry
}

// Journal is the bounded activity log shown on the dashboard. Appends from
// concurrent engines are serialized; once full, the oldest entry is evicted.
// Subscribers see changes in the same order Entries reports them.
type Journal struct {
	clock    clockwork.Clock
	log      zerolog.Logger
	capacity int

	// delivery is held from the state change until every subscriber has
	// seen it, so events cannot overtake each other.
	delivery sync.Mutex

	mu      sync.Mutex
	entries []types.LogEntry
	sink    Sink
	subs    map[int]func(Event)
	nextSub int
}

// NewJournal creates a journal holding at most capacity entries. Every entry
// is mirrored to logger.
func NewJournal(capacity int, clock clockwork.Clock, logger zerolog.Logger) *Journal {
	if capacity <= 0 {
		capacity = DefaultJournalCapacity
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Journal{
		clock:    clock,
		log:      logger,
		capacity: capacity,
		subs:     make(map[int]func(Event)),
	}
}

// SetSink attaches a persistent sink. Pass nil to detach.
func (j *Journal) SetSink(s Sink) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sink = s
}

// Add appends an entry and notifies subscribers.
func (j *Journal) Add(severity types.Severity, msg string) types.LogEntry {
	entry := types.NewLogEntry(j.clock.Now(), severity, msg)

	j.delivery.Lock()
	defer j.delivery.Unlock()

	j.mu.Lock()
	j.entries = append(j.entries, entry)
	if over := len(j.entries) - j.capacity; over > 0 {
		j.entries = append(j.entries[:0:0], j.entries[over:]...)
	}
	sink := j.sink
	subs := j.subscribersLocked()
	j.mu.Unlock()

	j.mirror(entry)
	if sink != nil {
		if err := sink.Write(entry); err != nil {
			j.log.Warn().Err(err).Msg("journal sink write failed")
		}
	}
	notify(subs, Event{Kind: EntryAdded, Entry: entry})
	return entry
}

func (j *Journal) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(j.subs))
	for id := range j.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(Event), len(ids))
	for i, id := range ids {
		out[i] = j.subs[id]
	}
	return out
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}

func (j *Journal) mirror(e types.LogEntry) {
	var ev *zerolog.Event
	switch e.Severity {
	case types.SeverityError:
		ev = j.log.Error()
	case types.SeverityInfo:
		ev = j.log.Debug()
	default:
		ev = j.log.Info()
	}
	ev.Str("severity", string(e.Severity)).Msg(e.Message)
}

// Entries returns a copy of the journal, oldest first.
func (j *Journal) Entries() []types.LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]types.LogEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len returns the number of entries held.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Reset drops all entries, starts a new segment in a rotating sink and tells
// subscribers.
func (j *Journal) Reset() {
	j.delivery.Lock()
	defer j.delivery.Unlock()

	j.mu.Lock()
	j.entries = nil
	sink := j.sink
	subs := j.subscribersLocked()
	j.mu.Unlock()

	if r, ok := sink.(Rotator); ok {
		if err := r.Rotate(); err != nil {
			j.log.Warn().Err(err).Msg("journal sink rotate failed")
		}
	}
	notify(subs, Event{Kind: JournalReset})
}

// Subscribe registers fn for every journal change. fn runs on the appending
// goroutine, must not block and must not write to the journal. The returned
// func unsubscribes.
func (j *Journal) Subscribe(fn func(Event)) func() {
	j.mu.Lock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = fn
	j.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			j.mu.Lock()
			delete(j.subs, id)
			j.mu.Unlock()
		})
	}
}
