package status

import (
	"sort"
	"strings"
	"sync"
)

const userIDPrefix = "U-"

// PrivateWorld is reported when a user's world cannot be resolved from the
// session snapshot.
const PrivateWorld = "Private"

// Event is a server-pushed presence change for one user.
type Event struct {
	UserID       string `json:"userId"`
	OnlineStatus string `json:"onlineStatus"`
}

// Entry is one row of the friend status table.
type Entry struct {
	UserID    string
	Status    string
	WorldName string
}

// WorldResolver maps a raw (prefixed) user id to an active world name.
type WorldResolver interface {
	FindActiveWorld(userID string) (string, bool)
}

// Sink receives the full table after every update.
type Sink func(entries []Entry)

// Reconciler merges presence events with the session snapshot. Purely
// reactive: it never initiates network calls.
type Reconciler struct {
	worlds WorldResolver
	sink   Sink

	mu    sync.Mutex
	table map[string]Entry
}

func NewReconciler(worlds WorldResolver, sink Sink) *Reconciler {
	return &Reconciler{
		worlds: worlds,
		sink:   sink,
		table:  make(map[string]Entry),
	}
}

// OnStatusEvent resolves the user's world and updates the table, last write
// wins. The world lookup must use the raw id: session occupant records carry
// the owner-id prefix that the table key strips.
func (r *Reconciler) OnStatusEvent(ev Event) {
	world, ok := r.worlds.FindActiveWorld(ev.UserID)
	if !ok {
		world = PrivateWorld
	}

	key := strings.TrimPrefix(ev.UserID, userIDPrefix)

	r.mu.Lock()
	r.table[key] = Entry{UserID: key, Status: ev.OnlineStatus, WorldName: world}
	r.mu.Unlock()

	if r.sink != nil {
		r.sink(r.Snapshot())
	}
}

// Snapshot returns the current table sorted by user id for stable rendering.
func (r *Reconciler) Snapshot() []Entry {
	r.mu.Lock()
	entries := make([]Entry, 0, len(r.table))
	for _, e := range r.table {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}
