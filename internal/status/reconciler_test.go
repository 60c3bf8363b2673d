package status

import (
	"reflect"
	"testing"
)

// worldMap resolves raw (prefixed) ids, the way session occupant records do.
type worldMap map[string]string

func (w worldMap) FindActiveWorld(userID string) (string, bool) {
	world, ok := w[userID]
	return world, ok
}

func TestOnStatusEventLooksUpRawIDStoresStrippedKey(t *testing.T) {
	worlds := worldMap{"U-abc123": "World A"}
	r := NewReconciler(worlds, nil)

	r.OnStatusEvent(Event{UserID: "U-abc123", OnlineStatus: "Online"})

	entries := r.Snapshot()
	want := []Entry{{UserID: "abc123", Status: "Online", WorldName: "World A"}}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("got %#v, want %#v", entries, want)
	}
}

func TestOnStatusEventFallsBackToPrivate(t *testing.T) {
	r := NewReconciler(worldMap{}, nil)
	r.OnStatusEvent(Event{UserID: "U-3", OnlineStatus: "Online"})

	entries := r.Snapshot()
	if len(entries) != 1 || entries[0].WorldName != PrivateWorld {
		t.Fatalf("got %#v, want one entry in %q", entries, PrivateWorld)
	}
	if entries[0].UserID != "3" {
		t.Fatalf("key not stripped: %q", entries[0].UserID)
	}
}

func TestOnStatusEventReplayIsIdempotent(t *testing.T) {
	worlds := worldMap{"U-2": "World A"}
	r := NewReconciler(worlds, nil)

	ev := Event{UserID: "U-2", OnlineStatus: "Online"}
	r.OnStatusEvent(ev)
	once := r.Snapshot()
	r.OnStatusEvent(ev)
	twice := r.Snapshot()

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("replay changed table: %#v vs %#v", once, twice)
	}
	if len(twice) != 1 {
		t.Fatalf("replay duplicated entry: %#v", twice)
	}
}

func TestOnStatusEventLastWriteWins(t *testing.T) {
	worlds := worldMap{"U-2": "World A"}
	r := NewReconciler(worlds, nil)

	r.OnStatusEvent(Event{UserID: "U-2", OnlineStatus: "Online"})
	delete(worlds, "U-2")
	r.OnStatusEvent(Event{UserID: "U-2", OnlineStatus: "Away"})

	entries := r.Snapshot()
	want := []Entry{{UserID: "2", Status: "Away", WorldName: PrivateWorld}}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("got %#v, want %#v", entries, want)
	}
}

func TestSinkReceivesSortedTableAfterEachEvent(t *testing.T) {
	var updates [][]Entry
	r := NewReconciler(worldMap{}, func(entries []Entry) {
		updates = append(updates, entries)
	})

	r.OnStatusEvent(Event{UserID: "U-b", OnlineStatus: "Online"})
	r.OnStatusEvent(Event{UserID: "U-a", OnlineStatus: "Busy"})

	if len(updates) != 2 {
		t.Fatalf("sink called %d times, want 2", len(updates))
	}
	last := updates[1]
	if len(last) != 2 || last[0].UserID != "a" || last[1].UserID != "b" {
		t.Fatalf("table not sorted by user id: %#v", last)
	}
}
