package cache

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeFetcher struct {
	sessions []Session
	err      error
	calls    int
}

func (f *fakeFetcher) Sessions(ctx context.Context) ([]Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions, nil
}

func TestFindActiveWorld(t *testing.T) {
	snapshot := []Session{
		{Name: "World A", Users: []SessionUser{
			{UserID: "U-2", IsPresent: true},
			{UserID: "U-away", IsPresent: false},
		}},
		{Name: "World B", Users: []SessionUser{
			{UserID: "U-2", IsPresent: true}, // duplicate presence, first match wins
			{UserID: "U-5", IsPresent: true},
		}},
	}

	cases := []struct {
		name      string
		userID    string
		wantWorld string
		wantFound bool
	}{
		{name: "present in one session", userID: "U-5", wantWorld: "World B", wantFound: true},
		{name: "present in two sessions resolves first", userID: "U-2", wantWorld: "World A", wantFound: true},
		{name: "listed but not present", userID: "U-away", wantFound: false},
		{name: "unknown user", userID: "U-nobody", wantFound: false},
	}

	c := New(&fakeFetcher{sessions: snapshot}, zap.NewNop())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			world, found := c.FindActiveWorld(tc.userID)
			if found != tc.wantFound || world != tc.wantWorld {
				t.Fatalf("got (%q, %v), want (%q, %v)", world, found, tc.wantWorld, tc.wantFound)
			}
		})
	}
}

func TestFindActiveWorldEmptyCache(t *testing.T) {
	c := New(&fakeFetcher{}, zap.NewNop())
	if world, found := c.FindActiveWorld("U-2"); found || world != "" {
		t.Fatalf("expected miss on empty cache, got (%q, %v)", world, found)
	}
}

func TestRefreshFailureKeepsLastSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{sessions: []Session{
		{Name: "World A", Users: []SessionUser{{UserID: "U-2", IsPresent: true}}},
	}}
	c := New(fetcher, zap.NewNop())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	fetcher.err = errors.New("api down")
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}

	world, found := c.FindActiveWorld("U-2")
	if !found || world != "World A" {
		t.Fatalf("stale snapshot lost: got (%q, %v)", world, found)
	}
}

func TestRefreshReplacesSnapshotWholesale(t *testing.T) {
	fetcher := &fakeFetcher{sessions: []Session{
		{Name: "World A", Users: []SessionUser{{UserID: "U-2", IsPresent: true}}},
	}}
	c := New(fetcher, zap.NewNop())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	fetcher.sessions = []Session{
		{Name: "World C", Users: []SessionUser{{UserID: "U-9", IsPresent: true}}},
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, found := c.FindActiveWorld("U-2"); found {
		t.Fatalf("old snapshot leaked into new one")
	}
	if world, found := c.FindActiveWorld("U-9"); !found || world != "World C" {
		t.Fatalf("new snapshot missing: got (%q, %v)", world, found)
	}
}
