package tilestore

import (
	"testing"

	"tilecanvas/core/event"
)

func mkEvent(id string, ts int64, op event.Operation, nodeID string) *event.WorldEvent {
	return &event.WorldEvent{
		EventID:   id,
		Timestamp: ts,
		SpaceID:   "demo",
		Tile:      "z0/x0/y0",
		LayerID:   event.LayerLayout,
		ActorID:   "actor-1",
		Operation: op,
		NodeID:    nodeID,
		Scope: event.Scope{
			Realm:     event.RealmTeam,
			Authority: event.AuthoritySource,
			Boundary:  event.BoundaryInterior,
			Policy:    event.PolicyPublic,
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{RootDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndReadBackSingleEvent(t *testing.T) {
	s := newTestStore(t)
	e := mkEvent("e1", 1000, event.OpCreateNode, "n1")
	res, err := s.AppendTileEvents("demo", "z0/x0/y0", []*event.WorldEvent{e})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !res.OK || res.Appended != 1 {
		t.Fatalf("unexpected append result: %+v", res)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	tip, found, err := s.GetTileTip("demo", "z0/x0/y0")
	if err != nil {
		t.Fatalf("get tip: %v", err)
	}
	if !found {
		t.Fatal("expected tip to be found after close-flush")
	}
	if tip.Tip == Genesis {
		t.Fatal("expected non-genesis tip after append")
	}

	segs, err := s.GetSegmentsSince("demo", "z0/x0/y0", nil, 0)
	if err != nil {
		t.Fatalf("get segments: %v", err)
	}
	if len(segs) != 1 || len(segs[0].Events) != 1 || segs[0].Events[0].EventID != "e1" {
		t.Fatalf("unexpected segments: %+v", segs)
	}
}

func TestSegmentChainWalkAndAfterEventBoundary(t *testing.T) {
	s := newTestStore(t)
	space, tile := "demo", "z0/x0/y0"

	for i, id := range []string{"e1", "e2", "e3"} {
		e := mkEvent(id, int64(1000+i), event.OpCreateNode, id)
		if _, err := s.AppendTileEvents(space, tile, []*event.WorldEvent{e}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
		ts, err := s.getOrLoadTile(space, tile)
		if err != nil {
			t.Fatalf("getOrLoadTile: %v", err)
		}
		ts.mu.Lock()
		if err := s.flushLocked(ts); err != nil {
			ts.mu.Unlock()
			t.Fatalf("flush %s: %v", id, err)
		}
		ts.mu.Unlock()
	}

	all, err := s.GetSegmentsSince(space, tile, nil, 10)
	if err != nil {
		t.Fatalf("get segments: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(all))
	}
	// Tip-to-root order: last appended first.
	if all[0].Events[0].EventID != "e3" || all[2].Events[0].EventID != "e1" {
		t.Fatalf("unexpected walk order: %v", []string{all[0].Events[0].EventID, all[1].Events[0].EventID, all[2].Events[0].EventID})
	}

	after := "e2"
	bounded, err := s.GetSegmentsSince(space, tile, &after, 10)
	if err != nil {
		t.Fatalf("get segments bounded: %v", err)
	}
	if len(bounded) != 2 {
		t.Fatalf("expected walk to stop at the e2 segment, got %d segments", len(bounded))
	}
}

// TestManifestDurableBeforeIndexWrite exercises the crash-safety
// ordering described in spec §8 scenario 6: the segment object and
// manifest must be durable on disk before the tip index is rewritten,
// so a crash in between leaves only a harmless orphaned segment (never
// referenced by the tip) rather than a tip pointing at unstored bytes.
func TestManifestDurableBeforeIndexWrite(t *testing.T) {
	s := newTestStore(t)
	space, tile := "demo", "z0/x0/y0"

	var manifestAtHookTime []SegmentDescriptor
	var indexAtHookTime TipIndex
	var indexFound bool
	s.preFlushIndexWrite = func() {
		m, err := loadManifest(s.cfg.RootDir, space, tile)
		if err != nil {
			t.Fatalf("loadManifest in hook: %v", err)
		}
		manifestAtHookTime = m
		idx, found, err := loadIndex(s.cfg.RootDir, space, tile)
		if err != nil {
			t.Fatalf("loadIndex in hook: %v", err)
		}
		indexAtHookTime, indexFound = idx, found
	}

	e := mkEvent("e1", 1000, event.OpCreateNode, "n1")
	if _, err := s.AppendTileEvents(space, tile, []*event.WorldEvent{e}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(manifestAtHookTime) != 1 {
		t.Fatalf("expected manifest durably written before index write, got %d entries", len(manifestAtHookTime))
	}
	if indexFound && indexAtHookTime.Tip == manifestAtHookTime[0].SegmentHash {
		t.Fatal("expected tip index to not yet reference the new segment at hook time")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	space, tile := "demo", "z0/x0/y0"
	e := mkEvent("e1", 1000, event.OpCreateNode, "n1")
	if _, err := s.AppendTileEvents(space, tile, []*event.WorldEvent{e}); err != nil {
		t.Fatalf("append: %v", err)
	}

	state := map[string]any{"nodes": []any{"n1"}}
	ref, err := s.SnapshotTile(space, tile, "e1", state)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	var got map[string]any
	if err := s.LoadSnapshot(space, tile, ref, &got); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected non-empty snapshot state")
	}

	var gotByEvent map[string]any
	if err := s.LoadSnapshotForEvent(space, tile, "e1", &gotByEvent); err != nil {
		t.Fatalf("load snapshot by event: %v", err)
	}
	if len(gotByEvent) == 0 {
		t.Fatal("expected non-empty snapshot state via event pointer")
	}

	tip, _, err := s.GetTileTip(space, tile)
	if err != nil {
		t.Fatalf("get tip: %v", err)
	}
	if tip.Snapshot != ref {
		t.Fatalf("expected tip snapshot pointer to hold the snapshot's HashRef, got %q want %q", tip.Snapshot, ref)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestAppendRejectedAfterClose(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	e := mkEvent("e1", 1000, event.OpCreateNode, "n1")
	if _, err := s.AppendTileEvents("demo", "z0/x0/y0", []*event.WorldEvent{e}); err == nil {
		t.Fatal("expected append after close to fail")
	}
}
