package tilestore

import (
	"os"
	"testing"

	"tilecanvas/core/event"
)

func flushOne(t *testing.T, s *Store, space, tile, id string, ts int64) {
	t.Helper()
	e := mkEvent(id, ts, event.OpCreateNode, id)
	if _, err := s.AppendTileEvents(space, tile, []*event.WorldEvent{e}); err != nil {
		t.Fatalf("append %s: %v", id, err)
	}
	tstate, err := s.getOrLoadTile(space, tile)
	if err != nil {
		t.Fatalf("getOrLoadTile: %v", err)
	}
	tstate.mu.Lock()
	defer tstate.mu.Unlock()
	if err := s.flushLocked(tstate); err != nil {
		t.Fatalf("flush %s: %v", id, err)
	}
}

func TestArchiveOldSegmentsSkipsTipAndParent(t *testing.T) {
	s := newTestStore(t)
	space, tile := "demo", "z0/x0/y0"

	for i, id := range []string{"e1", "e2", "e3"} {
		flushOne(t, s, space, tile, id, int64(1000+i))
	}

	ts, err := s.getOrLoadTile(space, tile)
	if err != nil {
		t.Fatalf("getOrLoadTile: %v", err)
	}
	manifest := append([]SegmentDescriptor{}, ts.manifest...)
	if len(manifest) != 3 {
		t.Fatalf("expected 3 manifest entries, got %d", len(manifest))
	}

	if err := s.ArchiveOldSegments(space, tile); err != nil {
		t.Fatalf("ArchiveOldSegments: %v", err)
	}

	if _, err := os.Stat(archivePath(s.cfg.RootDir, space, tile, manifest[0].SegmentHash)); err != nil {
		t.Fatalf("expected oldest segment to be archived: %v", err)
	}
	if _, err := os.Stat(archivePath(s.cfg.RootDir, space, tile, manifest[1].SegmentHash)); !os.IsNotExist(err) {
		t.Fatalf("expected tip's immediate parent to stay unarchived, stat err: %v", err)
	}
	if _, err := os.Stat(archivePath(s.cfg.RootDir, space, tile, manifest[2].SegmentHash)); !os.IsNotExist(err) {
		t.Fatalf("expected tip segment to stay unarchived, stat err: %v", err)
	}

	all, err := s.GetSegmentsSince(space, tile, nil, 10)
	if err != nil {
		t.Fatalf("get segments after archive: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("archiving must not remove segments from the object store, got %d", len(all))
	}
}

func TestArchiveOldSegmentsNoopBelowThreshold(t *testing.T) {
	s := newTestStore(t)
	space, tile := "demo", "z0/x0/y0"
	flushOne(t, s, space, tile, "e1", 1000)

	if err := s.ArchiveOldSegments(space, tile); err != nil {
		t.Fatalf("ArchiveOldSegments: %v", err)
	}
}
