package tilestore

import (
	"encoding/json"
	"os"

	"tilecanvas/core/canon"
	"tilecanvas/pkg/errs"
)

// SnapshotTile writes a pre-materialized tile state as canonical JSON,
// content-addressed under the tile's snapshots/ directory, records an
// event_id → ref pointer for the §6-style "as of event X" lookup, and
// updates the tip index's Snapshot pointer to the resulting HashRef
// (spec §3 types TipIndex.Snapshot as a HashRef, not an event_id).
// state is any canon-ready value — callers pass the JSON projection of
// an nf.NFTileState produced by core/materializer; tilestore never
// depends on materializer itself, keeping the two components decoupled
// per the store's read/fold split.
func (s *Store) SnapshotTile(space, tile, atEventID string, state any) (string, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", &errs.Cancelled{Op: "snapshot_tile: store closed"}
	}

	b, err := canon.Canonical(state)
	if err != nil {
		return "", errs.Wrap(err, "snapshot_tile: canonicalize state")
	}
	ref := canon.HashBytes(b)

	ts, err := s.getOrLoadTile(space, tile)
	if err != nil {
		return "", err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	path := snapshotPath(s.cfg.RootDir, space, tile, ref)
	if err := writeAtomic(path, b); err != nil {
		return "", err
	}
	if err := writeAtomic(snapshotEventPointerPath(s.cfg.RootDir, space, tile, atEventID), []byte(ref)); err != nil {
		return "", err
	}

	ts.tip.Snapshot = ref
	if err := saveIndex(s.cfg.RootDir, space, tile, ts.tip); err != nil {
		return "", err
	}
	return ref, nil
}

// LoadSnapshot reads back a previously written snapshot by its
// HashRef, verifying the content against the ref the same way the
// object store does.
func (s *Store) LoadSnapshot(space, tile, ref string, out any) error {
	b, err := os.ReadFile(snapshotPath(s.cfg.RootDir, space, tile, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return &errs.NotFound{What: "snapshot " + ref}
		}
		return errs.NewIOFailure(err)
	}
	if !canon.Verify(b, ref) {
		return &errs.IntegrityError{Ref: ref}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errs.Wrap(err, "decode snapshot")
	}
	return nil
}

// LoadSnapshotForEvent resolves the event_id → ref pointer written by
// SnapshotTile and loads that snapshot, the "as of event X" access
// pattern spec §6 describes.
func (s *Store) LoadSnapshotForEvent(space, tile, atEventID string, out any) error {
	b, err := os.ReadFile(snapshotEventPointerPath(s.cfg.RootDir, space, tile, atEventID))
	if err != nil {
		if os.IsNotExist(err) {
			return &errs.NotFound{What: "snapshot pointer for event " + atEventID}
		}
		return errs.NewIOFailure(err)
	}
	return s.LoadSnapshot(space, tile, string(b), out)
}
