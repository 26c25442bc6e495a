package tilestore

import (
	"time"

	"tilecanvas/core/canon"
	"tilecanvas/core/event"
	"tilecanvas/core/nf"
	"tilecanvas/pkg/errs"
)

// AppendTileEvents validates and normalizes events, accumulates them
// into the open segment buffer for (space, tile), and flushes when
// size or time thresholds are crossed. Rejects the whole batch
// (all-or-nothing) on any validation failure.
func (s *Store) AppendTileEvents(space, tile string, events []*event.WorldEvent) (AppendResult, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return AppendResult{}, &errs.Cancelled{Op: "append_tile_events: store closed"}
	}

	if err := event.ValidateBatch(space, tile, events); err != nil {
		return AppendResult{}, err
	}
	normalized := nf.NormalizeAll(events)

	ts, err := s.getOrLoadTile(space, tile)
	if err != nil {
		return AppendResult{}, err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	pending := make([]bufferedEvent, 0, len(normalized))
	pendingSize := 0
	for _, e := range normalized {
		b, err := canon.Canonical(nf.EventJSON(e))
		if err != nil {
			return AppendResult{}, errs.NewInvalidEvent(e.EventID, err.Error())
		}
		pending = append(pending, bufferedEvent{ev: e, size: len(b)})
		pendingSize += len(b)
	}
	if len(ts.buffer) == 0 {
		ts.firstAt = time.Now()
	}
	ts.buffer = append(ts.buffer, pending...)
	ts.bufferSize += pendingSize

	if ts.timer == nil {
		ts.timer = time.AfterFunc(time.Duration(s.cfg.FlushMs)*time.Millisecond, func() {
			ts.mu.Lock()
			defer ts.mu.Unlock()
			if len(ts.buffer) > 0 {
				_ = s.flushLocked(ts)
			}
		})
	}

	if ts.bufferSize >= s.cfg.FlushBytes {
		if err := s.flushLocked(ts); err != nil {
			return AppendResult{}, err
		}
	}

	return AppendResult{OK: true, Appended: len(events)}, nil
}

// flushLocked serializes the buffer, hashes it, stores it, appends a
// manifest descriptor, and atomically rewrites the tip index. Caller
// must hold ts.mu. A no-op if the buffer is empty.
func (s *Store) flushLocked(ts *tileState) error {
	if len(ts.buffer) == 0 {
		return nil
	}
	if ts.timer != nil {
		ts.timer.Stop()
		ts.timer = nil
	}

	evs := make([]*event.WorldEvent, len(ts.buffer))
	for i, be := range ts.buffer {
		evs[i] = be.ev
	}
	jsonEvents := make([]any, len(evs))
	for i, e := range evs {
		jsonEvents[i] = nf.EventJSON(e)
	}
	segBytes, err := canon.Canonical(jsonEvents)
	if err != nil {
		return errs.Wrap(err, "flush: canonicalize segment")
	}
	hash := canon.HashBytes(segBytes)

	if _, err := s.obj.Put(segBytes); err != nil {
		return errs.Wrap(err, "flush: put segment object")
	}
	s.metrics.segmentsFlushed.Inc()
	s.metrics.bytesFlushed.Add(float64(len(segBytes)))

	desc := SegmentDescriptor{
		SegmentHash:  hash,
		FirstEventID: evs[0].EventID,
		LastEventID:  evs[len(evs)-1].EventID,
		EventCount:   len(evs),
	}
	newManifest := append(append([]SegmentDescriptor{}, ts.manifest...), desc)
	if err := saveManifest(s.cfg.RootDir, ts.space, ts.tile, newManifest); err != nil {
		// Segment object is durable but unreferenced: harmless orphan.
		s.metrics.segmentsOrphaned.Inc()
		return errs.Wrap(err, "flush: save manifest")
	}

	if s.preFlushIndexWrite != nil {
		s.preFlushIndexWrite()
	}

	newIndex := TipIndex{Tip: hash, Snapshot: ts.tip.Snapshot, UpdatedAtMs: time.Now().UnixMilli()}
	if err := saveIndex(s.cfg.RootDir, ts.space, ts.tile, newIndex); err != nil {
		// Manifest already references a segment whose tip pointer was
		// never advanced: the segment (and its manifest entry) are
		// orphaned from the tip's perspective but harmless, since
		// get_segments_since always walks from the tip, not the
		// manifest tail.
		s.metrics.segmentsOrphaned.Inc()
		return errs.Wrap(err, "flush: save tip index")
	}

	ts.manifest = newManifest
	ts.tip = newIndex
	ts.buffer = nil
	ts.bufferSize = 0
	return nil
}
