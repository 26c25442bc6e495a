package tilestore

import (
	"encoding/json"

	"tilecanvas/core/event"
	"tilecanvas/pkg/errs"
)

// GetTileTip returns the current tip index for (space, tile), or
// found=false if the tile has never been appended to.
func (s *Store) GetTileTip(space, tile string) (TipIndex, bool, error) {
	ts, err := s.getOrLoadTile(space, tile)
	if err != nil {
		return TipIndex{}, false, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.tip.Tip == "" {
		ts.tip.Tip = Genesis
	}
	return ts.tip, len(ts.manifest) > 0, nil
}

// GetObject reads raw bytes by HashRef from the underlying object
// store, verifying integrity.
func (s *Store) GetObject(ref string) ([]byte, error) {
	return s.obj.Get(ref)
}

const defaultMaxSegments = 64

// GetSegmentsSince walks the tip→root prev chain, returning segments
// in tip-to-root order. Stops after max segments, when a segment
// containing afterEvent is reached (exclusive boundary — that segment
// IS returned, then the walk halts), or when the chain ends at
// Genesis. Readers apply the result in reverse for materialization.
func (s *Store) GetSegmentsSince(space, tile string, afterEvent *string, max int) ([]Segment, error) {
	if max <= 0 {
		max = defaultMaxSegments
	}
	ts, err := s.getOrLoadTile(space, tile)
	if err != nil {
		return nil, err
	}
	ts.mu.Lock()
	tip := ts.tip.Tip
	prevByHash := prevIndex(ts.manifest)
	ts.mu.Unlock()

	var out []Segment
	cur := tip
	for len(out) < max && cur != "" && cur != Genesis {
		seg, err := s.readSegment(cur)
		if err != nil {
			return out, err
		}
		seg.Prev = prevByHash[cur]
		out = append(out, seg)
		if afterEvent != nil && containsEvent(seg, *afterEvent) {
			break
		}
		cur = seg.Prev
	}
	return out, nil
}

// prevIndex maps each segment hash to the hash that precedes it in
// append order (Genesis for the first segment), from a manifest
// snapshot. Segment.Prev is not itself part of the canonical JSON wire
// form (only the event list is hashed), so the chain is reconstructed
// from manifest order instead.
func prevIndex(manifest []SegmentDescriptor) map[string]string {
	out := make(map[string]string, len(manifest))
	prev := Genesis
	for _, d := range manifest {
		out[d.SegmentHash] = prev
		prev = d.SegmentHash
	}
	return out
}

func containsEvent(seg Segment, eventID string) bool {
	for _, e := range seg.Events {
		if e.EventID == eventID {
			return true
		}
	}
	return false
}

func (s *Store) readSegment(hash string) (Segment, error) {
	b, err := s.obj.Get(hash)
	if err != nil {
		return Segment{}, err
	}
	var events []*event.WorldEvent
	if err := json.Unmarshal(b, &events); err != nil {
		return Segment{}, errs.Wrap(err, "decode segment "+hash)
	}
	seg := Segment{Hash: hash, Events: events}
	if len(events) > 0 {
		seg.CreatedAtMs = events[len(events)-1].Timestamp
	}
	return seg, nil
}
