// Package materializer implements the shadow-canvas fold (C6): turning
// an ordered stream of world events into an NFTileState under
// Last-Write-Wins and OR-Set semantics. It owns no storage; callers
// assemble the event list from a tile store snapshot plus segments and
// discard the result freely. See spec §4.6.
package materializer

import (
	"tilecanvas/core/event"
	"tilecanvas/core/nf"
)

// Fold materializes events from GENESIS into a fresh NFTileState.
func Fold(tileID string, events []*event.WorldEvent) nf.NFTileState {
	return FoldFrom(nf.NFTileState{TileID: tileID}, events)
}

// FoldFrom materializes events on top of a base state — typically a
// prior snapshot — applying them in C3's deterministic order. The
// result does not depend on how events are partitioned across
// segments, only on the multiset of events and the base they extend.
func FoldFrom(base nf.NFTileState, events []*event.WorldEvent) nf.NFTileState {
	nodes := make(map[string]*fnode, len(base.Nodes)+len(events))
	tileID := base.TileID
	for _, n := range base.Nodes {
		nodes[n.NodeID] = fnodeFromNF(n)
	}

	for _, e := range nf.Order(events) {
		if tileID == "" {
			tileID = e.Tile
		}
		applyEvent(nodes, e)
	}

	out := nf.NFTileState{TileID: tileID, Nodes: make([]nf.NFNode, 0, len(nodes))}
	for _, fn := range nodes {
		out.Nodes = append(out.Nodes, fn.toNFNode())
	}
	return nf.NormalizeState(out)
}

func applyEvent(nodes map[string]*fnode, e *event.WorldEvent) {
	switch e.Operation {
	case event.OpCreateNode:
		fn := getOrCreate(nodes, e.NodeID)
		if fn.Deleted {
			return // tombstone is sticky; create never resurrects
		}
		if e.Kind != "" {
			fn.Kind = e.Kind
		}
		applyTransform(fn, e)
		applyProperties(fn, e)
	case event.OpUpdateTransform:
		fn := getOrCreate(nodes, e.NodeID)
		if fn.Deleted {
			return
		}
		applyTransform(fn, e)
	case event.OpSetProperties:
		fn := getOrCreate(nodes, e.NodeID)
		if fn.Deleted {
			return
		}
		applyProperties(fn, e)
	case event.OpLinkNodes:
		fn := getOrCreate(nodes, e.Link.From)
		if fn.Deleted {
			return
		}
		fn.Links = append(fn.Links, nf.LinkEdge{
			Relation: e.Link.Relation,
			To:       e.Link.To,
			AddTag:   e.EventID,
			AddedTS:  e.Timestamp,
		})
	case event.OpUnlinkNodes:
		fn, ok := nodes[e.Link.From]
		if !ok {
			return
		}
		fn.Links = removeObserved(fn.Links, e.Link.To, e.Link.Relation, e.Timestamp)
	case event.OpDeleteNode:
		fn := getOrCreate(nodes, e.NodeID)
		fn.Deleted = true
	case event.OpMerge:
		applyMerge(nodes, e)
	}
}

func applyTransform(fn *fnode, e *event.WorldEvent) {
	if e.Transform == nil {
		return
	}
	if wins(e.Timestamp, e.EventID, fn.TransformTS, fn.TransformEventID) {
		fn.Transform = e.Transform
		fn.TransformTS = e.Timestamp
		fn.TransformEventID = e.EventID
	}
}

func applyProperties(fn *fnode, e *event.WorldEvent) {
	for k, v := range e.Properties {
		cur := fn.Properties[k]
		if wins(e.Timestamp, e.EventID, cur.ts, cur.eventID) {
			fn.Properties[k] = propValue{value: v, ts: e.Timestamp, eventID: e.EventID}
		}
	}
}

// removeObserved drops links to `to` (any relation if relation=="")
// whose add-tag timestamp the unlink has observed, i.e. is no later
// than the unlink's own timestamp.
func removeObserved(links []nf.LinkEdge, to, relation string, ts int64) []nf.LinkEdge {
	out := links[:0:0]
	for _, l := range links {
		if l.To == to && (relation == "" || l.Relation == relation) && l.AddedTS <= ts {
			continue
		}
		out = append(out, l)
	}
	return out
}

// applyMerge folds each source node's transform/properties/links into
// target under LWW/OR-Set rules using each field's own recorded tag,
// then tombstones the source. Comparisons use the tags already
// carried by target and source, not the merge event's own timestamp,
// since the merge event itself carries no transform/properties.
func applyMerge(nodes map[string]*fnode, e *event.WorldEvent) {
	target := getOrCreate(nodes, e.TargetID)
	for _, srcID := range e.SourceIDs {
		if srcID == e.TargetID {
			continue
		}
		src, ok := nodes[srcID]
		if !ok {
			continue
		}
		if src.Transform != nil && (target.Transform == nil || wins(src.TransformTS, src.TransformEventID, target.TransformTS, target.TransformEventID)) {
			target.Transform = src.Transform
			target.TransformTS = src.TransformTS
			target.TransformEventID = src.TransformEventID
		}
		for k, v := range src.Properties {
			cur, exists := target.Properties[k]
			if !exists || wins(v.ts, v.eventID, cur.ts, cur.eventID) {
				target.Properties[k] = v
			}
		}
		if target.Kind == "" {
			target.Kind = src.Kind
		}
		target.Links = append(target.Links, src.Links...)
		src.Deleted = true
		src.Links = nil
	}
}

// wins reports whether (ts, id) is strictly newer than (curTS, curID)
// under the (timestamp, event_id) LWW comparison. A node with no prior
// tag (curTS==0, curID=="") always loses to any real event.
func wins(ts int64, id string, curTS int64, curID string) bool {
	if ts != curTS {
		return ts > curTS
	}
	return id > curID
}

func getOrCreate(nodes map[string]*fnode, id string) *fnode {
	fn, ok := nodes[id]
	if !ok {
		fn = newFnode(id)
		nodes[id] = fn
	}
	return fn
}
