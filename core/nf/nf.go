// Package nf implements the Normal-Form engine (C3): event
// normalization, deterministic ordering, no-op pruning, and
// trace/state hashing. See spec §4.3.
package nf

import (
	"sort"

	"tilecanvas/core/canon"
	"tilecanvas/core/event"
)

// Normalize ensures PreservesInvariants is the sorted union of the
// input and the root invariants. Idempotent: Normalize(Normalize(e))
// == Normalize(e).
func Normalize(e *event.WorldEvent) *event.WorldEvent {
	out := *e
	union := make([]event.Invariant, 0, len(e.PreservesInvariants)+len(event.RootInvariants))
	union = append(union, e.PreservesInvariants...)
	union = append(union, event.RootInvariants...)
	out.PreservesInvariants = event.SortedInvariants(union)
	return &out
}

// NormalizeAll normalizes every event in events, preserving order.
func NormalizeAll(events []*event.WorldEvent) []*event.WorldEvent {
	out := make([]*event.WorldEvent, len(events))
	for i, e := range events {
		out[i] = Normalize(e)
	}
	return out
}

// Order returns a new slice sorted by (timestamp ASC, event_id ASC),
// stable. For all event lists L and permutations π, Order(L) ==
// Order(π(L)).
func Order(events []*event.WorldEvent) []*event.WorldEvent {
	out := make([]*event.WorldEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.EventID < b.EventID
	})
	return out
}

// Prune removes a consecutive update_transform event when the prior
// retained event is also update_transform for the same node_id with a
// canonical-JSON-equal transform. No other operations are pruned.
// events must already be in deterministic order (see Order).
func Prune(events []*event.WorldEvent) []*event.WorldEvent {
	out := make([]*event.WorldEvent, 0, len(events))
	for _, e := range events {
		if len(out) > 0 && isRedundantTransform(out[len(out)-1], e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func isRedundantTransform(prev, cur *event.WorldEvent) bool {
	if prev.Operation != event.OpUpdateTransform || cur.Operation != event.OpUpdateTransform {
		return false
	}
	if prev.NodeID != cur.NodeID {
		return false
	}
	pb, err1 := canon.Canonical(prev.Transform)
	cb, err2 := canon.Canonical(cur.Transform)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(pb) == string(cb)
}

// eventsToJSON converts a list of events to the JSON value space for
// canonical hashing: a list of maps with deterministic key sets.
func eventsToJSON(events []*event.WorldEvent) []any {
	out := make([]any, len(events))
	for i, e := range events {
		out[i] = EventJSON(e)
	}
	return out
}

// EventJSON returns the canonical-JSON value-space projection of a
// single event, used both for trace hashing here and for segment byte
// serialization in core/tilestore — the single source of truth for
// "canonical JSON of an event" referenced throughout spec §4/§6.
func EventJSON(e *event.WorldEvent) canon.Mapping {
	inv := make([]any, len(e.PreservesInvariants))
	for i, v := range e.PreservesInvariants {
		inv[i] = string(v)
	}
	prev := make([]any, len(e.PreviousEvents))
	for i, v := range e.PreviousEvents {
		prev[i] = v
	}
	m := canon.Mapping{
		{Key: "event_id", Value: e.EventID},
		{Key: "timestamp", Value: e.Timestamp},
		{Key: "space_id", Value: e.SpaceID},
		{Key: "tile", Value: e.Tile},
		{Key: "layer_id", Value: string(e.LayerID)},
		{Key: "actor_id", Value: e.ActorID},
		{Key: "operation", Value: string(e.Operation)},
		{Key: "scope", Value: scopeToJSON(e.Scope)},
		{Key: "preserves_invariants", Value: inv},
	}
	if len(prev) > 0 {
		m = append(m, canon.KV{Key: "previous_events", Value: prev})
	}
	if e.NodeID != "" {
		m = append(m, canon.KV{Key: "node_id", Value: e.NodeID})
	}
	if e.Kind != "" {
		m = append(m, canon.KV{Key: "kind", Value: e.Kind})
	}
	if e.Transform != nil {
		m = append(m, canon.KV{Key: "transform", Value: e.Transform})
	}
	if e.Properties != nil {
		m = append(m, canon.KV{Key: "properties", Value: e.Properties})
	}
	if e.Link != nil {
		m = append(m, canon.KV{Key: "link", Value: canon.Mapping{
			{Key: "from", Value: e.Link.From},
			{Key: "to", Value: e.Link.To},
			{Key: "relation", Value: e.Link.Relation},
		}})
	}
	if len(e.SourceIDs) > 0 {
		srcs := make([]any, len(e.SourceIDs))
		for i, s := range e.SourceIDs {
			srcs[i] = s
		}
		m = append(m, canon.KV{Key: "source_ids", Value: srcs})
	}
	if e.TargetID != "" {
		m = append(m, canon.KV{Key: "target_id", Value: e.TargetID})
	}
	return m
}

func scopeToJSON(s event.Scope) canon.Mapping {
	return canon.Mapping{
		{Key: "realm", Value: string(s.Realm)},
		{Key: "authority", Value: string(s.Authority)},
		{Key: "boundary", Value: string(s.Boundary)},
		{Key: "policy", Value: string(s.Policy)},
	}
}

// TraceHash computes hash_json(prune(order(map(normalize, events)))).
// Two traces with equal trace hash are declared semantically
// equivalent.
func TraceHash(events []*event.WorldEvent) (string, error) {
	normalized := NormalizeAll(events)
	ordered := Order(normalized)
	pruned := Prune(ordered)
	return canon.HashJSON(eventsToJSON(pruned))
}
