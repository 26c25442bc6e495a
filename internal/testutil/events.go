// Package testutil provides WorldEvent fixture builders for tests,
// adapted from the teacher's internal/testutil sandbox helpers. The
// package-level test files in core/ currently build their own
// fixtures and do not import it.
package testutil

import (
	"fmt"

	"tilecanvas/core/event"
)

// DefaultScope returns a well-formed, permissive Scope for tests that
// don't care about realm/authority/boundary/policy semantics.
func DefaultScope() event.Scope {
	return event.Scope{
		Realm:     event.RealmTeam,
		Authority: event.AuthoritySource,
		Boundary:  event.BoundaryInterior,
		Policy:    event.PolicyPublic,
	}
}

// NewEvent builds a WorldEvent with the root invariants already
// attached (SortedInvariants over event.RootInvariants), ready to pass
// validation and normalization. Callers set Operation-specific fields
// on the returned pointer.
func NewEvent(id string, ts int64, space, tile, actor string, op event.Operation) *event.WorldEvent {
	return &event.WorldEvent{
		EventID:             id,
		Timestamp:           ts,
		SpaceID:             space,
		Tile:                tile,
		LayerID:             event.LayerLayout,
		ActorID:             actor,
		Operation:           op,
		Scope:               DefaultScope(),
		PreservesInvariants: event.SortedInvariants(event.RootInvariants),
	}
}

// SeqEventID returns a deterministic, lexically ordered id for test
// fixtures that need a stable ordering without depending on
// event.NewEventID's UUID suffix.
func SeqEventID(seq int) string {
	return fmt.Sprintf("ev-%08d", seq)
}

// CreateNode builds a minimal create_node event for node with the
// given kind.
func CreateNode(id string, ts int64, space, tile, actor, nodeID, kind string) *event.WorldEvent {
	e := NewEvent(id, ts, space, tile, actor, event.OpCreateNode)
	e.NodeID = nodeID
	e.Kind = kind
	return e
}

// DeleteNode builds a minimal delete_node event.
func DeleteNode(id string, ts int64, space, tile, actor, nodeID string) *event.WorldEvent {
	e := NewEvent(id, ts, space, tile, actor, event.OpDeleteNode)
	e.NodeID = nodeID
	return e
}

// LinkNodes builds a minimal link_nodes event.
func LinkNodes(id string, ts int64, space, tile, actor, from, to, relation string) *event.WorldEvent {
	e := NewEvent(id, ts, space, tile, actor, event.OpLinkNodes)
	e.NodeID = from
	e.Link = &event.Link{From: from, To: to, Relation: relation}
	return e
}
