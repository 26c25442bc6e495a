package materializer

import (
	"testing"

	"tilecanvas/core/event"
	"tilecanvas/core/nf"
)

func scope() event.Scope {
	return event.Scope{
		Realm:     event.RealmTeam,
		Authority: event.AuthoritySource,
		Boundary:  event.BoundaryInterior,
		Policy:    event.PolicyPublic,
	}
}

func ev(id string, ts int64, op event.Operation) *event.WorldEvent {
	return &event.WorldEvent{
		EventID:   id,
		Timestamp: ts,
		SpaceID:   "demo",
		Tile:      "z0/x0/y0",
		LayerID:   event.LayerLayout,
		ActorID:   "actor-1",
		Operation: op,
		Scope:     scope(),
	}
}

func TestFoldSingleCreate(t *testing.T) {
	e := ev("01..A", 1000, event.OpCreateNode)
	e.NodeID = "n1"
	state := Fold("z0/x0/y0", []*event.WorldEvent{e})
	if len(state.Nodes) != 1 || state.Nodes[0].NodeID != "n1" {
		t.Fatalf("expected single node n1, got %+v", state.Nodes)
	}
}

func TestTombstoneStickiness(t *testing.T) {
	create1 := ev("e1", 1000, event.OpCreateNode)
	create1.NodeID = "n1"
	del := ev("e2", 2000, event.OpDeleteNode)
	del.NodeID = "n1"
	create2 := ev("e3", 3000, event.OpCreateNode)
	create2.NodeID = "n1"

	state := Fold("z0/x0/y0", []*event.WorldEvent{create1, del, create2})
	if len(state.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(state.Nodes))
	}
	if !state.Nodes[0].Deleted {
		t.Fatal("expected n1 to remain tombstoned after a later create_node")
	}
}

func TestLinkUnlinkOrderIndependence(t *testing.T) {
	create := ev("e0", 500, event.OpCreateNode)
	create.NodeID = "a"
	link := ev("e1", 1000, event.OpLinkNodes)
	link.Link = &event.Link{From: "a", To: "b", Relation: "adjacent"}
	unlink := ev("e2", 2000, event.OpUnlinkNodes)
	unlink.Link = &event.Link{From: "a", To: "b", Relation: "adjacent"}

	forward := Fold("z0/x0/y0", []*event.WorldEvent{create, link, unlink})
	backward := Fold("z0/x0/y0", []*event.WorldEvent{create, unlink, link})

	fh, err := nf.StateHash(forward)
	if err != nil {
		t.Fatalf("hash forward: %v", err)
	}
	bh, err := nf.StateHash(backward)
	if err != nil {
		t.Fatalf("hash backward: %v", err)
	}
	if fh != bh {
		t.Fatalf("expected order-independent OR-Set result, got %s vs %s", fh, bh)
	}
	for _, n := range forward.Nodes {
		if n.NodeID == "a" && len(n.Links) != 0 {
			t.Fatalf("expected link removed regardless of application order, got %+v", n.Links)
		}
	}
}

func TestUnlinkDoesNotRemoveUnobservedAdd(t *testing.T) {
	create := ev("e0", 500, event.OpCreateNode)
	create.NodeID = "a"
	unlink := ev("e1", 1000, event.OpUnlinkNodes)
	unlink.Link = &event.Link{From: "a", To: "b", Relation: "adjacent"}
	// Link added with a timestamp AFTER the unlink: not observed, survives.
	link := ev("e2", 2000, event.OpLinkNodes)
	link.Link = &event.Link{From: "a", To: "b", Relation: "adjacent"}

	state := Fold("z0/x0/y0", []*event.WorldEvent{create, unlink, link})
	var got []nf.LinkEdge
	for _, n := range state.Nodes {
		if n.NodeID == "a" {
			got = n.Links
		}
	}
	if len(got) != 1 {
		t.Fatalf("expected the later link to survive an earlier unobserved unlink, got %+v", got)
	}
}

func TestSetPropertiesLWW(t *testing.T) {
	create := ev("e0", 500, event.OpCreateNode)
	create.NodeID = "n1"
	p1 := ev("e1", 1000, event.OpSetProperties)
	p1.NodeID = "n1"
	p1.Properties = map[string]any{"color": "red"}
	p2 := ev("e2", 900, event.OpSetProperties) // earlier timestamp, applied later in slice order
	p2.NodeID = "n1"
	p2.Properties = map[string]any{"color": "blue"}

	state := Fold("z0/x0/y0", []*event.WorldEvent{create, p2, p1})
	var color any
	for _, n := range state.Nodes {
		if n.NodeID == "n1" {
			color = n.Properties["color"]
		}
	}
	if color != "red" {
		t.Fatalf("expected LWW by timestamp to keep the later write, got %v", color)
	}
}

func TestSetPropertiesPreservesExplicitNull(t *testing.T) {
	create := ev("e0", 500, event.OpCreateNode)
	create.NodeID = "n1"
	p := ev("e1", 1000, event.OpSetProperties)
	p.NodeID = "n1"
	p.Properties = map[string]any{"note": nil}

	state := Fold("z0/x0/y0", []*event.WorldEvent{create, p})
	for _, n := range state.Nodes {
		if n.NodeID == "n1" {
			if _, present := n.Properties["note"]; !present {
				t.Fatal("expected explicit null property to remain present, not removed")
			}
		}
	}

	withNull, err := nf.StateHash(state)
	if err != nil {
		t.Fatalf("StateHash: %v", err)
	}
	withoutNote, err := nf.StateHash(Fold("z0/x0/y0", []*event.WorldEvent{create}))
	if err != nil {
		t.Fatalf("StateHash: %v", err)
	}
	if withNull == withoutNote {
		t.Fatal("expected a present-null property to change the hashed state image")
	}
}

func TestMergeUnionsLinksAndTombstonesSources(t *testing.T) {
	a := ev("e0", 500, event.OpCreateNode)
	a.NodeID = "a"
	b := ev("e1", 600, event.OpCreateNode)
	b.NodeID = "b"
	linkA := ev("e2", 700, event.OpLinkNodes)
	linkA.Link = &event.Link{From: "a", To: "x", Relation: "adjacent"}
	linkB := ev("e3", 800, event.OpLinkNodes)
	linkB.Link = &event.Link{From: "b", To: "y", Relation: "adjacent"}
	merge := ev("e4", 900, event.OpMerge)
	merge.SourceIDs = []string{"b"}
	merge.TargetID = "a"

	state := Fold("z0/x0/y0", []*event.WorldEvent{a, b, linkA, linkB, merge})

	var target, source *nf.NFNode
	for i := range state.Nodes {
		switch state.Nodes[i].NodeID {
		case "a":
			target = &state.Nodes[i]
		case "b":
			source = &state.Nodes[i]
		}
	}
	if target == nil || source == nil {
		t.Fatalf("expected both nodes to survive (source tombstoned), got %+v", state.Nodes)
	}
	if !source.Deleted {
		t.Fatal("expected merge source to be tombstoned")
	}
	if len(target.Links) != 2 {
		t.Fatalf("expected target to carry the union of both link sets, got %+v", target.Links)
	}
}

func TestFoldFromSnapshotComposesWithSegments(t *testing.T) {
	base := Fold("z0/x0/y0", []*event.WorldEvent{func() *event.WorldEvent {
		e := ev("e0", 500, event.OpCreateNode)
		e.NodeID = "n1"
		e.Properties = map[string]any{"color": "red"}
		return e
	}()})

	next := ev("e1", 1000, event.OpSetProperties)
	next.NodeID = "n1"
	next.Properties = map[string]any{"color": "blue"}

	full := Fold("z0/x0/y0", []*event.WorldEvent{
		func() *event.WorldEvent {
			e := ev("e0", 500, event.OpCreateNode)
			e.NodeID = "n1"
			e.Properties = map[string]any{"color": "red"}
			return e
		}(),
		next,
	})
	incremental := FoldFrom(base, []*event.WorldEvent{next})

	fh, err := nf.StateHash(full)
	if err != nil {
		t.Fatalf("hash full: %v", err)
	}
	ih, err := nf.StateHash(incremental)
	if err != nil {
		t.Fatalf("hash incremental: %v", err)
	}
	if fh != ih {
		t.Fatalf("expected snapshot+segment fold to equal full replay: %s vs %s", fh, ih)
	}
}
