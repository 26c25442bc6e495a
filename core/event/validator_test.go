package event

import "testing"

func baseEvent() *WorldEvent {
	return &WorldEvent{
		EventID:   "01HZZZ000000000000000A",
		Timestamp: 1000,
		SpaceID:   "demo",
		Tile:      "z0/x0/y0",
		LayerID:   LayerLayout,
		ActorID:   "actor-1",
		Operation: OpCreateNode,
		NodeID:    "n1",
		Scope: Scope{
			Realm:     RealmTeam,
			Authority: AuthoritySource,
			Boundary:  BoundaryInterior,
			Policy:    PolicyPublic,
		},
	}
}

func TestValidateOK(t *testing.T) {
	if err := Validate(baseEvent()); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	cases := map[string]func(*WorldEvent){
		"event_id":  func(e *WorldEvent) { e.EventID = "" },
		"space_id":  func(e *WorldEvent) { e.SpaceID = "" },
		"tile":      func(e *WorldEvent) { e.Tile = "" },
		"actor_id":  func(e *WorldEvent) { e.ActorID = "" },
		"timestamp": func(e *WorldEvent) { e.Timestamp = 0 },
		"layer":     func(e *WorldEvent) { e.LayerID = "bogus" },
		"operation": func(e *WorldEvent) { e.Operation = "bogus" },
		"scope":     func(e *WorldEvent) { e.Scope.Realm = "bogus" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := baseEvent()
			mutate(e)
			if err := Validate(e); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestValidatePayloadShape(t *testing.T) {
	e := baseEvent()
	e.Operation = OpUpdateTransform
	e.Transform = nil
	if err := Validate(e); err == nil {
		t.Fatal("expected error for missing transform")
	}
	e.Transform = map[string]any{"x": 1.0}
	if err := Validate(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateBatchSpaceTileMismatch(t *testing.T) {
	e := baseEvent()
	err := ValidateBatch("demo", "other-tile", []*WorldEvent{e})
	if err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestValidateLinkOperations(t *testing.T) {
	e := baseEvent()
	e.Operation = OpLinkNodes
	e.NodeID = ""
	e.Link = &Link{From: "n1", To: "n2"}
	if err := Validate(e); err == nil {
		t.Fatal("expected error for missing relation on link_nodes")
	}
	e.Link.Relation = "adjacent"
	if err := Validate(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.Operation = OpUnlinkNodes
	e.Link.Relation = ""
	if err := Validate(e); err != nil {
		t.Fatalf("unlink_nodes should not require relation: %v", err)
	}
}

func TestValidateMerge(t *testing.T) {
	e := baseEvent()
	e.Operation = OpMerge
	e.NodeID = ""
	if err := Validate(e); err == nil {
		t.Fatal("expected error for missing source_ids")
	}
	e.SourceIDs = []string{"a", "b"}
	if err := Validate(e); err == nil {
		t.Fatal("expected error for missing target_id")
	}
	e.TargetID = "c"
	if err := Validate(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
