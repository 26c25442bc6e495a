package event

import (
	"tilecanvas/pkg/errs"
)

// Validate checks the envelope invariants of spec §3 and the
// operation-specific payload shape. It is pure and allocation-cheap
// and does not mutate e. It does NOT insert root invariants.
func Validate(e *WorldEvent) error {
	if e.EventID == "" {
		return errs.NewInvalidEvent("event_id", "must be non-empty")
	}
	if e.SpaceID == "" {
		return errs.NewInvalidEvent("space_id", "must be non-empty")
	}
	if e.Tile == "" {
		return errs.NewInvalidEvent("tile", "must be non-empty")
	}
	if e.ActorID == "" {
		return errs.NewInvalidEvent("actor_id", "must be non-empty")
	}
	if e.Timestamp <= 0 {
		return errs.NewInvalidEvent("timestamp", "must be a positive integer millisecond value")
	}
	if !validLayer(e.LayerID) {
		return errs.NewInvalidEvent("layer_id", "unknown layer")
	}
	if !validOperation(e.Operation) {
		return errs.NewInvalidEvent("operation", "unknown operation")
	}
	if err := validateScope(e.Scope); err != nil {
		return err
	}
	if err := validatePayload(e); err != nil {
		return err
	}
	return nil
}

// ValidateBatch validates every event and enforces that each targets
// the given (space, tile). Rejects the whole batch on any failure,
// tagging the failing index.
func ValidateBatch(space, tile string, events []*WorldEvent) error {
	for i, e := range events {
		if err := Validate(e); err != nil {
			return errs.NewInvalidEventAt(i, err.Error())
		}
		if e.SpaceID != space || e.Tile != tile {
			return errs.NewInvalidEventAt(i, "event space/tile does not match target tile")
		}
	}
	return nil
}

func validLayer(l Layer) bool {
	switch l {
	case LayerLayout, LayerPhysics, LayerPresentation, LayerMeta:
		return true
	}
	return false
}

func validOperation(op Operation) bool {
	switch op {
	case OpCreateNode, OpUpdateTransform, OpSetProperties, OpLinkNodes, OpUnlinkNodes, OpDeleteNode, OpMerge:
		return true
	}
	return false
}

func validateScope(s Scope) error {
	switch s.Realm {
	case RealmPersonal, RealmTeam, RealmPublic:
	default:
		return errs.NewInvalidEvent("scope.realm", "must be one of personal/team/public")
	}
	switch s.Authority {
	case AuthoritySource, AuthorityDerived:
	default:
		return errs.NewInvalidEvent("scope.authority", "must be one of source/derived")
	}
	switch s.Boundary {
	case BoundaryInterior, BoundaryBoundary, BoundaryExterior:
	default:
		return errs.NewInvalidEvent("scope.boundary", "must be one of interior/boundary/exterior")
	}
	switch s.Policy {
	case PolicyPublic, PolicyPrivate, PolicyRedacted:
	default:
		return errs.NewInvalidEvent("scope.policy", "must be one of public/private/redacted")
	}
	return nil
}

func validatePayload(e *WorldEvent) error {
	switch e.Operation {
	case OpCreateNode:
		if e.NodeID == "" {
			return errs.NewInvalidEvent("node_id", "required for create_node")
		}
	case OpUpdateTransform:
		if e.NodeID == "" {
			return errs.NewInvalidEvent("node_id", "required for update_transform")
		}
		if e.Transform == nil {
			return errs.NewInvalidEvent("transform", "required for update_transform")
		}
	case OpSetProperties:
		if e.NodeID == "" {
			return errs.NewInvalidEvent("node_id", "required for set_properties")
		}
		if e.Properties == nil {
			return errs.NewInvalidEvent("properties", "required for set_properties")
		}
	case OpLinkNodes, OpUnlinkNodes:
		if e.Link == nil {
			return errs.NewInvalidEvent("link", "required for link_nodes/unlink_nodes")
		}
		if e.Link.From == "" || e.Link.To == "" {
			return errs.NewInvalidEvent("link", "from/to must be non-empty")
		}
		if e.Operation == OpLinkNodes && e.Link.Relation == "" {
			return errs.NewInvalidEvent("link.relation", "required for link_nodes")
		}
	case OpDeleteNode:
		if e.NodeID == "" {
			return errs.NewInvalidEvent("node_id", "required for delete_node")
		}
	case OpMerge:
		if len(e.SourceIDs) == 0 {
			return errs.NewInvalidEvent("source_ids", "required for merge")
		}
		if e.TargetID == "" {
			return errs.NewInvalidEvent("target_id", "required for merge")
		}
	}
	return nil
}
