// Package event defines the WorldEvent envelope, its scope and
// invariant vocabulary, and a pure, allocation-cheap validator (C2).
// Validation never inserts root invariants — that normalization step
// belongs to core/nf.
package event

import (
	"sort"

	"github.com/google/uuid"
)

// Invariant is a symbol from the closed root-invariant set.
type Invariant string

const (
	Adjacency            Invariant = "adjacency"
	Exclusion            Invariant = "exclusion"
	Consistency          Invariant = "consistency"
	BoundaryDiscipline   Invariant = "boundary_discipline"
	AuthorityNontransfer Invariant = "authority_nontransfer"
)

// RootInvariants is the closed set every stored event must declare
// preservation of, after normalization.
var RootInvariants = []Invariant{
	Adjacency, Exclusion, Consistency, BoundaryDiscipline, AuthorityNontransfer,
}

// Realm, Authority, Boundary, and Policy are the four Scope axes.
type (
	Realm     string
	Authority string
	Boundary  string
	Policy    string
)

const (
	RealmPersonal Realm = "personal"
	RealmTeam     Realm = "team"
	RealmPublic   Realm = "public"

	AuthoritySource  Authority = "source"
	AuthorityDerived Authority = "derived"

	BoundaryInterior Boundary = "interior"
	BoundaryBoundary Boundary = "boundary"
	BoundaryExterior Boundary = "exterior"

	PolicyPublic   Policy = "public"
	PolicyPrivate  Policy = "private"
	PolicyRedacted Policy = "redacted"
)

// Scope is advisory to the core; the validator only checks it is
// well-formed (each axis one of its closed enum values).
type Scope struct {
	Realm     Realm     `json:"realm"`
	Authority Authority `json:"authority"`
	Boundary  Boundary  `json:"boundary"`
	Policy    Policy    `json:"policy"`
}

// Layer is one of the four canvas layers an event targets.
type Layer string

const (
	LayerLayout       Layer = "layout"
	LayerPhysics      Layer = "physics"
	LayerPresentation Layer = "presentation"
	LayerMeta         Layer = "meta"
)

// Operation is the v0 set of operation kinds.
type Operation string

const (
	OpCreateNode      Operation = "create_node"
	OpUpdateTransform Operation = "update_transform"
	OpSetProperties   Operation = "set_properties"
	OpLinkNodes       Operation = "link_nodes"
	OpUnlinkNodes     Operation = "unlink_nodes"
	OpDeleteNode      Operation = "delete_node"
	OpMerge           Operation = "merge"
)

// Link describes a directed relation from one node to another.
type Link struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// WorldEvent is the append-only envelope for every canvas mutation.
type WorldEvent struct {
	EventID           string          `json:"event_id"`
	Timestamp         int64           `json:"timestamp"`
	SpaceID           string          `json:"space_id"`
	Tile              string          `json:"tile"`
	LayerID           Layer           `json:"layer_id"`
	ActorID           string          `json:"actor_id"`
	Operation         Operation       `json:"operation"`
	Scope             Scope           `json:"scope"`
	PreservesInvariants []Invariant   `json:"preserves_invariants"`
	PreviousEvents    []string        `json:"previous_events,omitempty"`

	// Operation-specific payload. Only the fields relevant to
	// Operation are populated/consulted; the validator enforces this.
	NodeID     string         `json:"node_id,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	Transform  map[string]any `json:"transform,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Link       *Link          `json:"link,omitempty"`
	SourceIDs  []string       `json:"source_ids,omitempty"` // merge
	TargetID   string         `json:"target_id,omitempty"`  // merge
}

// NewEventID mints an opaque, ULID-shaped-enough unique id: a
// fixed-width hex millisecond timestamp prefix (for lexical ordering
// that tracks temporal ordering) followed by a UUIDv4 suffix for
// uniqueness. The spec only requires "ULID-shaped", not a literal
// ULID implementation; see DESIGN.md.
func NewEventID(nowMS int64) string {
	const hexDigits = "0123456789abcdef"
	prefix := make([]byte, 12)
	v := uint64(nowMS)
	for i := 11; i >= 0; i-- {
		prefix[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(prefix) + "-" + uuid.NewString()
}

func invariantSet(vs []Invariant) map[Invariant]bool {
	m := make(map[Invariant]bool, len(vs))
	for _, v := range vs {
		m[v] = true
	}
	return m
}

// SortedInvariants returns vs deduplicated and sorted lexicographically.
func SortedInvariants(vs []Invariant) []Invariant {
	set := invariantSet(vs)
	out := make([]Invariant, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsSupersetOfRoot reports whether vs contains every root invariant.
func IsSupersetOfRoot(vs []Invariant) bool {
	set := invariantSet(vs)
	for _, r := range RootInvariants {
		if !set[r] {
			return false
		}
	}
	return true
}
