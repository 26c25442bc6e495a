package nf

import (
	"sort"

	"tilecanvas/core/canon"
)

// LinkEdge is an OR-Set link entry on a node: a relation to another
// node, tagged by the event_id of the link_nodes event that added it
// (the OR-Set add-tag), so that unlink can remove only observed adds.
type LinkEdge struct {
	Relation string `json:"relation"`
	To       string `json:"to"`
	AddTag   string `json:"add_tag"`
	AddedTS  int64  `json:"added_ts"`
}

// NFNode is a single materialized node within a tile's shadow canvas.
type NFNode struct {
	NodeID     string         `json:"node_id"`
	Kind       string         `json:"kind,omitempty"`
	Transform  map[string]any `json:"transform,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Links      []LinkEdge     `json:"links,omitempty"`
	Deleted    bool           `json:"deleted,omitempty"`
}

// NFTileState is the materialized view of a tile: spec §3/§4.3.
type NFTileState struct {
	TileID string   `json:"tile_id"`
	Nodes  []NFNode `json:"nodes"`
}

// NormalizeState sorts nodes by node_id, sorts and dedups each node's
// links by (relation, to), and ensures Deleted is either true or the
// Go zero value absent from JSON (never explicit false).
func NormalizeState(s NFTileState) NFTileState {
	nodes := make([]NFNode, len(s.Nodes))
	copy(nodes, s.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	for i := range nodes {
		nodes[i].Links = normalizeLinks(nodes[i].Links)
	}
	return NFTileState{TileID: s.TileID, Nodes: nodes}
}

func normalizeLinks(links []LinkEdge) []LinkEdge {
	sorted := make([]LinkEdge, len(links))
	copy(sorted, links)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Relation != sorted[j].Relation {
			return sorted[i].Relation < sorted[j].Relation
		}
		return sorted[i].To < sorted[j].To
	})
	out := sorted[:0:0]
	for i, l := range sorted {
		if i > 0 && l.Relation == sorted[i-1].Relation && l.To == sorted[i-1].To {
			continue
		}
		out = append(out, l)
	}
	return out
}

func stateToJSON(s NFTileState) canon.Mapping {
	nodes := make([]any, len(s.Nodes))
	for i, n := range s.Nodes {
		nodes[i] = nodeToJSON(n)
	}
	return canon.Mapping{
		{Key: "tile_id", Value: s.TileID},
		{Key: "nodes", Value: nodes},
	}
}

func nodeToJSON(n NFNode) canon.Mapping {
	m := canon.Mapping{{Key: "node_id", Value: n.NodeID}}
	if n.Kind != "" {
		m = append(m, canon.KV{Key: "kind", Value: n.Kind})
	}
	if n.Transform != nil {
		m = append(m, canon.KV{Key: "transform", Value: n.Transform})
	}
	if n.Properties != nil {
		m = append(m, canon.KV{Key: "properties", Value: n.Properties})
	}
	if len(n.Links) > 0 {
		links := make([]any, len(n.Links))
		for i, l := range n.Links {
			links[i] = canon.Mapping{
				{Key: "relation", Value: l.Relation},
				{Key: "to", Value: l.To},
			}
		}
		m = append(m, canon.KV{Key: "links", Value: links})
	}
	if n.Deleted {
		m = append(m, canon.KV{Key: "deleted", Value: true})
	}
	return m
}

// StateHash returns hash_json(normalize_state(s)). Depends only on
// the multiset of normalized events that produced s, not their
// segment partitioning, because AddTag/AddedTS (ordering metadata)
// are deliberately excluded from the hashed projection.
func StateHash(s NFTileState) (string, error) {
	return canon.HashJSON(stateToJSON(NormalizeState(s)))
}
