// Package ingress implements the Tip-Advert ingress (C8): schema
// validation and self-advert filtering for inbound TipAdvert messages
// before they reach the discovery graph. Ingress itself never touches
// a network transport — that is pluggable (GossipTransport in gossip.go
// is one binding). See spec §4.8.
package ingress

import (
	"tilecanvas/core/discovery"
	"tilecanvas/pkg/errs"
)

// Sink is the subset of discovery.Graph ingress depends on, kept
// narrow so callers can inject a test double.
type Sink interface {
	IngestTip(a discovery.TipAdvert)
}

// Ingress validates and forwards adverts from any transport to a Sink.
// LocalPeerID adverts (the node's own tip, echoed back by gossip) are
// dropped silently rather than ingested as a peer claim about itself.
type Ingress struct {
	LocalPeerID string
	Sink        Sink
}

// New constructs an Ingress bound to sink, dropping self-adverts for
// localPeerID.
func New(localPeerID string, sink Sink) *Ingress {
	return &Ingress{LocalPeerID: localPeerID, Sink: sink}
}

// HandleAdvert validates a, drops it if self-originated, and otherwise
// forwards it to the sink. Returns the validation error, if any;
// self-drops are not errors.
func (i *Ingress) HandleAdvert(a discovery.TipAdvert) error {
	if err := Validate(a); err != nil {
		return err
	}
	if a.PeerID == i.LocalPeerID {
		return nil
	}
	i.Sink.IngestTip(a)
	return nil
}

// Validate checks a TipAdvert against the §3 wire schema.
func Validate(a discovery.TipAdvert) error {
	if a.PeerID == "" {
		return errs.NewInvalidEvent("peer_id", "required on TipAdvert")
	}
	if a.SpaceID == "" {
		return errs.NewInvalidEvent("space_id", "required on TipAdvert")
	}
	if a.TileID == "" {
		return errs.NewInvalidEvent("tile_id", "required on TipAdvert")
	}
	if a.TipEvent == "" {
		return errs.NewInvalidEvent("tip_event", "required on TipAdvert")
	}
	if a.TS <= 0 {
		return errs.NewInvalidEvent("ts", "must be a positive integer millisecond value")
	}
	if a.RSSIHint != nil {
		switch a.RSSIHint.Medium {
		case "", discovery.MediumBLE, discovery.MediumWifi, discovery.MediumLoRa:
		default:
			return errs.NewInvalidEvent("rssi_hint.medium", "unknown medium")
		}
	}
	return nil
}
