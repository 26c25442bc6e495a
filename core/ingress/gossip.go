package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"

	"tilecanvas/core/canon"
	"tilecanvas/core/discovery"
)

// GossipTransport is one concrete, swappable binding for the tip
// advert transport the spec deliberately leaves unspecified: a
// GossipSub topic per space carries canonical-JSON TipAdvert frames,
// and mDNS handles LAN peer discovery. Adapted from the teacher's
// core/network.go.
type GossipTransport struct {
	host   host.Host
	pubsub *pubsub.PubSub
	nat    *natManager
	log    *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	ing *Ingress

	topicLock sync.Mutex
	topics    map[string]*pubsub.Topic
	subs      map[string]*pubsub.Subscription
}

// GossipConfig configures a GossipTransport.
type GossipConfig struct {
	ListenAddr     string
	DiscoveryTag   string
	BootstrapPeers []string
}

// NewGossipTransport starts a libp2p host with GossipSub and mDNS
// discovery, and binds it to ing: every inbound message on a joined
// space topic is decoded as a TipAdvert and handed to
// ing.HandleAdvert.
func NewGossipTransport(cfg GossipConfig, ing *Ingress, log *logrus.Logger) (*GossipTransport, error) {
	if log == nil {
		log = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ingress: create host: %w", err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("ingress: create pubsub: %w", err)
	}

	t := &GossipTransport{
		host:   h,
		pubsub: ps,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		ing:    ing,
		topics: make(map[string]*pubsub.Topic),
		subs:   make(map[string]*pubsub.Subscription),
	}

	if nat, err := newNATManager(); err == nil {
		if port, err := parsePort(cfg.ListenAddr); err == nil {
			if err := nat.Map(port); err != nil {
				log.Warnf("ingress: NAT map failed: %v", err)
			}
		}
		t.nat = nat
	} else {
		log.Debugf("ingress: NAT discovery unavailable: %v", err)
	}

	for _, addr := range cfg.BootstrapPeers {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			log.Warnf("ingress: invalid bootstrap addr %s: %v", addr, err)
			continue
		}
		if err := h.Connect(ctx, *pi); err != nil {
			log.Warnf("ingress: bootstrap dial %s failed: %v", addr, err)
		}
	}

	if err := mdns.NewMdnsService(h, cfg.DiscoveryTag, mdnsNotifee{host: h, log: log}).Start(); err != nil {
		log.Warnf("ingress: mdns start failed: %v", err)
	}

	return t, nil
}

// mdnsNotifee logs and connects to LAN peers found via mDNS. Actual
// tip adverts still flow over the GossipSub topics the discovering
// peer joins.
type mdnsNotifee struct {
	host host.Host
	log  *logrus.Logger
}

func (n mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(context.Background(), info); err != nil {
		n.log.Debugf("ingress: mdns connect to %s failed: %v", info.ID, err)
		return
	}
	n.log.WithField("peer", info.ID.String()).Debug("ingress: connected via mdns")
}

// JoinSpace subscribes to the GossipSub topic for a space and starts
// decoding inbound frames as TipAdverts.
func (t *GossipTransport) JoinSpace(space string) error {
	topic := spaceTopic(space)
	t.topicLock.Lock()
	defer t.topicLock.Unlock()
	if _, ok := t.subs[topic]; ok {
		return nil
	}
	tp, err := t.pubsub.Join(topic)
	if err != nil {
		return fmt.Errorf("ingress: join topic %s: %w", topic, err)
	}
	sub, err := tp.Subscribe()
	if err != nil {
		return fmt.Errorf("ingress: subscribe topic %s: %w", topic, err)
	}
	t.topics[topic] = tp
	t.subs[topic] = sub

	go func() {
		for {
			msg, err := sub.Next(t.ctx)
			if err != nil {
				return // context cancelled or subscription closed
			}
			if msg.GetFrom() == t.host.ID() {
				continue // GossipSub already suppresses self-delivery; defense in depth
			}
			var a discovery.TipAdvert
			if err := json.Unmarshal(msg.Data, &a); err != nil {
				t.log.Warnf("ingress: malformed advert frame on %s: %v", topic, err)
				continue
			}
			if err := t.ing.HandleAdvert(a); err != nil {
				t.log.Debugf("ingress: rejected advert from %s: %v", a.PeerID, err)
			}
		}
	}()
	return nil
}

// PublishAdvert canonically serializes and publishes a local
// TipAdvert onto its space's topic.
func (t *GossipTransport) PublishAdvert(a discovery.TipAdvert) error {
	topic := spaceTopic(a.SpaceID)
	t.topicLock.Lock()
	tp, ok := t.topics[topic]
	t.topicLock.Unlock()
	if !ok {
		if err := t.JoinSpace(a.SpaceID); err != nil {
			return err
		}
		t.topicLock.Lock()
		tp = t.topics[topic]
		t.topicLock.Unlock()
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("ingress: encode advert: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("ingress: encode advert: %w", err)
	}
	b, err := canon.Canonical(v)
	if err != nil {
		return fmt.Errorf("ingress: encode advert: %w", err)
	}
	return tp.Publish(t.ctx, b)
}

// Close tears down the transport: NAT unmap, context cancel, host
// close. Idempotent with respect to subsequent Close calls failing
// safely on an already-closed host.
func (t *GossipTransport) Close() error {
	t.cancel()
	if t.nat != nil {
		_ = t.nat.Unmap()
	}
	return t.host.Close()
}

func spaceTopic(space string) string {
	return "tilecanvas/tips/" + space
}
