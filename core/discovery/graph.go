package discovery

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// Config configures a Graph. Zero values fall back to the spec
// defaults (§6).
type Config struct {
	PersistPath     string
	PeerTtlMs       int64
	TileTtlMs       int64
	MaxPeers        int
	MaxTiles        int
	MaxPeersPerTile int
}

const (
	DefaultPeerTtlMs       = 120_000
	DefaultTileTtlMs       = 300_000
	DefaultMaxPeers        = 512
	DefaultMaxTiles        = 4096
	DefaultMaxPeersPerTile = 32

	// PruneInterval and PersistInterval are the spec-mandated
	// background cadences (§4.7): prune runs roughly every 2s, and the
	// persistence heartbeat roughly every 3s when PersistPath is set.
	PruneInterval   = 2 * time.Second
	PersistInterval = 3 * time.Second
)

// pruneInterval and persistInterval back runLoop's tickers as package
// variables rather than the constants directly, so tests can shrink
// them for determinism without changing the documented defaults.
var (
	pruneInterval   = PruneInterval
	persistInterval = PersistInterval
)

func (c Config) withDefaults() Config {
	if c.PeerTtlMs <= 0 {
		c.PeerTtlMs = DefaultPeerTtlMs
	}
	if c.TileTtlMs <= 0 {
		c.TileTtlMs = DefaultTileTtlMs
	}
	if c.MaxPeers <= 0 {
		c.MaxPeers = DefaultMaxPeers
	}
	if c.MaxTiles <= 0 {
		c.MaxTiles = DefaultMaxTiles
	}
	if c.MaxPeersPerTile <= 0 {
		c.MaxPeersPerTile = DefaultMaxPeersPerTile
	}
	return c
}

type tileKey struct{ space, tile string }

// Graph is the single logical owner of the peer and tile-tip maps. All
// mutation and queries are serialized under mu so a reader never
// observes the graph mid-prune, per spec §5.
type Graph struct {
	cfg Config
	log *logrus.Logger
	now func() int64

	mu    sync.Mutex
	peers *lru.LRU[string, *PeerRecord]
	tiles map[tileKey]map[string]TipRecord

	metrics *metrics

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New constructs a Graph. nowFn defaults to the wall clock; tests may
// override it for deterministic TTL behavior.
func New(cfg Config, log *logrus.Logger, nowFn func() int64) *Graph {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logrus.New()
	}
	if nowFn == nil {
		nowFn = func() int64 { return time.Now().UnixMilli() }
	}
	g := &Graph{
		cfg:     cfg,
		log:     log,
		now:     nowFn,
		tiles:   make(map[tileKey]map[string]TipRecord),
		metrics: newMetrics(),
		closing: make(chan struct{}),
	}
	g.peers = lru.NewLRU[string, *PeerRecord](cfg.MaxPeers, g.onPeerEvicted, time.Duration(cfg.PeerTtlMs)*time.Millisecond)
	g.wg.Add(1)
	go g.runLoop()
	return g
}

// runLoop drives the periodic prune (~2s) and, when PersistPath is
// configured, the persistence heartbeat (~3s) required by spec §4.7.
func (g *Graph) runLoop() {
	defer g.wg.Done()
	pruneT := time.NewTicker(pruneInterval)
	defer pruneT.Stop()

	var persistC <-chan time.Time
	if g.cfg.PersistPath != "" {
		persistT := time.NewTicker(persistInterval)
		defer persistT.Stop()
		persistC = persistT.C
	}

	for {
		select {
		case <-pruneT.C:
			g.Prune()
		case <-persistC:
			if err := g.Save(); err != nil {
				g.log.WithError(err).Warn("discovery: periodic save failed")
			}
		case <-g.closing:
			return
		}
	}
}

// Stop halts the background prune/persist loop. Idempotent; safe to
// call more than once or never.
func (g *Graph) Stop() {
	g.closeOnce.Do(func() {
		close(g.closing)
	})
	g.wg.Wait()
}

func (g *Graph) onPeerEvicted(peerID string, _ *PeerRecord) {
	g.metrics.peersEvicted.Inc()
	g.log.WithField("peer_id", peerID).Debug("discovery: peer evicted")
}

// IngestTip merges an advert into the graph per the §4.7 rules.
// Callers are expected to have already passed it through C8's
// validation and self-advert filtering.
func (g *Graph) IngestTip(a TipAdvert) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	peer, ok := g.peers.Get(a.PeerID)
	if !ok {
		peer = &PeerRecord{PeerID: a.PeerID}
	}
	peer.LastSeenMs = now
	if a.GeoHint != nil {
		peer.GeoHint = a.GeoHint
	}
	if a.RSSIHint != nil {
		peer.RSSIHint = a.RSSIHint
	}
	g.peers.Add(a.PeerID, peer)

	key := tileKey{a.SpaceID, a.TileID}
	perPeer, ok := g.tiles[key]
	if !ok {
		perPeer = make(map[string]TipRecord)
		g.tiles[key] = perPeer
	}

	c := confidence(a)
	prior, hadPrior := perPeer[a.PeerID]
	newer := !hadPrior || a.TS > prior.SenderTS || (a.TS == prior.SenderTS && a.TipEvent > prior.TipEvent)

	if newer {
		perPeer[a.PeerID] = TipRecord{
			PeerID:     a.PeerID,
			TipEvent:   a.TipEvent,
			TipSegment: a.TipSegment,
			SenderTS:   a.TS,
			Confidence: c,
			LastSeenMs: now,
		}
	} else {
		prior.LastSeenMs = now
		if c > prior.Confidence {
			prior.Confidence = c
		}
		perPeer[a.PeerID] = prior
	}

	g.enforcePerTileCapLocked(key)
	g.enforceTileCapLocked()
	g.metrics.tipsIngested.Inc()
}

// enforcePerTileCapLocked keeps only the top MaxPeersPerTile records by
// score for one tile. Caller holds mu.
func (g *Graph) enforcePerTileCapLocked(key tileKey) {
	perPeer := g.tiles[key]
	if len(perPeer) <= g.cfg.MaxPeersPerTile {
		return
	}
	now := g.now()
	records := make([]TipRecord, 0, len(perPeer))
	for _, r := range perPeer {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return score(records[i], now) > score(records[j], now) })
	kept := records[:g.cfg.MaxPeersPerTile]
	next := make(map[string]TipRecord, len(kept))
	for _, r := range kept {
		next[r.PeerID] = r
	}
	g.tiles[key] = next
}

// enforceTileCapLocked evicts the oldest 10% of tiles (by the
// last_seen_ms of their best record) once MaxTiles is exceeded. Caller
// holds mu.
func (g *Graph) enforceTileCapLocked() {
	if len(g.tiles) <= g.cfg.MaxTiles {
		return
	}
	type scored struct {
		key        tileKey
		lastSeenMs int64
	}
	entries := make([]scored, 0, len(g.tiles))
	for k, perPeer := range g.tiles {
		var best int64
		for _, r := range perPeer {
			if r.LastSeenMs > best {
				best = r.LastSeenMs
			}
		}
		entries = append(entries, scored{key: k, lastSeenMs: best})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].lastSeenMs < entries[j].lastSeenMs })
	evict := len(entries) / 10
	if evict == 0 {
		evict = 1
	}
	for i := 0; i < evict && i < len(entries); i++ {
		delete(g.tiles, entries[i].key)
		g.metrics.tilesEvicted.Inc()
	}
}

// WhoHas lists tip records for (space, tile), sorted by score
// descending.
func (g *Graph) WhoHas(space, tile string) []TipRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	perPeer := g.tiles[tileKey{space, tile}]
	out := make([]TipRecord, 0, len(perPeer))
	for _, r := range perPeer {
		out = append(out, r)
	}
	now := g.now()
	sort.Slice(out, func(i, j int) bool { return score(out[i], now) > score(out[j], now) })
	return out
}

// BestTip returns the head of WhoHas, or false if the tile is unknown.
func (g *Graph) BestTip(space, tile string) (TipRecord, bool) {
	all := g.WhoHas(space, tile)
	if len(all) == 0 {
		return TipRecord{}, false
	}
	return all[0], true
}

// TilesByPeer lists every (space, tile) the given peer has a record
// for.
func (g *Graph) TilesByPeer(peerID string) []TipRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []TipRecord
	for _, perPeer := range g.tiles {
		if r, ok := perPeer[peerID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Peer looks up a peer record directly.
func (g *Graph) Peer(peerID string) (PeerRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.peers.Get(peerID)
	if !ok {
		return PeerRecord{}, false
	}
	return *p, true
}

// Prune drops tip records older than TileTtlMs or whose peer no
// longer exists, then drops empty per-tile maps. Peer TTL expiry is
// handled by the underlying expirable LRU.
func (g *Graph) Prune() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for key, perPeer := range g.tiles {
		for peerID, r := range perPeer {
			if now-r.LastSeenMs > g.cfg.TileTtlMs {
				delete(perPeer, peerID)
				continue
			}
			if _, ok := g.peers.Get(peerID); !ok {
				delete(perPeer, peerID)
			}
		}
		if len(perPeer) == 0 {
			delete(g.tiles, key)
		}
	}
}
