package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"

	"tilecanvas/core/canon"
	"tilecanvas/pkg/errs"
)

const schemaVersion = 1

type diskTipRecord struct {
	TipRecord
	Space string `json:"space"`
	Tile  string `json:"tile"`
}

type diskSnapshot struct {
	V       int             `json:"v"`
	SavedAt int64           `json:"saved_at"`
	Peers   []PeerRecord    `json:"peers"`
	Tiles   []diskTipRecord `json:"tiles"`
}

// snapshotJSON projects a diskSnapshot into the canon value space so
// the on-disk file is canonical JSON, per spec §4.7.
func snapshotJSON(snap diskSnapshot) canon.Mapping {
	peers := make([]any, len(snap.Peers))
	for i, p := range snap.Peers {
		peers[i] = peerRecordJSON(p)
	}
	tiles := make([]any, len(snap.Tiles))
	for i, t := range snap.Tiles {
		tiles[i] = tipRecordJSON(t)
	}
	return canon.Mapping{
		{Key: "v", Value: snap.V},
		{Key: "saved_at", Value: snap.SavedAt},
		{Key: "peers", Value: peers},
		{Key: "tiles", Value: tiles},
	}
}

func peerRecordJSON(p PeerRecord) canon.Mapping {
	m := canon.Mapping{
		{Key: "peer_id", Value: p.PeerID},
		{Key: "last_seen_ms", Value: p.LastSeenMs},
	}
	if len(p.Endpoints) > 0 {
		eps := make([]any, len(p.Endpoints))
		for i, e := range p.Endpoints {
			eps[i] = e
		}
		m = append(m, canon.KV{Key: "endpoints", Value: eps})
	}
	if p.GeoHint != nil {
		m = append(m, canon.KV{Key: "geo_hint", Value: canon.Mapping{
			{Key: "lat", Value: p.GeoHint.Lat},
			{Key: "lon", Value: p.GeoHint.Lon},
			{Key: "radius_m", Value: p.GeoHint.RadiusM},
		}})
	}
	if p.RSSIHint != nil {
		rh := canon.Mapping{{Key: "medium", Value: string(p.RSSIHint.Medium)}}
		if p.RSSIHint.RSSI != nil {
			rh = append(rh, canon.KV{Key: "rssi", Value: *p.RSSIHint.RSSI})
		}
		if p.RSSIHint.SNR != nil {
			rh = append(rh, canon.KV{Key: "snr", Value: *p.RSSIHint.SNR})
		}
		m = append(m, canon.KV{Key: "rssi_hint", Value: rh})
	}
	return m
}

func tipRecordJSON(t diskTipRecord) canon.Mapping {
	return canon.Mapping{
		{Key: "peer_id", Value: t.PeerID},
		{Key: "tip_event", Value: t.TipEvent},
		{Key: "tip_segment", Value: t.TipSegment},
		{Key: "sender_ts", Value: t.SenderTS},
		{Key: "confidence", Value: t.Confidence},
		{Key: "last_seen_ms", Value: t.LastSeenMs},
		{Key: "space", Value: t.Space},
		{Key: "tile", Value: t.Tile},
	}
}

// Save writes the graph's current state to cfg.PersistPath via
// temp-file + atomic rename. A no-op if PersistPath is unset.
func (g *Graph) Save() error {
	if g.cfg.PersistPath == "" {
		return nil
	}
	g.mu.Lock()
	snap := diskSnapshot{V: schemaVersion, SavedAt: g.now()}
	for _, k := range g.peers.Keys() {
		if p, ok := g.peers.Peek(k); ok {
			snap.Peers = append(snap.Peers, *p)
		}
	}
	for key, perPeer := range g.tiles {
		for _, r := range perPeer {
			snap.Tiles = append(snap.Tiles, diskTipRecord{TipRecord: r, Space: key.space, Tile: key.tile})
		}
	}
	g.mu.Unlock()

	b, err := canon.Canonical(snapshotJSON(snap))
	if err != nil {
		return errs.Wrap(err, "discovery: encode snapshot")
	}

	dir := filepath.Dir(g.cfg.PersistPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.NewIOFailure(err)
		}
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errs.NewIOFailure(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.NewIOFailure(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.NewIOFailure(err)
	}
	if err := os.Rename(tmpName, g.cfg.PersistPath); err != nil {
		os.Remove(tmpName)
		return errs.NewIOFailure(err)
	}
	return nil
}

// Load reads back a previously saved snapshot, silently doing nothing
// if the file is absent or its version doesn't match (a fresh start).
func (g *Graph) Load() error {
	if g.cfg.PersistPath == "" {
		return nil
	}
	b, err := os.ReadFile(g.cfg.PersistPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.NewIOFailure(err)
	}
	var snap diskSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return errs.Wrap(err, "discovery: decode snapshot")
	}
	if snap.V != schemaVersion {
		g.log.WithField("version", snap.V).Debug("discovery: ignoring snapshot with unknown version")
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range snap.Peers {
		p := p
		g.peers.Add(p.PeerID, &p)
	}
	for _, r := range snap.Tiles {
		key := tileKey{r.Space, r.Tile}
		perPeer, ok := g.tiles[key]
		if !ok {
			perPeer = make(map[string]TipRecord)
			g.tiles[key] = perPeer
		}
		perPeer[r.PeerID] = r.TipRecord
	}
	return nil
}
