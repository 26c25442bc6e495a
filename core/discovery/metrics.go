package discovery

import "github.com/prometheus/client_golang/prometheus"

// metrics mirrors tilestore's per-instance prometheus.Registry
// pattern (itself grounded on the teacher's
// core/system_health_logging.go), scoped to one Graph.
type metrics struct {
	registry     *prometheus.Registry
	tipsIngested prometheus.Counter
	peersEvicted prometheus.Counter
	tilesEvicted prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		tipsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilecanvas_discovery_tips_ingested_total",
			Help: "Tip adverts merged into the discovery graph.",
		}),
		peersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilecanvas_discovery_peers_evicted_total",
			Help: "Peer records evicted by TTL or capacity.",
		}),
		tilesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilecanvas_discovery_tiles_evicted_total",
			Help: "Tile entries evicted by capacity.",
		}),
	}
	reg.MustRegister(m.tipsIngested, m.peersEvicted, m.tilesEvicted)
	return m
}

// Registry exposes the Graph's private prometheus registry for
// embedding in a larger /metrics handler.
func (g *Graph) Registry() *prometheus.Registry { return g.metrics.registry }
