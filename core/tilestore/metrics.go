package tilestore

import "github.com/prometheus/client_golang/prometheus"

// metrics mirrors the teacher's per-instance prometheus.Registry
// pattern in core/system_health_logging.go, scoped to a single Store.
type metrics struct {
	registry       *prometheus.Registry
	segmentsFlushed prometheus.Counter
	bytesFlushed    prometheus.Counter
	segmentsOrphaned prometheus.Counter
	segmentsArchived prometheus.Counter
	openTiles       prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		segmentsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilecanvas_tilestore_segments_flushed_total",
			Help: "Number of segments successfully flushed to the object store.",
		}),
		bytesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilecanvas_tilestore_bytes_flushed_total",
			Help: "Canonical bytes flushed across all segments.",
		}),
		segmentsOrphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilecanvas_tilestore_segments_orphaned_total",
			Help: "Segments written to the object store whose tip-index update did not complete.",
		}),
		segmentsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilecanvas_tilestore_segments_archived_total",
			Help: "Segments gzip-archived to cold storage by ArchiveOldSegments.",
		}),
		openTiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tilecanvas_tilestore_open_tiles",
			Help: "Number of tiles whose state this Store has loaded into memory.",
		}),
	}
	reg.MustRegister(m.segmentsFlushed, m.bytesFlushed, m.segmentsOrphaned, m.segmentsArchived, m.openTiles)
	return m
}

// Registry exposes the Store's private prometheus registry for
// embedding in a larger /metrics handler (built by an external
// collaborator; the core never starts its own HTTP listener).
func (s *Store) Registry() *prometheus.Registry { return s.metrics.registry }
