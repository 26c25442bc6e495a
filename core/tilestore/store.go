// Package tilestore implements the Tile Store (C5): per-(space,tile)
// append-only segment log, manifest, tip index, and advisory
// snapshots, backed by the content-addressed object store. See spec
// §4.5.
package tilestore

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tilecanvas/core/event"
	"tilecanvas/core/objectstore"
)

// Store owns one tileState per (space, tile) and a shared content
// store. A single writer per tile is enforced by tileState.mu; reads
// may run concurrently with writers.
type Store struct {
	cfg     Config
	obj     *objectstore.Store
	log     *logrus.Logger
	metrics *metrics

	mu     sync.Mutex
	tiles  map[tileKey]*tileState
	closed bool

	// preFlushIndexWrite, when set, runs after the segment object and
	// manifest are durably written but before the tip index rename.
	// Test-only seam for exercising the "orphaned segment" crash path
	// described in spec §8 scenario 6.
	preFlushIndexWrite func()
}

type tileKey struct{ space, tile string }

// New opens (or creates) a Store rooted at cfg.RootDir.
func New(cfg Config, log *logrus.Logger) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.RootDir == "" {
		return nil, errors.New("tilestore: RootDir is required")
	}
	if log == nil {
		log = logrus.New()
	}
	obj, err := objectstore.New(cfg.RootDir, log)
	if err != nil {
		return nil, err
	}
	return &Store{
		cfg:     cfg,
		obj:     obj,
		log:     log,
		metrics: newMetrics(),
		tiles:   make(map[tileKey]*tileState),
	}, nil
}

type tileState struct {
	space, tile string

	mu         sync.Mutex
	buffer     []bufferedEvent
	bufferSize int
	firstAt    time.Time
	timer      *time.Timer

	manifest []SegmentDescriptor
	tip      TipIndex
}

type bufferedEvent struct {
	ev   *event.WorldEvent
	size int
}

func (s *Store) getOrLoadTile(space, tile string) (*tileState, error) {
	key := tileKey{space, tile}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok := s.tiles[key]; ok {
		return ts, nil
	}
	manifest, err := loadManifest(s.cfg.RootDir, space, tile)
	if err != nil {
		return nil, err
	}
	idx, found, err := loadIndex(s.cfg.RootDir, space, tile)
	if err != nil {
		return nil, err
	}
	if !found {
		idx = TipIndex{Tip: Genesis}
	}
	// Drop manifest entries past the tip: a flush that wrote the
	// manifest but not the tip index leaves an orphaned tail entry,
	// which must not become the prev of the next segment.
	cut := 0
	for i, d := range manifest {
		if d.SegmentHash == idx.Tip {
			cut = i + 1
			break
		}
	}
	manifest = manifest[:cut]
	ts := &tileState{space: space, tile: tile, manifest: manifest, tip: idx}
	s.tiles[key] = ts
	s.metrics.openTiles.Set(float64(len(s.tiles)))
	return ts, nil
}

// Close flushes every open buffer, durably persisting all segment
// bytes and tip indices before returning. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tiles := make([]*tileState, 0, len(s.tiles))
	for _, ts := range s.tiles {
		tiles = append(tiles, ts)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, ts := range tiles {
		ts := ts
		g.Go(func() error {
			ts.mu.Lock()
			defer ts.mu.Unlock()
			return s.flushLocked(ts)
		})
	}
	return g.Wait()
}
