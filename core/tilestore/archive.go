package tilestore

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"

	"tilecanvas/pkg/errs"
)

// keepRecentSegments is the number of manifest-tail segments
// ArchiveOldSegments leaves untouched: the tip and its immediate
// parent. Readers never consult the gzip archive either way.
const keepRecentSegments = 2

func archivePath(root, space, tile, hash string) string {
	return filepath.Join(tileDir(root, space, tile), "segments", hash+".json.gz")
}

// ArchiveOldSegments gzips the canonical bytes of every manifest
// segment for (space, tile) that is no longer the tip or the tip's
// immediate parent into segments/<hash>.json.gz, adapted from the
// teacher's WAL compaction in core/ledger.go. It is purely an
// operational nicety: the object store copy is never removed, and
// get_segments_since always resolves through the object store, so
// skipping this call (it is opt-in, never invoked from AppendTileEvents)
// changes nothing observable.
func (s *Store) ArchiveOldSegments(space, tile string) error {
	ts, err := s.getOrLoadTile(space, tile)
	if err != nil {
		return err
	}
	ts.mu.Lock()
	manifest := append([]SegmentDescriptor{}, ts.manifest...)
	ts.mu.Unlock()

	if len(manifest) <= keepRecentSegments {
		return nil
	}

	for _, desc := range manifest[:len(manifest)-keepRecentSegments] {
		path := archivePath(s.cfg.RootDir, space, tile, desc.SegmentHash)
		if _, err := os.Stat(path); err == nil {
			continue // already archived
		}
		b, err := s.obj.Get(desc.SegmentHash)
		if err != nil {
			return errs.Wrap(err, "archive: read segment")
		}
		var gz bytes.Buffer
		w := gzip.NewWriter(&gz)
		if _, err := w.Write(b); err != nil {
			w.Close()
			return errs.Wrap(err, "archive: gzip segment")
		}
		if err := w.Close(); err != nil {
			return errs.Wrap(err, "archive: gzip segment")
		}
		if err := writeAtomic(path, gz.Bytes()); err != nil {
			return err
		}
		s.metrics.segmentsArchived.Inc()
	}
	return nil
}
