package tilestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"tilecanvas/core/canon"
	"tilecanvas/pkg/errs"
)

func tileDir(root, space, tile string) string {
	return filepath.Join(root, "spaces", space, "tiles", tile)
}

func manifestPath(root, space, tile string) string {
	return filepath.Join(tileDir(root, space, tile), "manifest.json")
}

func indexPath(root, space, tile string) string {
	return filepath.Join(tileDir(root, space, tile), "index.json")
}

// snapshotPath locates a snapshot's content by its HashRef, content-
// addressed like the object store (colons aren't safe in filenames on
// every filesystem, so the algo/hex separator is flattened to "-").
func snapshotPath(root, space, tile, ref string) string {
	return filepath.Join(tileDir(root, space, tile), "snapshots", strings.Replace(ref, ":", "-", 1)+".json")
}

// snapshotEventPointerPath locates the small pointer file mapping an
// event_id to the HashRef of the snapshot taken at that event, the
// lookup spec §6 describes as "snapshots/<event_id>".
func snapshotEventPointerPath(root, space, tile, eventID string) string {
	return filepath.Join(tileDir(root, space, tile), "snapshots", "by-event", eventID)
}

// writeAtomic writes b to path via temp-file + rename, the same
// durability guarantee the object store gives blob writes.
func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.NewIOFailure(err)
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
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.NewIOFailure(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.NewIOFailure(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.NewIOFailure(err)
	}
	return nil
}

func loadManifest(root, space, tile string) ([]SegmentDescriptor, error) {
	b, err := os.ReadFile(manifestPath(root, space, tile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.NewIOFailure(err)
	}
	var m []SegmentDescriptor
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errs.Wrap(err, "decode manifest")
	}
	return m, nil
}

func saveManifest(root, space, tile string, m []SegmentDescriptor) error {
	entries := make([]any, len(m))
	for i, d := range m {
		entries[i] = canon.Mapping{
			{Key: "segment_hash", Value: d.SegmentHash},
			{Key: "first_event_id", Value: d.FirstEventID},
			{Key: "last_event_id", Value: d.LastEventID},
			{Key: "event_count", Value: d.EventCount},
		}
	}
	b, err := canon.Canonical(entries)
	if err != nil {
		return errs.Wrap(err, "encode manifest")
	}
	return writeAtomic(manifestPath(root, space, tile), b)
}

func loadIndex(root, space, tile string) (TipIndex, bool, error) {
	b, err := os.ReadFile(indexPath(root, space, tile))
	if err != nil {
		if os.IsNotExist(err) {
			return TipIndex{}, false, nil
		}
		return TipIndex{}, false, errs.NewIOFailure(err)
	}
	var idx TipIndex
	if err := json.Unmarshal(b, &idx); err != nil {
		return TipIndex{}, false, errs.Wrap(err, "decode index")
	}
	return idx, true, nil
}

func saveIndex(root, space, tile string, idx TipIndex) error {
	m := canon.Mapping{
		{Key: "tip", Value: idx.Tip},
		{Key: "updated_at_ms", Value: idx.UpdatedAtMs},
	}
	if idx.Snapshot != "" {
		m = append(m, canon.KV{Key: "snapshot", Value: idx.Snapshot})
	}
	b, err := canon.Canonical(m)
	if err != nil {
		return errs.Wrap(err, "encode index")
	}
	return writeAtomic(indexPath(root, space, tile), b)
}
