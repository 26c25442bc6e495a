// Package objectstore implements the content-addressed blob store
// (C4): a fan-out path layout under objects/<algo>/<hex[0..2]>/<hex[2..]>,
// atomic temp-file+rename writes, and read-side integrity
// verification. See spec §4.4.
package objectstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/sirupsen/logrus"

	"tilecanvas/core/canon"
	"tilecanvas/pkg/errs"
)

// Store is a pure content map rooted at a directory. Concurrent Put
// of identical content is idempotent; atomic rename guarantees
// readers never observe partial objects.
type Store struct {
	root string
	log  *logrus.Logger
}

// New creates a Store rooted at root/objects. The directory is
// created if absent.
func New(root string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.New()
	}
	dir := filepath.Join(root, "objects")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.NewIOFailure(err)
	}
	return &Store{root: root, log: log}, nil
}

func (s *Store) pathFor(ref string) (string, error) {
	algo, hexPart, err := canon.ParseHashRef(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, "objects", string(algo), hexPart[:2], hexPart[2:]), nil
}

// Put hashes b (sha256), writes it atomically (temp file + rename) if
// not already present, and returns its HashRef.
func (s *Store) Put(b []byte) (string, error) {
	return s.PutAlgo(canon.SHA256, b)
}

// PutAlgo is Put parameterized by hash algorithm.
func (s *Store) PutAlgo(algo canon.Algo, b []byte) (string, error) {
	ref := canon.HashBytesAlgo(algo, b)
	path, err := s.pathFor(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return ref, nil // idempotent: identical content already stored
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errs.NewIOFailure(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", errs.NewIOFailure(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errs.NewIOFailure(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errs.NewIOFailure(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", errs.NewIOFailure(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", errs.NewIOFailure(err)
	}
	s.log.WithFields(logrus.Fields{"ref": ref, "bytes": len(b)}).Debug("objectstore: put")
	return ref, nil
}

// Get returns the bytes stored under ref, verifying integrity on
// every read. A hash mismatch raises IntegrityError; an absent object
// raises NotFound.
func (s *Store) Get(ref string) ([]byte, error) {
	path, err := s.pathFor(ref)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.NotFound{What: "object " + ref}
		}
		return nil, errs.NewIOFailure(err)
	}
	if !canon.Verify(b, ref) {
		return nil, &errs.IntegrityError{Ref: ref}
	}
	return b, nil
}

// Has reports whether ref is present without reading its bytes.
func (s *Store) Has(ref string) (bool, error) {
	path, err := s.pathFor(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errs.NewIOFailure(err)
}

// CID projects a HashRef onto an IPFS CIDv1 for interop with
// content-routing peers. Only sha256 refs are representable (the CID
// multicodec table has no blake3 entry in this pack); callers should
// not treat the CID as a content identifier for blake3 refs.
func (s *Store) CID(ref string) (string, error) {
	algo, hexPart, err := canon.ParseHashRef(ref)
	if err != nil {
		return "", err
	}
	if algo != canon.SHA256 {
		return "", fmt.Errorf("objectstore: no CID multicodec mapping for algo %s", algo)
	}
	raw, err := decodeHex(hexPart)
	if err != nil {
		return "", err
	}
	digest, err := mh.Encode(raw, mh.SHA2_256)
	if err != nil {
		return "", err
	}
	c := cid.NewCidV1(cid.Raw, digest)
	return c.String(), nil
}

func decodeHex(s string) ([]byte, error) {
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi, err := hexVal(s[2*i])
		if err != nil {
			return nil, err
		}
		lo, err := hexVal(s[2*i+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexVal(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("objectstore: invalid hex digit %q", c)
	}
}
