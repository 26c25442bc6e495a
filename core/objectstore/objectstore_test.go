package objectstore

import (
	"os"
	"path/filepath"
	"testing"

	"tilecanvas/core/canon"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte("tile segment bytes")
	ref, err := s.Put(data)
	if err != nil {
		t.Fatal(err)
	}
	if ref != canon.HashBytes(data) {
		t.Fatalf("unexpected ref %s", ref)
	}
	got, err := s.Get(ref)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatalf("roundtrip mismatch")
	}
	has, err := s.Has(ref)
	if err != nil || !has {
		t.Fatalf("expected has=true, err=%v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("sha256:" + "0000000000000000000000000000000000000000000000000000000000000000"[:64])
	if err == nil {
		t.Fatal("expected not found error")
	}
}

func TestGetIntegrityError(t *testing.T) {
	s := newTestStore(t)
	ref, err := s.Put([]byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	algo, hexPart, _ := canon.ParseHashRef(ref)
	path := filepath.Join(s.root, "objects", string(algo), hexPart[:2], hexPart[2:])
	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ref); err == nil {
		t.Fatal("expected integrity error")
	}
}

func TestPutIdempotent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("same content")
	r1, err := s.Put(data)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := s.Put(data)
	if err != nil {
		t.Fatal(err)
	}
	if r1 != r2 {
		t.Fatalf("expected identical refs, got %s vs %s", r1, r2)
	}
}

func TestCIDProjection(t *testing.T) {
	s := newTestStore(t)
	ref, err := s.Put([]byte("cid me"))
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.CID(ref)
	if err != nil {
		t.Fatal(err)
	}
	if c == "" {
		t.Fatal("expected non-empty CID")
	}
}
