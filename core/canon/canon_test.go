package canon

import (
	"encoding/json"
	"testing"
)

func TestCanonicalKeyOrderIndependence(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": 3}
	b := map[string]any{"c": 3, "a": 2, "b": 1}
	ca, err := Canonical(a)
	if err != nil {
		t.Fatalf("canonical a: %v", err)
	}
	cb, err := Canonical(b)
	if err != nil {
		t.Fatalf("canonical b: %v", err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("expected identical canonical bytes, got %s vs %s", ca, cb)
	}
	want := `{"a":2,"b":1,"c":3}`
	if string(ca) != want {
		t.Fatalf("got %s want %s", ca, want)
	}
}

func TestHashJSONDeepClone(t *testing.T) {
	v := map[string]any{"x": []any{1, 2, 3}, "nested": map[string]any{"k": "v"}}
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var clone any
	if err := json.Unmarshal(raw, &clone); err != nil {
		t.Fatal(err)
	}
	h1, err := HashJSON(v)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashJSON(clone)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ: %s vs %s", h1, h2)
	}
}

func TestVerify(t *testing.T) {
	b := []byte("hello world")
	ref := HashBytes(b)
	if !Verify(b, ref) {
		t.Fatal("expected verify true")
	}
	if Verify(b, "sha256:"+"0"+ref[8:]) {
		t.Fatal("expected verify false for mismatched ref")
	}
}

func TestVerifyBlake3(t *testing.T) {
	b := []byte("canvas tile bytes")
	ref := HashBytesAlgo(Blake3, b)
	algo, _, err := ParseHashRef(ref)
	if err != nil {
		t.Fatal(err)
	}
	if algo != Blake3 {
		t.Fatalf("expected blake3 algo, got %s", algo)
	}
	if !Verify(b, ref) {
		t.Fatal("expected blake3 verify true")
	}
}

func TestRejectNonFinite(t *testing.T) {
	if _, err := Canonical(map[string]any{"x": 1.0 / zero()}); err == nil {
		t.Fatal("expected error for +Inf")
	}
}

func zero() float64 { return 0 }

func TestParseHashRefMalformed(t *testing.T) {
	cases := []string{"", "sha256", "sha256:abc", "md5:" + hex64(), "sha256:" + "zz" + hex64()[2:]}
	for _, c := range cases {
		if _, _, err := ParseHashRef(c); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func hex64() string {
	return "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
}

func TestHashOrderedInputsDeterministic(t *testing.T) {
	ts1 := int64(100)
	items := []OrderedInput{
		{Type: "b", RID: "r2"},
		{Type: "a", TS: &ts1, RID: "r1"},
		{Type: "a", RID: "r0"},
	}
	reversed := []OrderedInput{items[2], items[1], items[0]}
	h1, err := HashOrderedInputs(items)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashOrderedInputs(reversed)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("expected order-independent hash, got %s vs %s", h1, h2)
	}
}

func TestCanonicalPresentNullIsNotOmitted(t *testing.T) {
	b, err := Canonical(map[string]any{"a": 1, "b": nil})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":1,"b":null}`
	if string(b) != want {
		t.Fatalf("got %s want %s", b, want)
	}

	b2, err := Canonical(Mapping{{Key: "a", Value: 1}, {Key: "b", Value: nil}})
	if err != nil {
		t.Fatal(err)
	}
	if string(b2) != want {
		t.Fatalf("got %s want %s", b2, want)
	}
}

func TestHDPathAndSID(t *testing.T) {
	p := HDPath("demo", "z0/x0/y0", "tip")
	if p != "m/world/demo/tiles/z0/x0/y0/tip" {
		t.Fatalf("unexpected path: %s", p)
	}
	sid := SID(p)
	if _, _, err := ParseHashRef(sid); err != nil {
		t.Fatalf("SID should be a well-formed hash ref shape: %v", err)
	}
}
