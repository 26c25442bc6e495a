// Package canon implements canonical JSON serialization and
// content-addressed hashing (HashRef) for tilecanvas.
//
// Canonical serialization is a total function from the JSON value
// space (null, boolean, finite number, string, array, string-keyed
// mapping) to a byte string: mapping keys are emitted in
// lexicographic order, duplicate keys are rejected, arrays preserve
// order, numbers must be finite, and strings use the minimal stable
// JSON escaping. See spec §4.1.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	blake3 "lukechampine.com/blake3"
)

// Algo identifies a hash function usable in a HashRef.
type Algo string

const (
	SHA256 Algo = "sha256"
	Blake3 Algo = "blake3"
)

var (
	// ErrNonFinite is returned for NaN/Inf numeric inputs.
	ErrNonFinite = errors.New("canon: non-finite number")
	// ErrDuplicateKey is returned when a mapping has a repeated key.
	ErrDuplicateKey = errors.New("canon: duplicate mapping key")
	// ErrUnsupportedType is returned for values outside the JSON value space.
	ErrUnsupportedType = errors.New("canon: unsupported value type")
	// ErrMalformedHashRef is returned by ParseHashRef for ill-formed refs.
	ErrMalformedHashRef = errors.New("canon: malformed hash ref")
	// ErrUnknownAlgo is returned for a HashRef naming an unrecognized algorithm.
	ErrUnknownAlgo = errors.New("canon: unknown hash algorithm")
)

// Canonical returns the canonical byte image of v, a value built from
// nil, bool, float64/int/int64, string, []any, and map[string]any (or
// an ordered Mapping for deterministic input construction). Returns an
// error for non-finite numbers or unsupported types.
func Canonical(v any) ([]byte, error) {
	var buf strings.Builder
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// Mapping is an explicit ordered key/value list; encode treats it the
// same as map[string]any but lets callers avoid relying on Go's
// randomized map iteration when constructing test fixtures. Duplicate
// keys are still rejected at encode time.
type Mapping []KV

// KV is a single key/value pair of a Mapping.
type KV struct {
	Key   string
	Value any
}

func encode(buf *strings.Builder, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		encodeString(buf, x)
		return nil
	case float64:
		return encodeNumber(buf, x)
	case float32:
		return encodeNumber(buf, float64(x))
	case int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
		return nil
	case uint64:
		buf.WriteString(strconv.FormatUint(x, 10))
		return nil
	case []any:
		return encodeArray(buf, x)
	case Mapping:
		return encodeMapping(buf, x)
	case map[string]any:
		return encodeMap(buf, x)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

func encodeNumber(buf *strings.Builder, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNonFinite
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func encodeString(buf *strings.Builder, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

func encodeArray(buf *strings.Builder, a []any) error {
	buf.WriteByte('[')
	for i, item := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		if item == nil {
			buf.WriteString("null")
			continue
		}
		if err := encode(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// encodeMap encodes every key present in m, including those whose
// value is nil (JSON null is a value in the canon value space, not an
// omission — see spec §4.6's "present-null, not removed" property
// semantics). Callers that want a key absent simply don't put it in m.
func encodeMap(buf *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encode(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeMapping(buf *strings.Builder, m Mapping) error {
	seen := make(map[string]struct{}, len(m))
	keys := make([]string, 0, len(m))
	values := make(map[string]any, len(m))
	for _, kv := range m {
		if _, dup := seen[kv.Key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, kv.Key)
		}
		seen[kv.Key] = struct{}{}
		keys = append(keys, kv.Key)
		values[kv.Key] = kv.Value
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encode(buf, values[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// HashBytes returns the HashRef of b under the default algorithm
// (sha256), formatted "<algo>:<hex>".
func HashBytes(b []byte) string {
	return HashBytesAlgo(SHA256, b)
}

// HashBytesAlgo returns the HashRef of b under the given algorithm.
func HashBytesAlgo(algo Algo, b []byte) string {
	switch algo {
	case Blake3:
		sum := blake3.Sum256(b)
		return string(Blake3) + ":" + hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(b)
		return string(SHA256) + ":" + hex.EncodeToString(sum[:])
	}
}

// HashJSON canonicalizes v and returns its HashRef under sha256.
func HashJSON(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashJSONAlgo canonicalizes v and returns its HashRef under algo.
func HashJSONAlgo(algo Algo, v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return HashBytesAlgo(algo, b), nil
}

// Verify reports whether HashBytesAlgo(ref's algo, content) == ref.
func Verify(content []byte, ref string) bool {
	algo, _, err := ParseHashRef(ref)
	if err != nil {
		return false
	}
	return HashBytesAlgo(algo, content) == ref
}

var hexDigits = "0123456789abcdef"

func isLowerHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(hexDigits, r) {
			return false
		}
	}
	return true
}

// ParseHashRef splits "<algo>:<hex>" and validates algo/hex shape.
func ParseHashRef(ref string) (Algo, string, error) {
	i := strings.IndexByte(ref, ':')
	if i < 0 {
		return "", "", ErrMalformedHashRef
	}
	algo, hexPart := Algo(ref[:i]), ref[i+1:]
	switch algo {
	case SHA256:
		if len(hexPart) != 64 {
			return "", "", ErrMalformedHashRef
		}
	case Blake3:
		if len(hexPart) != 64 {
			return "", "", ErrMalformedHashRef
		}
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnknownAlgo, algo)
	}
	if !isLowerHex(hexPart) {
		return "", "", ErrMalformedHashRef
	}
	return algo, hexPart, nil
}

// HDPath builds a structural pointer path "m/world/{space}/tiles/{tile}/{role}".
func HDPath(space, tile, role string) string {
	return fmt.Sprintf("m/world/%s/tiles/%s/%s", space, tile, role)
}

// SID derives a stable pointer identifier from an HD path. SIDs are
// mutable-mapping handles, never content identifiers — callers must
// not use a SID in place of a HashRef.
func SID(path string) string {
	return HashBytes([]byte(path))
}

// OrderedInput is one entry in an ordered-input hash: a typed,
// optionally-timestamped, identified item.
type OrderedInput struct {
	Type string
	TS   *int64
	RID  string
}

// HashOrderedInputs sorts items by (type ASC, ts ASC with absent=0,
// rid ASC), normalizes an absent ts to the sentinel "null", and
// returns the HashRef of the canonical image of the resulting list.
func HashOrderedInputs(items []OrderedInput) (string, error) {
	sorted := make([]OrderedInput, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		at, bt := tsOrZero(a.TS), tsOrZero(b.TS)
		if at != bt {
			return at < bt
		}
		return a.RID < b.RID
	})
	arr := make([]any, len(sorted))
	for i, it := range sorted {
		m := Mapping{
			{Key: "type", Value: it.Type},
			{Key: "rid", Value: it.RID},
		}
		if it.TS != nil {
			m = append(m, KV{Key: "ts", Value: *it.TS})
		} else {
			m = append(m, KV{Key: "ts", Value: "null"})
		}
		arr[i] = m
	}
	return HashJSON(arr)
}

func tsOrZero(ts *int64) int64 {
	if ts == nil {
		return 0
	}
	return *ts
}
