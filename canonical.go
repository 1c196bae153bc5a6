package embeddb

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// canonicalBytes produces a deterministic binary serialization of v, used
// both as the hash input for primary-key generation and as the map key
// for index entries, so that values of different types that print alike
// (a string "1" vs the number 1) never collide, while two maps with the
// same keys in different orders encode to the same bytes.
// msgpack.Encoder.SetSortMapKeys gives deterministic field order for free
// instead of having to canonicalize maps by hand.
func canonicalBytes(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.ResetDict(&buf, nil)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("embeddb: canonical encode: %w", err)
	}
	return buf.Bytes(), nil
}

// indexKey is the map key used internally by Index for a field value; it is
// the canonical encoding of that value, typed so it can't accidentally be
// compared against a raw string.
type indexKey string

func keyOf(v any) indexKey {
	b, err := canonicalBytes(v)
	if err != nil {
		// v is always something decoded from JSON or built from JSON-shaped
		// literals, which msgpack always knows how to encode; a failure here
		// means a caller stored a non-JSON-shaped Go value.
		panic(fmt.Errorf("embeddb: cannot index value %#v: %w", v, err))
	}
	return indexKey(b)
}
