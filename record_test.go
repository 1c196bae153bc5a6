package embeddb

import "testing"

func TestNormalizeRecord_StripsUndefined(t *testing.T) {
	in := Record{
		"a": 1.0,
		"b": Undefined,
		"c": Record{"d": Undefined, "e": 2.0},
	}
	out := normalizeRecord(in)
	if _, ok := out["b"]; ok {
		t.Fatalf("normalizeRecord: %v still has key b", out)
	}
	nested, ok := out["c"].(Record)
	if !ok {
		t.Fatalf("out[c] = %T, wanted Record", out["c"])
	}
	if _, ok := nested["d"]; ok {
		t.Fatalf("nested record still has key d: %v", nested)
	}
	if nested["e"] != 2.0 {
		t.Fatalf("nested[e] = %v, wanted 2.0", nested["e"])
	}
}

func TestNormalizeRecord_PreservesNull(t *testing.T) {
	in := Record{"a": nil}
	out := normalizeRecord(in)
	v, ok := out["a"]
	if !ok {
		t.Fatalf("normalizeRecord dropped a null field")
	}
	if v != nil {
		t.Fatalf("out[a] = %v, wanted nil", v)
	}
}

func TestCloneRecord_Independence(t *testing.T) {
	in := Record{"tags": []any{"a", "b"}, "nested": Record{"x": 1.0}}
	out := cloneRecord(in)

	out["tags"].([]any)[0] = "mutated"
	if in["tags"].([]any)[0] != "a" {
		t.Fatalf("mutating clone leaked into original: %v", in["tags"])
	}

	out["nested"].(Record)["x"] = 99.0
	if in["nested"].(Record)["x"] != 1.0 {
		t.Fatalf("mutating cloned nested record leaked into original: %v", in["nested"])
	}
}

func TestFreezeRecord_OwnsItsData(t *testing.T) {
	src := Record{"a": 1.0}
	frozen := freezeRecord(src)
	src["a"] = 2.0
	if (*frozen)["a"] != 1.0 {
		t.Fatalf("frozen record changed after mutating source map: %v", *frozen)
	}
}

func TestGetField(t *testing.T) {
	r := Record{"a": 1.0}
	if v, ok := getField(r, "a"); !ok || v != 1.0 {
		t.Fatalf("getField(a) = (%v, %v), wanted (1.0, true)", v, ok)
	}
	if _, ok := getField(r, "missing"); ok {
		t.Fatalf("getField(missing) reported ok = true")
	}
}
