package embeddb

import "testing"

func TestGetPath_Flat(t *testing.T) {
	r := Record{"foo": "bar"}
	v, ok := getPath(r, "foo")
	if !ok || v != "bar" {
		t.Fatalf("getPath(foo) = (%v, %v), wanted (bar, true)", v, ok)
	}
}

func TestGetPath_Dotted(t *testing.T) {
	r := Record{"a": Record{"b": Record{"c": 42.0}}}
	v, ok := getPath(r, "a.b.c")
	if !ok || v != 42.0 {
		t.Fatalf("getPath(a.b.c) = (%v, %v), wanted (42.0, true)", v, ok)
	}
}

func TestGetPath_DottedThroughPlainMap(t *testing.T) {
	r := Record{"a": map[string]any{"b": 7.0}}
	v, ok := getPath(r, "a.b")
	if !ok || v != 7.0 {
		t.Fatalf("getPath(a.b) = (%v, %v), wanted (7.0, true)", v, ok)
	}
}

func TestGetPath_MissingIntermediate(t *testing.T) {
	r := Record{"a": Record{}}
	if _, ok := getPath(r, "a.b.c"); ok {
		t.Fatalf("getPath(a.b.c) reported ok = true for missing intermediate")
	}
}

func TestGetPath_SegmentOnNonObject(t *testing.T) {
	r := Record{"a": "scalar"}
	if _, ok := getPath(r, "a.b"); ok {
		t.Fatalf("getPath(a.b) reported ok = true when a is a scalar")
	}
}
