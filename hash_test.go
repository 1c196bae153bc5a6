package embeddb

import "testing"

func TestRollingHash32_Deterministic(t *testing.T) {
	a := rollingHash32([]byte("hello"))
	b := rollingHash32([]byte("hello"))
	if a != b {
		t.Fatalf("rollingHash32 not deterministic: %d != %d", a, b)
	}
}

func TestRollingHash32_FormulaMatchesSpec(t *testing.T) {
	var want uint32
	for _, b := range []byte("ab") {
		want = (want << 5) - want + uint32(b)
	}
	got := rollingHash32([]byte("ab"))
	if got != want {
		t.Fatalf("rollingHash32(ab) = %d, wanted %d", got, want)
	}
}

func TestGeneratePrimaryKey_AvoidsCollisions(t *testing.T) {
	taken := map[string]bool{}
	exists := func(key string) bool { return taken[key] }

	key1, err := generatePrimaryKey(Record{"a": 1.0}, exists)
	if err != nil {
		t.Fatalf("generatePrimaryKey: %v", err)
	}
	taken[key1] = true

	key2, err := generatePrimaryKey(Record{"a": 1.0}, exists)
	if err != nil {
		t.Fatalf("generatePrimaryKey: %v", err)
	}
	if key1 == key2 {
		t.Fatalf("generatePrimaryKey returned the same key twice for the same candidate: %q", key1)
	}
}

func TestGeneratePrimaryKey_ExhaustionIsAnError(t *testing.T) {
	exists := func(key string) bool { return true }
	if _, err := generatePrimaryKeyWithBudget(Record{"a": 1.0}, exists, 3); err != ErrKeyGenerationExhausted {
		t.Fatalf("generatePrimaryKeyWithBudget = %v, wanted ErrKeyGenerationExhausted", err)
	}
}
