package checksum

import "testing"

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	if a != b {
		t.Fatalf("sum not stable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := Fingerprint([]string{"2026-02-21:abc", "2026-02-20:def"})
	b := Fingerprint([]string{"2026-02-20:def", "2026-02-21:abc"})
	if a != b {
		t.Errorf("fingerprint depends on order")
	}
}

func TestFingerprint_DetectsChange(t *testing.T) {
	a := Fingerprint([]string{"2026-02-21:abc"})
	b := Fingerprint([]string{"2026-02-21:abd"})
	if a == b {
		t.Errorf("fingerprint did not change")
	}
}

func TestFingerprint_DoesNotMutateInput(t *testing.T) {
	in := []string{"b", "a"}
	Fingerprint(in)
	if in[0] != "b" {
		t.Errorf("input mutated: %v", in)
	}
}
