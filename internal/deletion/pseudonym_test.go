package deletion

import (
	"strings"
	"testing"
)

func TestPseudonymize_Deterministic(t *testing.T) {
	a := Pseudonymize("user-42", "salt")
	b := Pseudonymize("user-42", "salt")
	if a != b {
		t.Fatalf("same input must pseudonymize identically: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "pseudo_") {
		t.Errorf("expected pseudo_ prefix, got %q", a)
	}
	if len(a) != len("pseudo_")+16 {
		t.Errorf("expected 16 hex chars after prefix, got %q", a)
	}
}

func TestPseudonymize_SaltVariance(t *testing.T) {
	if Pseudonymize("user-42", "salt-a") == Pseudonymize("user-42", "salt-b") {
		t.Fatal("different salts must produce different pseudonyms")
	}
	if Pseudonymize("user-1", "salt") == Pseudonymize("user-2", "salt") {
		t.Fatal("different users must produce different pseudonyms")
	}
}

func TestPseudonymize_EmptyIdentifierIsRandom(t *testing.T) {
	a := Pseudonymize("", "salt")
	b := Pseudonymize("", "salt")

	if !strings.HasPrefix(a, "anon_") || !strings.HasPrefix(b, "anon_") {
		t.Fatalf("expected anon_ prefix, got %q and %q", a, b)
	}
	if a == b {
		t.Fatal("empty identifiers must not collide")
	}
}

func TestIsPseudonym(t *testing.T) {
	cases := map[string]bool{
		Pseudonymize("u1", "s"): true,
		Pseudonymize("", "s"):   true,
		"user-42":               false,
		"":                      false,
	}
	for v, want := range cases {
		if got := IsPseudonym(v); got != want {
			t.Errorf("IsPseudonym(%q): got %v, want %v", v, got, want)
		}
	}
}
