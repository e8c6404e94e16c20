package internal

import "testing"

func TestNewNumericCode(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		code, err := NewNumericCode(digits)
		if err != nil {
			t.Fatalf("NewNumericCode(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits, got %q", digits, code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
	}

	if _, err := NewNumericCode(3); err == nil {
		t.Fatal("expected error for 3 digits")
	}
}

func TestNewOpaqueTokenIsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("NewOpaqueToken failed: %v", err)
		}
		if _, ok := seen[tok]; ok {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestHashSecretStable(t *testing.T) {
	if HashSecret("123456") != HashSecret("123456") {
		t.Fatal("expected stable hash")
	}
	if HashSecret("123456") == HashSecret("654321") {
		t.Fatal("expected different hashes")
	}
}
