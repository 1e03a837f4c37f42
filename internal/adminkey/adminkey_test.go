package adminkey

import (
	"strings"
	"testing"
)

func TestGenerateFormat(t *testing.T) {
	key, hash, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(key, Prefix) {
		t.Errorf("key %q lacks prefix %q", key, Prefix)
	}
	if len(key) != len(Prefix)+randBytes*2 {
		t.Errorf("key length = %d, want %d", len(key), len(Prefix)+randBytes*2)
	}
	if len(hash) != 64 {
		t.Errorf("hash length = %d, want 64", len(hash))
	}
	if hash != Hash(key) {
		t.Errorf("hash mismatch with Hash(key)")
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, _, err := Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if seen[key] {
			t.Fatalf("duplicate key generated: %s", key)
		}
		seen[key] = true
	}
}

func TestWellFormed(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{Prefix + strings.Repeat("ab", 16), true},
		{Prefix + strings.Repeat("AB", 16), true},
		{Prefix + strings.Repeat("ab", 15), false},
		{Prefix + strings.Repeat("zz", 16), false},
		{"key_" + strings.Repeat("ab", 16), false},
		{Prefix, false},
		{"", false},
	}
	for _, c := range cases {
		if got := WellFormed(c.key); got != c.want {
			t.Errorf("WellFormed(%q) = %v, want %v", c.key, got, c.want)
		}
	}
}

func TestVerify(t *testing.T) {
	key, hash, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !Verify(key, hash) {
		t.Errorf("Verify rejected the matching key")
	}

	other, _, _ := Generate()
	if Verify(other, hash) {
		t.Errorf("Verify accepted a different key")
	}
	if Verify("not-a-key", hash) {
		t.Errorf("Verify accepted a malformed key")
	}
	if Verify(key, "") {
		t.Errorf("Verify accepted against an empty stored hash")
	}
}

func TestVerifyNearMiss(t *testing.T) {
	key, hash, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	last := key[len(key)-1]
	flip := "0"
	if last == '0' {
		flip = "1"
	}
	if Verify(key[:len(key)-1]+flip, hash) {
		t.Errorf("Verify accepted a near-miss key")
	}
}

func TestMaskKey(t *testing.T) {
	if got := MaskKey("chat_abcdef0123"); got != "chat_abc***" {
		t.Errorf("MaskKey = %q, want chat_abc***", got)
	}
	if got := MaskKey("chat_ab"); got != "***" {
		t.Errorf("MaskKey short = %q, want ***", got)
	}
}
