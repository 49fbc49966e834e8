package security

import "testing"

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("secret length: got %d, want 64 hex chars", len(a))
	}
	b, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if a == b {
		t.Error("two secrets should not collide")
	}
}

func TestSecretEqual(t *testing.T) {
	secret, _ := GenerateSecret()
	hash := HashSecret(secret)
	if !SecretEqual(secret, hash) {
		t.Error("matching secret should compare equal")
	}
	if SecretEqual(secret+"x", hash) {
		t.Error("tampered secret should not compare equal")
	}
	if SecretEqual(secret, HashSecret("other")) {
		t.Error("wrong hash should not compare equal")
	}
}

func TestSplitRefreshToken(t *testing.T) {
	raw := FormatRefreshToken("id-1", "s3cr3t")
	id, secret, err := SplitRefreshToken(raw)
	if err != nil {
		t.Fatalf("SplitRefreshToken: %v", err)
	}
	if id != "id-1" || secret != "s3cr3t" {
		t.Errorf("split: got %q %q", id, secret)
	}

	for _, bad := range []string{"", "nodot", ".leading", "trailing."} {
		if _, _, err := SplitRefreshToken(bad); err != ErrMalformedToken {
			t.Errorf("SplitRefreshToken(%q): want ErrMalformedToken, got %v", bad, err)
		}
	}

	// Secrets containing a dot keep everything after the first separator.
	id, secret, err = SplitRefreshToken("id.a.b")
	if err != nil || id != "id" || secret != "a.b" {
		t.Errorf("dotted secret: got %q %q %v", id, secret, err)
	}
}
