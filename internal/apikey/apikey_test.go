package apikey

import "testing"

func TestNewManager_RejectsEmptyPepper(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Fatalf("expected error for empty pepper")
	}
}

func TestGenerate_ProducesVerifiableSecret(t *testing.T) {
	m, err := NewManager("pepper-1")
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	secret, prefix, hash, err := m.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if secret[:len(KeyPrefix)] != KeyPrefix {
		t.Fatalf("expected secret to carry prefix %q, got %q", KeyPrefix, secret)
	}
	if prefix != secret[:prefixLen] {
		t.Fatalf("display prefix mismatch")
	}
	if !m.Verify(secret, hash) {
		t.Fatalf("expected freshly generated secret to verify")
	}
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	m, _ := NewManager("pepper-1")
	_, _, hash, _ := m.Generate()
	if m.Verify("fc_sk_wrongwrongwrong", hash) {
		t.Fatalf("expected verification to fail for wrong secret")
	}
}

func TestVerify_DifferentPeppersDisagree(t *testing.T) {
	m1, _ := NewManager("pepper-1")
	m2, _ := NewManager("pepper-2")
	secret, _, hash, _ := m1.Generate()
	if m2.Verify(secret, hash) {
		t.Fatalf("expected a different pepper to produce a different hash")
	}
}

func TestGenerate_SecretsAreUnique(t *testing.T) {
	m, _ := NewManager("pepper-1")
	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		secret, _, _, err := m.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, dup := seen[secret]; dup {
			t.Fatalf("generated duplicate secret")
		}
		seen[secret] = struct{}{}
	}
}
