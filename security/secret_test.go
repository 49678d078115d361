package security

import "testing"

func TestHashAndCompareClientSecret(t *testing.T) {
	hash, err := HashClientSecret("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("hash should not equal the plaintext secret")
	}

	if err := CompareClientSecret(hash, "hunter2"); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := CompareClientSecret(hash, "wrong"); err == nil {
		t.Error("expected mismatch error")
	}
}

func TestHashClientSecretIsSalted(t *testing.T) {
	h1, err := HashClientSecret("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := HashClientSecret("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same secret should differ")
	}
}
