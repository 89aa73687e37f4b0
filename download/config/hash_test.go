package config

import "testing"

func TestHashFromBytes(t *testing.T) {
	a := HashFromBytes([]byte("download:\n  market: US\n"))
	if len(a) != ConfigHashLen {
		t.Errorf("len(HashFromBytes()) = %d, want %d", len(a), ConfigHashLen)
	}
	if a != HashFromBytes([]byte("download:\n  market: US\n")) {
		t.Error("same content gave different hashes")
	}
	if a == HashFromBytes([]byte("download:\n  market: GB\n")) {
		t.Error("different content gave the same hash")
	}
	if len(HashFromBytes(nil)) != ConfigHashLen {
		t.Error("empty input must still give a full length hash")
	}
}

func TestFingerprint(t *testing.T) {
	a := validConfig()
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	b := validConfig()
	b.Download.ClientSecret = "other-secret"
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("Fingerprint() depends on credentials")
	}

	c := validConfig()
	c.Download.Threads = 4
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("Fingerprint() ignores settings")
	}
}
