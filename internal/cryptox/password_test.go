package cryptox

import (
	"errors"
	"strings"
	"testing"
)

// Cheap parameters keep the suite fast.
var testParams = Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashVerify_RoundTrip(t *testing.T) {
	h := NewArgon2id(testParams)

	enc, err := h.Hash("s3cret-password!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %s", enc)
	}

	ok, err := h.Verify(enc, "s3cret-password!")
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}
	ok, err = h.Verify(enc, "s3cret-password?")
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v", ok, err)
	}
}

func TestHash_SaltedEachTime(t *testing.T) {
	h := NewArgon2id(testParams)
	a, _ := h.Hash("pw")
	b, _ := h.Hash("pw")
	if a == b {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestVerify_Malformed(t *testing.T) {
	h := NewArgon2id(testParams)
	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=16$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0$c2hvcnQ",
	}
	for _, c := range cases {
		if _, err := h.Verify(c, "pw"); !errors.Is(err, ErrInvalidHash) {
			t.Errorf("Verify(%q): want ErrInvalidHash, got %v", c, err)
		}
	}
}

func TestVerify_RejectsOversizedCost(t *testing.T) {
	strong := NewArgon2id(Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	enc, err := strong.Hash("pw")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewArgon2id(testParams).Verify(enc, "pw"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("want ErrInvalidHash, got %v", err)
	}
}
