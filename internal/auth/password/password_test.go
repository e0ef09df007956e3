package password

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("correct-horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	if !Verify("correct-horse", encoded) {
		t.Fatal("expected password to verify")
	}
	if Verify("wrong-horse", encoded) {
		t.Fatal("wrong password must not verify")
	}
	if NeedsRehash(encoded) {
		t.Fatal("fresh hash must not need a rehash")
	}
}

func TestWeakerHashNeedsRehash(t *testing.T) {
	weak := Params{Memory: 8 * 1024, Time: 1, Threads: 1, KeyLen: 32, SaltLen: 16}
	encoded, err := hashWith("correct-horse", weak)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !Verify("correct-horse", encoded) {
		t.Fatal("older params must still verify")
	}
	if !NeedsRehash(encoded) {
		t.Fatal("expected rehash for older params")
	}
}

func TestMalformedHashes(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=1,p=4$!!$a2V5",
	} {
		if Verify("anything", encoded) {
			t.Fatalf("malformed hash %q verified", encoded)
		}
		if !NeedsRehash(encoded) {
			t.Fatalf("malformed hash %q should be replaced", encoded)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("short"); err != ErrTooShort {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	if err := Validate("        pad"); err != ErrTooShort {
		t.Fatalf("whitespace must not count, got %v", err)
	}
	if err := Validate("long-enough"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
