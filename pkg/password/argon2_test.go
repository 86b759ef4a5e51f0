package password_test

import (
	"errors"
	"strings"
	"testing"

	"go-stock-ledger/pkg/password"
)

func cheapParams() password.Params {
	return password.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestHashAndVerify(t *testing.T) {
	hash, err := password.Hash("s3cret-pass", cheapParams())
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Errorf("unexpected PHC prefix: %s", hash)
	}

	ok, err := password.Verify("s3cret-pass", hash)
	if err != nil || !ok {
		t.Errorf("expected match, got ok=%v err=%v", ok, err)
	}

	ok, err = password.Verify("wrong", hash)
	if err != nil || ok {
		t.Errorf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	a, _ := password.Hash("same", cheapParams())
	b, _ := password.Hash("same", cheapParams())
	if a == b {
		t.Error("two hashes of the same password must not be equal")
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
		want    error
	}{
		{"empty", "", password.ErrInvalidHash},
		{"bcrypt", "$2a$10$abcdefghijklmnopqrstuv", password.ErrInvalidHash},
		{"bad version", "$argon2id$v=16$m=8192,t=1,p=1$c2FsdA$a2V5", password.ErrIncompatibleVersion},
		{"bad params", "$argon2id$v=19$m=x$c2FsdA$a2V5", password.ErrInvalidHash},
		{"bad salt", "$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5", password.ErrInvalidHash},
		{"zero parallelism", "$argon2id$v=19$m=8192,t=1,p=0$c2FsdA$a2V5", password.ErrInvalidHash},
		{"zero iterations", "$argon2id$v=19$m=8192,t=0,p=1$c2FsdA$a2V5", password.ErrInvalidHash},
		{"memory below minimum", "$argon2id$v=19$m=4,t=1,p=1$c2FsdA$a2V5", password.ErrInvalidHash},
		{"absurd memory", "$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdA$a2V5", password.ErrInvalidHash},
		{"empty salt", "$argon2id$v=19$m=8192,t=1,p=1$$a2V5", password.ErrInvalidHash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := password.Verify("x", tt.encoded)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
