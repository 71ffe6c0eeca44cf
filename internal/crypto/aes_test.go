package crypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	return s
}

func TestSealer_SealOpen(t *testing.T) {
	s := newTestSealer(t)

	sealed, err := s.Seal("eyJhbGciOiJIUzI1NiJ9.payload.sig")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("sealed value missing prefix: %q", sealed)
	}
	if strings.Contains(sealed, "payload") {
		t.Error("sealed value leaks plaintext")
	}

	plain, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "eyJhbGciOiJIUzI1NiJ9.payload.sig" {
		t.Errorf("Open = %q", plain)
	}
}

func TestSealer_EmptyAndLegacy(t *testing.T) {
	s := newTestSealer(t)
	if v, _ := s.Seal(""); v != "" {
		t.Errorf("Seal(\"\") = %q", v)
	}
	if v, err := s.Open("plain-token"); err != nil || v != "plain-token" {
		t.Errorf("Open(legacy) = %q, %v", v, err)
	}
}

func TestSealer_WrongKey(t *testing.T) {
	a := newTestSealer(t)
	b, _ := NewSealer([]byte("ffffffffffffffffffffffffffffffff"))

	sealed, _ := a.Seal("secret")
	if _, err := b.Open(sealed); !errors.Is(err, ErrOpen) {
		t.Errorf("Open with wrong key error = %v, want ErrOpen", err)
	}
	if _, err := a.Open(prefix + "!!!"); !errors.Is(err, ErrOpen) {
		t.Errorf("Open garbage error = %v, want ErrOpen", err)
	}
}

func TestParseKey(t *testing.T) {
	hexKey, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"hex", hexKey, false},
		{"base64", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=", false},
		{"raw", "0123456789abcdef0123456789abcdef", false},
		{"short", "abc", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := ParseKey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKey error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(k) != 32 {
				t.Errorf("key length = %d", len(k))
			}
		})
	}
}

func TestKeyringSealer_CreatesAndReusesKey(t *testing.T) {
	keyring.MockInit()

	first, err := KeyringSealer()
	if err != nil {
		t.Fatalf("KeyringSealer: %v", err)
	}
	sealed, _ := first.Seal("token")

	second, err := KeyringSealer()
	if err != nil {
		t.Fatalf("KeyringSealer (second): %v", err)
	}
	if got, err := second.Open(sealed); err != nil || got != "token" {
		t.Errorf("reopen with stored key = %q, %v", got, err)
	}

	if err := ForgetKeyringKey(); err != nil {
		t.Fatalf("ForgetKeyringKey: %v", err)
	}
	if err := ForgetKeyringKey(); err != nil {
		t.Errorf("ForgetKeyringKey twice: %v", err)
	}
}
