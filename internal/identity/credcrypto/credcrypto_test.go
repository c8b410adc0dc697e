package credcrypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	sealer, err := New(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sealed, err := sealer.Seal("EAAG-token", "user-1")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(sealed, "EAAG-token") {
		t.Fatalf("sealed value leaks plaintext: %s", sealed)
	}

	opened, err := sealer.Open(sealed, "user-1")
	if err != nil || opened != "EAAG-token" {
		t.Fatalf("open = %q, %v", opened, err)
	}

	if _, err := sealer.Open(sealed, "user-2"); err == nil {
		t.Fatalf("expected failure when opening with another owner")
	}
}

func TestSealerWithoutKeyPassesThrough(t *testing.T) {
	sealer, err := New(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sealed, _ := sealer.Seal("token", "user")
	opened, err := sealer.Open(sealed, "other")
	if err != nil || opened != "token" {
		t.Fatalf("open = %q, %v", opened, err)
	}
	if _, err := sealer.Open("garbage", "user"); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New([]byte("short")); err == nil {
		t.Fatalf("expected error for short key")
	}
}
