package phone

import "testing"

const normalizeMismatchMsg = "Normalize(%q) = %q, want %q"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare national number gets country code", raw: "9876543210", want: "919876543210"},
		{name: "punctuation stripped", raw: "+91 98765-43210", want: "919876543210"},
		{name: "formatted national number", raw: "(987) 654-3210", want: "919876543210"},
		{name: "already prefixed", raw: "919876543210", want: "919876543210"},
		{name: "short number untouched", raw: "12345", want: "12345"},
		{name: "foreign number untouched", raw: "+1 415 555 2671 00", want: "1415555267100"},
		{name: "empty input", raw: "", want: ""},
		{name: "no digits", raw: "n/a", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.raw); got != tt.want {
				t.Fatalf(normalizeMismatchMsg, tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{"9876543210", "+91 98765 43210", "0044 20 7946 0958", "12", "", "abc"}
	for _, raw := range inputs {
		once := Normalize(raw)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", raw, once, twice)
		}
		for _, r := range once {
			if r < '0' || r > '9' {
				t.Fatalf("Normalize(%q) = %q contains non-digit %q", raw, once, r)
			}
		}
	}
}

func TestNormalizePtr(t *testing.T) {
	if got := NormalizePtr(nil); got != nil {
		t.Fatalf("expected nil for nil input, got %q", *got)
	}
	empty := "---"
	if got := NormalizePtr(&empty); got != nil {
		t.Fatalf("expected nil for digitless input, got %q", *got)
	}
	raw := "98765 43210"
	got := NormalizePtr(&raw)
	if got == nil || *got != "919876543210" {
		t.Fatalf("unexpected key %v", got)
	}
}

func TestFormatE164(t *testing.T) {
	if got := FormatE164("919876543210"); got != "+919876543210" {
		t.Fatalf("FormatE164 = %q, want +919876543210", got)
	}
	if got := FormatE164("12"); got != "12" {
		t.Fatalf("invalid key should be returned unchanged, got %q", got)
	}
}
