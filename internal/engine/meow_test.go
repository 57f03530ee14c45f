package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRecipient(t *testing.T) {
	jid, err := ParseRecipient("+593 99-123-4567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jid.User != "593991234567" {
		t.Errorf("expected digits only, got %q", jid.User)
	}
	if jid.Server != "s.whatsapp.net" {
		t.Errorf("expected user server, got %q", jid.Server)
	}
}

func TestParseRecipient_Invalid(t *testing.T) {
	for _, bad := range []string{"", "abc", "++--"} {
		_, err := ParseRecipient(bad)
		if !errors.Is(err, ErrInvalidRecipient) {
			t.Errorf("%q: expected ErrInvalidRecipient, got %v", bad, err)
		}
	}
}

func TestRenderDataURL(t *testing.T) {
	url := renderDataURL("2@abcdef,example-pairing-code")
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("expected PNG data URL, got %.40q", url)
	}
}
