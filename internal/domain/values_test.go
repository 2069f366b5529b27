package domain_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/ErlanBelekov/newsletter/internal/domain"
)

func TestParseEmail(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"khar@gmail.com", false},
		{"ursula.le.guin@mail.example.org", false},
		{"", true},
		{"khargmail.com", true},
		{"@gmail.com", true},
		{"khar@gmail", true},
		{"khar@@gmail.com", true},
		{"kh@ar@gmail.com", true},
		{"khar @gmail.com", true},
	}

	for _, tt := range tests {
		got, err := domain.ParseEmail(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrEmailMalformed) {
				t.Errorf("ParseEmail(%q) err = %v, want ErrEmailMalformed", tt.raw, err)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("ParseEmail(%q) err = %v, want it to wrap ErrValidation", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseEmail(%q) unexpected error: %v", tt.raw, err)
			continue
		}
		if got.String() != tt.raw {
			t.Errorf("ParseEmail(%q) = %q", tt.raw, got.String())
		}
	}
}

func TestParseName_Valid(t *testing.T) {
	for _, raw := range []string{"le guin", "Ursula K. Le Guin", "ё", strings.Repeat("a", domain.MaxNameLength)} {
		got, err := domain.ParseName(raw)
		if err != nil {
			t.Errorf("ParseName(%q) unexpected error: %v", raw, err)
			continue
		}
		if got.String() != raw {
			t.Errorf("ParseName(%q) = %q", raw, got.String())
		}
	}
}

func TestParseName_Empty(t *testing.T) {
	for _, raw := range []string{"", " ", "\t\n  "} {
		if _, err := domain.ParseName(raw); !errors.Is(err, domain.ErrNameEmpty) {
			t.Errorf("ParseName(%q) err = %v, want ErrNameEmpty", raw, err)
		}
	}
}

func TestParseName_TooLong(t *testing.T) {
	raw := strings.Repeat("a", domain.MaxNameLength+1)
	if _, err := domain.ParseName(raw); !errors.Is(err, domain.ErrNameTooLong) {
		t.Errorf("err = %v, want ErrNameTooLong", err)
	}
}

func TestParseName_CountsGraphemesNotBytes(t *testing.T) {
	// 256 clusters of "e" + combining acute accent: 512 runes, still within the limit.
	raw := strings.Repeat("e\u0301", domain.MaxNameLength)
	if _, err := domain.ParseName(raw); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseName_ForbiddenCharacters(t *testing.T) {
	for _, r := range []string{"/", "(", ")", `"`, "<", ">", `\`, "{", "}", "\x00", "\x1b", "\u200b", "\u202e"} {
		raw := "le" + r + "guin"
		if _, err := domain.ParseName(raw); !errors.Is(err, domain.ErrNameForbiddenCharacter) {
			t.Errorf("ParseName(%q) err = %v, want ErrNameForbiddenCharacter", raw, err)
		}
	}
}

func TestParseNewSubscriber(t *testing.T) {
	ns, err := domain.ParseNewSubscriber("khar@gmail.com", "le guin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns.Email.String() != "khar@gmail.com" || ns.Name.String() != "le guin" {
		t.Errorf("got %+v", ns)
	}

	if _, err := domain.ParseNewSubscriber("", "le guin"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing email: err = %v, want ErrValidation", err)
	}
	if _, err := domain.ParseNewSubscriber("khar@gmail.com", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing name: err = %v, want ErrValidation", err)
	}
}
