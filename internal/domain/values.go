package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// MaxNameLength is measured in grapheme clusters, so "é" written as
// e + combining accent counts once.
const MaxNameLength = 256

var (
	ErrValidation             = errors.New("validation failed")
	ErrEmailMalformed         = fmt.Errorf("%w: malformed email address", ErrValidation)
	ErrNameEmpty              = fmt.Errorf("%w: name is empty", ErrValidation)
	ErrNameTooLong            = fmt.Errorf("%w: name is too long", ErrValidation)
	ErrNameForbiddenCharacter = fmt.Errorf("%w: name contains a forbidden character", ErrValidation)
)

const forbiddenNameRunes = `/()"<>\{}`

// Email is a syntactically valid address. The zero value is not valid;
// obtain one through ParseEmail.
type Email struct {
	value string
}

func ParseEmail(raw string) (Email, error) {
	if strings.Count(raw, "@") != 1 {
		return Email{}, ErrEmailMalformed
	}
	local, domainPart, _ := strings.Cut(raw, "@")
	if local == "" || !strings.Contains(domainPart, ".") {
		return Email{}, ErrEmailMalformed
	}
	if strings.IndexFunc(raw, unicode.IsSpace) >= 0 {
		return Email{}, ErrEmailMalformed
	}
	return Email{value: raw}, nil
}

func (e Email) String() string { return e.value }

// Name is a display name safe to interpolate into an email body.
type Name struct {
	value string
}

func ParseName(raw string) (Name, error) {
	if strings.TrimSpace(raw) == "" {
		return Name{}, ErrNameEmpty
	}
	if uniseg.GraphemeClusterCount(raw) > MaxNameLength {
		return Name{}, ErrNameTooLong
	}
	for _, r := range raw {
		if strings.ContainsRune(forbiddenNameRunes, r) || unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return Name{}, ErrNameForbiddenCharacter
		}
	}
	return Name{value: raw}, nil
}

func (n Name) String() string { return n.value }

// NewSubscriber is the validated form of a subscription request.
type NewSubscriber struct {
	Email Email
	Name  Name
}

func ParseNewSubscriber(rawEmail, rawName string) (NewSubscriber, error) {
	name, err := ParseName(rawName)
	if err != nil {
		return NewSubscriber{}, err
	}
	email, err := ParseEmail(rawEmail)
	if err != nil {
		return NewSubscriber{}, err
	}
	return NewSubscriber{Email: email, Name: name}, nil
}
