package httpapi

import (
	"net/mail"
	"strings"
	"unicode"
)

const (
	minNameLen     = 2
	minPasswordLen = 8
	minTokenLen    = 10
)

// validationErrors collects field messages; an empty value means valid.
type validationErrors map[string]string

func (v validationErrors) add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

func (v validationErrors) name(field, s string) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) < minNameLen {
		v.add(field, "please enter your full name")
	}
	return s
}

func (v validationErrors) email(field, s string) string {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndexByte(s, '@')+1:], ".") {
		v.add(field, "a valid email is required")
	}
	return strings.ToLower(s)
}

func (v validationErrors) password(field, s string) {
	if len(s) < minPasswordLen {
		v.add(field, "password must be at least 8 characters long")
		return
	}
	var digit, letter, special bool
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			letter = true
		default:
			special = true
		}
	}
	switch {
	case !digit:
		v.add(field, "password must contain at least one number")
	case !letter:
		v.add(field, "password must contain at least one letter")
	case !special:
		v.add(field, "password must contain at least one special character")
	}
}

func (v validationErrors) confirm(field, password, confirmation string) {
	if password != confirmation {
		v.add(field, "passwords do not match")
	}
}

func (v validationErrors) required(field, s string) {
	if s == "" {
		v.add(field, "required")
	}
}

func (v validationErrors) token(field, s string) string {
	s = strings.TrimSpace(s)
	if len(s) < minTokenLen {
		v.add(field, "invalid token")
	}
	return s
}
