// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package phone normalizes and masks Kenyan mobile numbers.
package phone

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

const (
	CountryCode = "254"
	trunkMobile = "07"
)

var ErrInvalid = errors.New("invalid phone number")

var canonical = regexp.MustCompile(`^2547\d{8}$`)

// ValidationError reports a phone number that could not be normalized.
// Attempted holds the value the rules produced, for diagnostics.
type ValidationError struct {
	Input     string
	Attempted string
}

func (e *ValidationError) Error() string {
	return "invalid phone number: " + e.Attempted + " does not match 2547XXXXXXXX"
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Normalize converts a raw phone number to the canonical 2547XXXXXXXX form.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	switch {
	case strings.HasPrefix(s, trunkMobile):
		s = CountryCode + s[1:]
	case strings.HasPrefix(s, "+"+CountryCode):
		s = s[1:]
	case len(s) == 9 && isDigits(s):
		s = CountryCode + s
	}

	s = strings.Map(func(r rune) rune {
		if r < '0' || r > '9' {
			return -1
		}
		return r
	}, s)

	if !canonical.MatchString(s) {
		return "", &ValidationError{Input: raw, Attempted: s}
	}
	return s, nil
}

// Mask hides the middle digits of a normalized number for logs.
func Mask(p string) string {
	if len(p) < 9 {
		return "***"
	}
	return p[:5] + strings.Repeat("*", len(p)-8) + p[len(p)-3:]
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
