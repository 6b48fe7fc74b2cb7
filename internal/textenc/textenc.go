// Package textenc decodes legacy-encoded attribute text for one import.
//
// A Scope is acquired per import call and released when the read is done.
// Scopes share nothing, so concurrent imports can use different encodings.
package textenc

import (
	"errors"
	"strings"
	"sync"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// ErrReleased is returned by Decode after Release.
var ErrReleased = errors.New("textenc: scope released")

// Scope decodes text through one encoding. The zero hint yields a
// pass-through scope.
type Scope struct {
	mu       sync.Mutex
	name     string
	enc      encoding.Encoding
	released bool
}

// Acquire returns a scope for the named encoding. Names are resolved
// through the WHATWG index first and the IANA registry second, so both
// "cp1251" and "windows-1251" are accepted.
func Acquire(hint string) (*Scope, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return &Scope{}, nil
	}

	enc, err := lookup(hint)
	if err != nil {
		return nil, lerrors.Wrap(lerrors.ErrCategoryFormat, lerrors.CodeUnknownEncoding,
			"unknown encoding "+hint, err)
	}
	return &Scope{name: hint, enc: enc}, nil
}

func lookup(name string) (encoding.Encoding, error) {
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, errors.New("encoding not supported")
	}
	return enc, nil
}

// Name returns the hint the scope was acquired with.
func (s *Scope) Name() string { return s.name }

// PassThrough reports whether the scope leaves bytes untouched.
func (s *Scope) PassThrough() bool { return s.enc == nil }

// Decode converts raw legacy bytes held in a string to UTF-8.
func (s *Scope) Decode(raw string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return "", ErrReleased
	}
	if s.enc == nil {
		return raw, nil
	}
	return s.enc.NewDecoder().String(raw)
}

// Release ends the scope. It is safe to call more than once.
func (s *Scope) Release() {
	s.mu.Lock()
	s.released = true
	s.enc = nil
	s.mu.Unlock()
}
