// Package fingerprints recognizes well-known C and C++ libraries from the
// traces they leave in a build: include paths, header names and link
// library names.
//
// The database ships embedded in the binary as fingerprints.toml.
package fingerprints

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed fingerprints.toml
var rawDB []byte

// Library describes how to recognize one library.
type Library struct {
	Name        string   `toml:"name"`
	Segments    []string `toml:"segments"`
	Headers     []string `toml:"headers"`
	PURL        string   `toml:"purl"`
	Description string   `toml:"description"`
}

// DB is a parsed fingerprint database.
type DB struct {
	Libraries []Library `toml:"library"`
	Stdlib    struct {
		C       []string `toml:"c"`
		POSIX   []string `toml:"posix"`
		Windows []string `toml:"windows"`
		CXX     []string `toml:"cxx"`
	} `toml:"stdlib"`

	stdlib map[string]bool
}

// Parse decodes a fingerprint database in TOML form.
func Parse(data []byte) (*DB, error) {
	var db DB
	if _, err := toml.Decode(string(data), &db); err != nil {
		return nil, fmt.Errorf("decode fingerprints: %w", err)
	}
	db.stdlib = make(map[string]bool)
	for _, group := range [][]string{db.Stdlib.C, db.Stdlib.POSIX, db.Stdlib.Windows, db.Stdlib.CXX} {
		for _, h := range group {
			db.stdlib[h] = true
		}
	}
	return &db, nil
}

var (
	defaultDB   *DB
	defaultOnce sync.Once
)

// Default returns the embedded database. It panics if the embedded file is
// malformed, which is caught by the package tests.
func Default() *DB {
	defaultOnce.Do(func() {
		db, err := Parse(rawDB)
		if err != nil {
			panic(err)
		}
		defaultDB = db
	})
	return defaultDB
}

// Match returns the first library in the default database that matches s.
func Match(s string) *Library { return Default().Match(s) }

// IsStdlibHeader reports whether include names a standard C, C++, POSIX or
// Windows SDK header in the default database.
func IsStdlibHeader(include string) bool { return Default().IsStdlibHeader(include) }

// Match returns the first library whose path segments or headers occur in s,
// compared case-insensitively. Segments of three characters or fewer must
// sit on a token boundary, so "libuv" matches uv but "ultraviolet" does not.
func (db *DB) Match(s string) *Library {
	lower := strings.ToLower(s)
	for i := range db.Libraries {
		lib := &db.Libraries[i]
		for _, seg := range lib.Segments {
			if containsSegment(lower, strings.ToLower(seg)) {
				return lib
			}
		}
		for _, hdr := range lib.Headers {
			if strings.Contains(lower, strings.ToLower(hdr)) {
				return lib
			}
		}
	}
	return nil
}

// Find returns the library with the given canonical name.
func (db *DB) Find(name string) *Library {
	for i := range db.Libraries {
		if strings.EqualFold(db.Libraries[i].Name, name) {
			return &db.Libraries[i]
		}
	}
	return nil
}

// IsStdlibHeader reports whether include names a standard header.
func (db *DB) IsStdlibHeader(include string) bool {
	return db.stdlib[strings.TrimSpace(include)]
}

func containsSegment(s, seg string) bool {
	if seg == "" {
		return false
	}
	if len(seg) > 3 {
		return strings.Contains(s, seg)
	}
	for from := 0; ; {
		i := strings.Index(s[from:], seg)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(seg)
		if leftBoundary(s, start) && rightBoundary(s, end) {
			return true
		}
		from = start + 1
	}
}

// leftBoundary accepts a match at the start of s, after a non-alphanumeric
// byte, or directly after a "lib" prefix that itself starts a token.
func leftBoundary(s string, i int) bool {
	if i == 0 || !isAlnum(s[i-1]) {
		return true
	}
	if i >= 3 && s[i-3:i] == "lib" {
		return i == 3 || !isAlnum(s[i-4])
	}
	return false
}

// rightBoundary accepts a match at the end of s or before a non-letter, so
// version suffixes such as "png16" still count.
func rightBoundary(s string, i int) bool {
	return i == len(s) || !isLetter(s[i])
}

func isLetter(b byte) bool { return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' }
func isAlnum(b byte) bool  { return isLetter(b) || b >= '0' && b <= '9' }
