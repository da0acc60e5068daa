// Package idgen provides pluggable string identifier generation.
//
// Constructors that name things (evidence files, trace ids) accept a
// Generator so the naming strategy is a startup-time decision.
package idgen

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator that produces base-36 IDs of the given length.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// Short returns the first n characters of a random UUID v4, hyphen free.
// Used for compact, collision-resistant name suffixes.
func Short(n int) Generator {
	return func() string {
		id := uuid.New()
		s := make([]byte, 0, 32)
		for _, c := range id.String() {
			if c != '-' {
				s = append(s, byte(c))
			}
		}
		if n > len(s) {
			n = len(s)
		}
		return string(s[:n])
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Timestamped returns a Generator producing "<now in layout>_<suffix>".
// The clock is injectable for tests; nil means time.Now.
func Timestamped(layout string, now func() time.Time, gen Generator) Generator {
	if now == nil {
		now = time.Now
	}
	return func() string {
		return now().UTC().Format(layout) + "_" + gen()
	}
}
