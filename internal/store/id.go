package store

import (
	"crypto/rand"
	"errors"
	"strings"
)

const (
	idAlphabet    = "0123456789abcdefghijklmnopqrstuvwxyz"
	idSuffixLen   = 4
	idMaxAttempts = 20
)

// ErrIDSpaceExhausted means every generated candidate collided.
var ErrIDSpaceExhausted = errors.New("unable to generate unique id")

type idKind string

const (
	kindMedia idKind = "md"
	kindBlob  idKind = "bl"
)

// matches reports whether id is "<kind>-" followed by idSuffixLen base36 characters.
func (k idKind) matches(id string) bool {
	suffix, ok := strings.CutPrefix(id, string(k)+"-")
	if !ok || len(suffix) != idSuffixLen {
		return false
	}
	for i := 0; i < len(suffix); i++ {
		if strings.IndexByte(idAlphabet, suffix[i]) < 0 {
			return false
		}
	}
	return true
}

// IsMediaID reports whether id has the md-xxxx shape.
func IsMediaID(id string) bool {
	return kindMedia.matches(id)
}

// GenerateMediaID returns an unused media id. exists may be nil.
func GenerateMediaID(exists func(string) (bool, error)) (string, error) {
	return newID(kindMedia, exists)
}

// GenerateBlobID returns an unused blob id. exists may be nil.
func GenerateBlobID(exists func(string) (bool, error)) (string, error) {
	return newID(kindBlob, exists)
}

func newID(kind idKind, exists func(string) (bool, error)) (string, error) {
	for attempt := 0; attempt < idMaxAttempts; attempt++ {
		suffix, err := randomSuffix(idSuffixLen)
		if err != nil {
			return "", err
		}
		id := string(kind) + "-" + suffix
		if exists == nil {
			return id, nil
		}
		taken, err := exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrIDSpaceExhausted
}

// randomSuffix draws uniformly from idAlphabet. Bytes at or above the largest
// multiple of the alphabet size are discarded to avoid modulo bias.
func randomSuffix(n int) (string, error) {
	const limit = 256 - 256%len(idAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, idAlphabet[int(b)%len(idAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
