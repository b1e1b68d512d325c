// Package classify decides whether a file's contents are text worth indexing
// and is the sole authority on canonical path form: forward-slash,
// repository-root-relative, with no "." or ".." components. Binary detection
// sniffs content (a null byte, or a high ratio of invalid UTF-8, in a bounded
// probe) rather than trusting file extensions, since a renamed or
// extensionless file must still classify correctly. No magic-number table is
// consulted.
package classify

import (
	"unicode/utf8"
)

// Class is the outcome of classifying a file.
type Class int

const (
	Text Class = iota
	Binary
)

func (c Class) String() string {
	if c == Text {
		return "text"
	}
	return "binary"
}

// invalidUTF8RatioLimit is the fraction of a probe buffer that may be
// undecodable before the file is rejected as binary. Isolated invalid
// sequences (e.g. a stray high byte in an otherwise clean file) are
// tolerated; a high ratio is not.
const invalidUTF8RatioLimit = 0.30

// Classifier applies the probe-size and max-size limits of a project to the
// content-based heuristic.
type Classifier struct {
	// ProbeSize bounds how many bytes are read to sniff content (S_probe).
	ProbeSize int64
	// MaxFileSize rejects any file above this size outright (S_max).
	MaxFileSize int64
}

// New builds a Classifier with the given probe and max-size limits.
func New(probeSize, maxFileSize int64) *Classifier {
	return &Classifier{ProbeSize: probeSize, MaxFileSize: maxFileSize}
}

// Classify decides Text or Binary for a file of the given total size, given
// a probe buffer already read from its start (at most ProbeSize bytes).
func (c *Classifier) Classify(size int64, probe []byte) Class {
	if c.MaxFileSize > 0 && size > c.MaxFileSize {
		return Binary
	}
	if ProbeLooksBinary(probe) {
		return Binary
	}
	return Text
}

// ProbeLooksBinary applies the content heuristic alone, independent of file
// size: a null byte anywhere in the probe, or invalid UTF-8 covering more
// than invalidUTF8RatioLimit of the probe, marks the content as binary.
func ProbeLooksBinary(probe []byte) bool {
	if len(probe) == 0 {
		return false
	}

	invalid := 0
	for i := 0; i < len(probe); {
		if probe[i] == 0x00 {
			return true
		}
		r, size := utf8.DecodeRune(probe[i:])
		if r == utf8.RuneError && size <= 1 {
			invalid++
			i++
			continue
		}
		i += size
	}

	return float64(invalid)/float64(len(probe)) > invalidUTF8RatioLimit
}
