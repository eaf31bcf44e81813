package spec

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FileName maps a binary or case name to a single path element.
//
// Names are NFC-normalised, path separators and NUL become underscores, and
// the special names "", "." and ".." are prefixed so they cannot escape a
// parent directory. Two names with the same FileName would share artifact
// files, so the loader rejects them as duplicates.
func FileName(name string) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)

	switch name {
	case "", ".", "..":
		return "_" + name
	}
	return name
}
