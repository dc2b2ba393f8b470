package travellermap

import (
	"fmt"
	"strings"
)

// encodedRunes are the characters percent-encoded when a sector name
// becomes a file name. The set is the union of characters that are illegal
// in file names on Windows, Linux and macOS, plus '%' itself so encoded
// names stay unambiguous.
const encodedRunes = `%/<>:"\|?*`

// EncodeFileName escapes a sector name so it is a valid file name on any
// supported filesystem. Escaping is %-prefixed lowercase hex of the rune.
func EncodeFileName(raw string) string {
	var out strings.Builder
	out.Grow(len(raw))

	for _, r := range raw {
		if strings.ContainsRune(encodedRunes, r) {
			fmt.Fprintf(&out, "%%%x", r)
			continue
		}
		out.WriteRune(r)
	}

	return out.String()
}
