package travellermap

import (
	"regexp"
	"strings"

	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
)

// The upstream stamps every sector data file with a comment line like
// "# 2023-05-01T02:08:31+00:00". Left in place it would make every sector
// look modified on every run, so it is stripped before the file is written.
var sectorTimestampPattern = regexp.MustCompile(`^#\s*\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}[+-]\d{2}:\d{2}\s*$`)

// StripSectorTimestamp removes the timestamp comment from a sector data
// body. Exactly one timestamp line must be present; anything else means
// the upstream format changed and the run should fail rather than commit
// a snapshot that churns forever.
func StripSectorTimestamp(body string) (string, error) {
	var out strings.Builder
	out.Grow(len(body))

	removed := 0
	for _, line := range strings.Split(strings.TrimSuffix(body, "\n"), "\n") {
		if sectorTimestampPattern.MatchString(line) {
			removed++
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}

	if removed != 1 {
		return "", apperrors.Wrapf(apperrors.ErrMissingTimestamp, "found %d timestamp lines", removed)
	}

	return out.String(), nil
}
