package travellermap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"

	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
)

// Metadata is the subset of a sector metadata document this updater
// validates. The snapshot stores the upstream bytes, not a re-serialized
// form, so only disambiguated sectors have their metadata modified.
type Metadata struct {
	XMLName xml.Name `xml:"Sector"`
	Names   []string `xml:"Name"`
	X       *int     `xml:"X"`
	Y       *int     `xml:"Y"`
}

// ParseMetadata parses a metadata endpoint response. Parsing doubles as a
// sanity check that the download is well-formed XML.
func ParseMetadata(data []byte) (*Metadata, error) {
	var md Metadata
	if err := xml.Unmarshal(data, &md); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrBadMetadata, "parse metadata: %v", err)
	}

	if len(md.Names) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrBadMetadata, "no Name elements")
	}
	if md.X == nil || md.Y == nil {
		// The downstream application cannot place a sector without a
		// position.
		return nil, apperrors.Wrap(apperrors.ErrBadMetadata, "no X/Y position elements")
	}

	return &md, nil
}

// Validate checks the metadata against the universe entry it was fetched
// for. wantName is the name the metadata itself should carry: the original
// canonical name for disambiguated sectors, the (already disambiguated)
// universe name otherwise. A mismatch means the updater's own conflict
// logic went wrong, so the run fails.
func (md *Metadata) Validate(wantName string, wantX, wantY int) error {
	if md.Names[0] != wantName {
		return apperrors.Wrapf(apperrors.ErrNameMismatch, "metadata name %q, universe name %q", md.Names[0], wantName)
	}
	if *md.X != wantX || *md.Y != wantY {
		return apperrors.Wrapf(apperrors.ErrPositionMismatch,
			"metadata position (%d, %d), universe position (%d, %d)", *md.X, *md.Y, wantX, wantY)
	}
	return nil
}

var firstNamePattern = regexp.MustCompile(`<Name[\s>]`)

// InsertMetadataName inserts a Name element before the first existing one,
// making it canonical while the ambiguous name stays as first alternate.
// The rest of the document is left byte-for-byte as the upstream served it.
func InsertMetadataName(data []byte, name string) ([]byte, error) {
	loc := firstNamePattern.FindIndex(data)
	if loc == nil {
		return nil, apperrors.Wrap(apperrors.ErrBadMetadata, "no Name element to insert before")
	}

	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(name)); err != nil {
		return nil, fmt.Errorf("escape name: %w", err)
	}

	element := fmt.Sprintf("<Name>%s</Name>", escaped.String())

	out := make([]byte, 0, len(data)+len(element))
	out = append(out, data[:loc[0]]...)
	out = append(out, element...)
	out = append(out, data[loc[0]:]...)
	return out, nil
}
