package travellermap

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
)

// Universe is a milieu's sector listing as returned by the universe
// endpoint. The document is kept as generic JSON so fields this updater
// does not understand survive the round trip into the snapshot.
type Universe struct {
	doc     map[string]any
	sectors []*Sector
}

// Sector wraps one entry of the universe Sectors array. Mutations write
// through to the enclosing Universe document.
type Sector struct {
	raw map[string]any
}

// ParseUniverse parses a universe endpoint response.
func ParseUniverse(data []byte) (*Universe, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse universe: %w", err)
	}

	rawSectors, ok := doc["Sectors"].([]any)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrBadUniverse, "universe has no Sectors list")
	}

	u := &Universe{doc: doc}
	for i, entry := range rawSectors {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, apperrors.Wrapf(apperrors.ErrBadUniverse, "sector entry %d is not an object", i)
		}
		sector := &Sector{raw: m}
		if sector.Name() == "" {
			return nil, apperrors.Wrapf(apperrors.ErrBadUniverse, "sector entry %d has no name", i)
		}
		if _, err := sector.position(); err != nil {
			return nil, apperrors.Wrapf(err, "sector %q", sector.Name())
		}
		u.sectors = append(u.sectors, sector)
	}

	return u, nil
}

// Sectors returns the sectors in listing order.
func (u *Universe) Sectors() []*Sector {
	return u.sectors
}

// Marshal serializes the universe document with minimal whitespace, the
// form stored in the snapshot.
func (u *Universe) Marshal() ([]byte, error) {
	return json.Marshal(u.doc)
}

// Name returns the canonical (first) name of the sector.
func (s *Sector) Name() string {
	names, _ := s.raw["Names"].([]any)
	if len(names) == 0 {
		return ""
	}
	first, _ := names[0].(map[string]any)
	text, _ := first["Text"].(string)
	return text
}

type position struct{ x, y int }

func (s *Sector) position() (position, error) {
	x, okX := s.raw["X"].(float64)
	y, okY := s.raw["Y"].(float64)
	if !okX || !okY {
		return position{}, apperrors.Wrap(apperrors.ErrBadUniverse, "sector has no position")
	}
	return position{x: int(x), y: int(y)}, nil
}

// X returns the sector's X coordinate.
func (s *Sector) X() int {
	p, _ := s.position()
	return p.x
}

// Y returns the sector's Y coordinate.
func (s *Sector) Y() int {
	p, _ := s.position()
	return p.y
}

// Tags returns the sector's space-separated tag list.
func (s *Sector) Tags() []string {
	tags, _ := s.raw["Tags"].(string)
	if tags == "" {
		return nil
	}
	return strings.Split(tags, " ")
}

// IsOfficial reports whether the sector carries the OTU tag. Sectors in
// review count as official here.
func (s *Sector) IsOfficial() bool {
	for _, tag := range s.Tags() {
		if tag == "OTU" {
			return true
		}
	}
	return false
}

// InsertName prepends a name so it becomes canonical. The previous
// canonical name survives as the first alternate.
func (s *Sector) InsertName(name string) {
	names, _ := s.raw["Names"].([]any)
	updated := make([]any, 0, len(names)+1)
	updated = append(updated, map[string]any{"Text": name})
	updated = append(updated, names...)
	s.raw["Names"] = updated
}

// ResolveNameConflicts disambiguates duplicate sector names within the
// universe. Comparison is case-insensitive because sector names become
// file names on Windows.
//
// When several sectors share a name and exactly one of them is official,
// the official sector keeps the name and the rest are renamed
// "Name (X, Y)". When no (or more than one) official sector holds the
// name, every holder is renamed.
//
// The returned map is disambiguated name -> original canonical name, used
// later to validate sector metadata.
func ResolveNameConflicts(u *Universe) (map[string]string, error) {
	byLowerName := make(map[string][]*Sector)
	for _, sector := range u.Sectors() {
		key := strings.ToLower(sector.Name())
		byLowerName[key] = append(byLowerName[key], sector)
	}

	mappings := make(map[string]string)
	for _, group := range byLowerName {
		if len(group) <= 1 {
			continue
		}

		var official []*Sector
		for _, sector := range group {
			if sector.IsOfficial() {
				official = append(official, sector)
			}
		}

		for _, sector := range group {
			if len(official) == 1 && sector == official[0] {
				continue
			}

			canonical := sector.Name()
			disambiguated := fmt.Sprintf("%s (%d, %d)", canonical, sector.X(), sector.Y())

			// A collision with a name already in the universe would
			// silently merge two sectors into one file. Fail the run
			// instead.
			if _, exists := byLowerName[strings.ToLower(disambiguated)]; exists {
				return nil, apperrors.Wrapf(apperrors.ErrNameCollision, "%q", disambiguated)
			}

			sector.InsertName(disambiguated)
			mappings[disambiguated] = canonical
		}
	}

	return mappings, nil
}
