// Package travellermap models the upstream web API: endpoint URLs, the
// universe listing, sector data files, and sector metadata.
package travellermap

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoints builds URLs for the upstream API.
type Endpoints struct {
	base string
}

// NewEndpoints creates an Endpoints for the given base URL.
func NewEndpoints(baseURL string) Endpoints {
	return Endpoints{base: strings.TrimRight(baseURL, "/")}
}

// Sophonts returns the URL of the sophont listing.
func (e Endpoints) Sophonts() string {
	return e.base + "/t5ss/sophonts"
}

// Allegiances returns the URL of the allegiance listing.
func (e Endpoints) Allegiances() string {
	return e.base + "/t5ss/allegiances"
}

// Mains returns the URL of the mains resource file.
func (e Endpoints) Mains() string {
	return e.base + "/res/mains.json"
}

// Universe returns the URL of a milieu's universe listing. requireData=1
// restricts the listing to sectors that actually have sector data.
func (e Endpoints) Universe(milieu string) string {
	q := url.Values{}
	q.Set("milieu", milieu)
	q.Set("requireData", "1")
	return e.base + "/api/universe?" + q.Encode()
}

// SectorData returns the URL of a sector's Second Survey data file.
// Sectors are requested by position rather than name so duplicate names
// within a milieu cannot be served the wrong sector.
func (e Endpoints) SectorData(x, y int, milieu string) string {
	q := url.Values{}
	q.Set("sx", fmt.Sprintf("%d", x))
	q.Set("sy", fmt.Sprintf("%d", y))
	q.Set("milieu", milieu)
	q.Set("type", "SecondSurvey")
	return e.base + "/api/sec?" + q.Encode()
}

// Metadata returns the URL of a sector's metadata, again by position.
func (e Endpoints) Metadata(x, y int, milieu string) string {
	q := url.Values{}
	q.Set("sx", fmt.Sprintf("%d", x))
	q.Set("sy", fmt.Sprintf("%d", y))
	q.Set("milieu", milieu)
	q.Set("accept", "text/xml")
	return e.base + "/api/metadata?" + q.Encode()
}
