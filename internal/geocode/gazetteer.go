package geocode

import (
	"embed"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

//go:embed data/gazetteer.csv
var gazetteerCSV embed.FS

// place is a single populated point in the offline gazetteer.
type place struct {
	name        string
	countryName string
	admin1Name  string
	point       orb.Point // {lon, lat}
}

// Gazetteer is the offline nearest-city lookup layer (SPEC_FULL.md §4.G). It
// is loaded once at startup from an embedded CSV and never mutated, so
// lookups need no locking.
type Gazetteer struct {
	places []place
}

// LoadGazetteer parses the embedded gazetteer CSV into memory.
func LoadGazetteer() (*Gazetteer, error) {
	f, err := gazetteerCSV.Open("data/gazetteer.csv")
	if err != nil {
		return nil, fmt.Errorf("geocode: opening embedded gazetteer: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("geocode: reading embedded gazetteer: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("geocode: embedded gazetteer has no data rows")
	}

	places := make([]place, 0, len(records)-1)
	for i, rec := range records {
		if i == 0 {
			continue // header
		}
		if len(rec) < 5 {
			continue
		}
		lat, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			continue
		}
		places = append(places, place{
			name:        rec[0],
			countryName: rec[1],
			admin1Name:  rec[2],
			point:       orb.Point{lon, lat},
		})
	}
	return &Gazetteer{places: places}, nil
}

// Lookup returns the country and admin1 names of the nearest gazetteer
// entry to (lat, lon) by haversine distance. A linear scan is used
// deliberately: the gazetteer is sized in the low thousands of rows at
// most, fast enough without any spatial index. There is no distance limit:
// the nearest entry is returned however far away it is, so ok is false only
// for a nil or empty gazetteer.
func (g *Gazetteer) Lookup(lat, lon float64) (countryName, admin1Name string, ok bool) {
	if g == nil || len(g.places) == 0 {
		return "", "", false
	}

	query := orb.Point{lon, lat}
	best := g.places[0]
	bestDist := geo.Distance(query, best.point)
	for _, p := range g.places[1:] {
		d := geo.Distance(query, p.point)
		if d < bestDist {
			bestDist = d
			best = p
		}
	}
	return best.countryName, best.admin1Name, true
}
