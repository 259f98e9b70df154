package geocode

import "strings"

// countryNameToISO2 maps a resolver's free-text country name to its ISO
// 3166-1 alpha-2 code (lowercase). Both the offline gazetteer and the
// online resolver funnel through this table, so there is exactly one place
// that knows "United States" means "us".
//
// Extend this table as new regions are deployed.
var countryNameToISO2 = map[string]string{
	"united states":      "us",
	"united states of america": "us",
	"australia":          "au",
	"canada":             "ca",
	"united kingdom":     "gb",
	"germany":            "de",
	"france":             "fr",
	"spain":              "es",
	"italy":              "it",
	"netherlands":        "nl",
	"new zealand":        "nz",
	"japan":              "jp",
	"south africa":       "za",
	"brazil":             "br",
	"india":              "in",
	"mexico":             "mx",
}

// admin1Key identifies a first-level administrative division by its
// already-resolved country code plus the resolver's free-text name for the
// division (a state, province, or similar), per SPEC_FULL.md §4.G.
type admin1Key struct {
	countryCode string
	admin1Name  string
}

// admin1NameToISO3166_2 maps (country code, admin1 name) to the ISO 3166-2
// code without its country prefix (e.g. "us"+"California" -> "ca").
var admin1NameToISO3166_2 = map[admin1Key]string{
	{"us", "california"}:   "ca",
	{"us", "washington"}:   "wa",
	{"us", "oregon"}:       "or",
	{"us", "texas"}:        "tx",
	{"us", "new york"}:     "ny",
	{"au", "new south wales"}: "nsw",
	{"au", "victoria"}:     "vic",
	{"au", "queensland"}:   "qld",
	{"au", "western australia"}: "wa",
	{"au", "south australia"}: "sa",
	{"ca", "ontario"}:      "on",
	{"ca", "british columbia"}: "bc",
	{"ca", "quebec"}:       "qc",
	{"gb", "england"}:      "eng",
	{"gb", "scotland"}:     "sct",
	{"de", "bavaria"}:      "by",
	{"de", "berlin"}:       "be",
	{"nz", "auckland"}:     "auk",
}

// CountryCode resolves a free-text country name to its ISO2 code; it
// returns ("", false) if the name is not in the table.
func CountryCode(name string) (string, bool) {
	code, ok := countryNameToISO2[normalize(name)]
	return code, ok
}

// SubdivisionCode resolves a free-text admin1 name, given an
// already-resolved country code, to its ISO 3166-2 suffix.
func SubdivisionCode(countryCode, admin1Name string) (string, bool) {
	code, ok := admin1NameToISO3166_2[admin1Key{countryCode: normalize(countryCode), admin1Name: normalize(admin1Name)}]
	return code, ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
