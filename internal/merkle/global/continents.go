// Package global composes per-country multi-layer roots into continental
// and global roots for multi-country deployments, with proof extraction
// helpers that chain a country root up to the global root.
package global

// ContinentTableVersion identifies the continent-to-country mapping a tree
// was built against. Bump it when the table changes; trees record the
// version so verifiers agree on grouping.
const ContinentTableVersion = "2024.1"

// continentOf maps ISO 3166-1 alpha-2 country codes to continent
// identifiers. Only countries the registry deploys to need to appear here;
// an unmapped code is a build error, not a silent bucket.
var continentOf = map[string]string{
	// Africa
	"EG": "AF", "KE": "AF", "NG": "AF", "ZA": "AF",
	// Asia
	"ID": "AS", "IN": "AS", "JP": "AS", "KR": "AS", "PH": "AS", "SG": "AS",
	// Europe
	"CH": "EU", "DE": "EU", "EE": "EU", "ES": "EU", "FR": "EU", "GB": "EU",
	"IE": "EU", "IT": "EU", "NL": "EU", "NO": "EU", "PL": "EU", "SE": "EU",
	// North America
	"CA": "NA", "CR": "NA", "MX": "NA", "US": "NA",
	// Oceania
	"AU": "OC", "NZ": "OC",
	// South America
	"AR": "SA", "BR": "SA", "CL": "SA", "CO": "SA", "UY": "SA",
}

// ContinentOf returns the continent identifier for an ISO country code.
func ContinentOf(countryCode string) (string, bool) {
	continent, ok := continentOf[countryCode]
	return continent, ok
}
