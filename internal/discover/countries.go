package discover

import "strings"

// listingPrefix is the hosting prefix every generated listing URL must carry.
const listingPrefix = "https://www.booking.com/hotel/"

// minURLSegments is the structural floor for a listing URL:
// scheme + empty + host + "hotel" + country code + page.
const minURLSegments = 5

// countryCodes maps common country names to the two-letter codes used in
// listing URLs.
var countryCodes = map[string]string{
	"united states":        "us",
	"usa":                  "us",
	"united kingdom":       "gb",
	"uk":                   "gb",
	"france":               "fr",
	"spain":                "es",
	"italy":                "it",
	"germany":              "de",
	"japan":                "jp",
	"china":                "cn",
	"australia":            "au",
	"canada":               "ca",
	"india":                "in",
	"brazil":               "br",
	"mexico":               "mx",
	"singapore":            "sg",
	"thailand":             "th",
	"united arab emirates": "ae",
	"uae":                  "ae",
	"south africa":         "za",
}

// CountryCode returns the two-letter code for a country name, defaulting to
// "us" when the country is unrecognized.
func CountryCode(country string) string {
	if code, ok := countryCodes[strings.ToLower(strings.TrimSpace(country))]; ok {
		return code
	}
	return "us"
}

// ValidListingURL reports whether a URL structurally looks like a hotel
// listing page: the expected hosting prefix and enough path segments.
func ValidListingURL(url string) bool {
	if url == "" {
		return false
	}
	if !strings.HasPrefix(url, listingPrefix) {
		return false
	}
	return len(strings.Split(url, "/")) >= minURLSegments
}

// BuildListingURL reconstructs a listing URL from a hotel name and a
// "City, Country" location. Returns "" when no name is available.
func BuildListingURL(name, location string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	country := ""
	if location != "" {
		parts := strings.Split(location, ",")
		country = strings.TrimSpace(parts[len(parts)-1])
	}

	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "'", "")
	slug = strings.ReplaceAll(slug, ",", "")

	return listingPrefix + CountryCode(country) + "/" + slug + ".html"
}
