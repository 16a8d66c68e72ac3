package discover

import "testing"

func TestCountryCode(t *testing.T) {
	cases := []struct {
		country string
		want    string
	}{
		{"United States", "us"},
		{"  uk  ", "gb"},
		{"Singapore", "sg"},
		{"Atlantis", "us"}, // unknown defaults to us
		{"", "us"},
	}
	for _, c := range cases {
		if got := CountryCode(c.country); got != c.want {
			t.Errorf("CountryCode(%q) = %q, want %q", c.country, got, c.want)
		}
	}
}

func TestValidListingURL(t *testing.T) {
	valid := []string{
		"https://www.booking.com/hotel/us/the-plaza.html",
		"https://www.booking.com/hotel/gb/the-ritz-london.html",
	}
	for _, u := range valid {
		if !ValidListingURL(u) {
			t.Errorf("expected valid: %s", u)
		}
	}

	invalid := []string{
		"",
		"https://example.com/hotel/us/the-plaza.html",
		"https://www.booking.com/hotel",
		"http://www.booking.com/hotel/us/x.html", // scheme matters for the prefix
	}
	for _, u := range invalid {
		if ValidListingURL(u) {
			t.Errorf("expected invalid: %s", u)
		}
	}
}

func TestBuildListingURL(t *testing.T) {
	got := BuildListingURL("The Ritz London", "London, United Kingdom")
	want := "https://www.booking.com/hotel/gb/the-ritz-london.html"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	got = BuildListingURL("Chef's Palace Hotel", "")
	want = "https://www.booking.com/hotel/us/chefs-palace-hotel.html"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	if got := BuildListingURL("", "Paris, France"); got != "" {
		t.Errorf("no name must yield no URL, got %s", got)
	}
}
