// Package bypass identifies bot-mitigation challenge pages in fallback fetch
// responses. A challenge page parses like any other HTML, so without this
// check the field heuristics would happily "repair" records from a Cloudflare
// interstitial.
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request. It returns the vendor name on detection.
type Detector func(status int, headers http.Header, body []byte) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Analyze runs the response through all provided detectors and returns the
// first hit.
func Analyze(status int, headers http.Header, body []byte, detectors []Detector) (bool, string) {
	for _, d := range detectors {
		if detected, source := d(status, headers, body); detected {
			return true, source
		}
	}
	return false, ""
}

func serverHeader(headers http.Header) string {
	return strings.ToLower(headers.Get("Server"))
}

func detectCloudflare(status int, headers http.Header, body []byte) (bool, string) {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if strings.Contains(serverHeader(headers), "cloudflare") {
			return true, "Cloudflare"
		}
		if bytes.Contains(body, []byte("cf-browser-verification")) ||
			bytes.Contains(body, []byte("cf-turnstile")) ||
			bytes.Contains(body, []byte("Attention Required! | Cloudflare")) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

func detectAkamai(status int, headers http.Header, body []byte) (bool, string) {
	if status == http.StatusForbidden {
		if strings.Contains(serverHeader(headers), "akamai") {
			return true, "Akamai"
		}
		// Akamai block pages carry a generic "Reference #" marker
		if bytes.Contains(body, []byte("Reference #")) && bytes.Contains(body, []byte("Access Denied")) {
			return true, "Akamai"
		}
	}
	return false, ""
}

func detectDataDome(status int, headers http.Header, body []byte) (bool, string) {
	if status == http.StatusForbidden {
		if strings.Contains(serverHeader(headers), "datadome") {
			return true, "DataDome"
		}
		if bytes.Contains(body, []byte("geo.captcha-delivery.com")) {
			return true, "DataDome"
		}
	}
	return false, ""
}

func detectPerimeterX(status int, headers http.Header, body []byte) (bool, string) {
	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		if bytes.Contains(body, []byte("_pxCaptcha")) ||
			bytes.Contains(body, []byte("px-captcha")) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}
