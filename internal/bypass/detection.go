package bypass

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/carsift/carsift/internal/archive"
)

// Detector examines a fetch record to determine if a bot protection
// mechanism blocked or challenged the request. A marketplace search that
// lands on a challenge page must fail the adapter rather than parse as zero
// results.
type Detector func(rec *archive.FetchRecord) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Analyze runs the record through all provided detectors. It updates the
// record in place with the block verdict and returns true if any detection
// triggered.
func Analyze(rec *archive.FetchRecord, detectors []Detector) bool {
	if rec == nil {
		return false
	}
	for _, d := range detectors {
		if detected, source := d(rec); detected {
			rec.Blocked = true
			rec.BlockSrc = source
			return true
		}
	}
	rec.Blocked = false
	rec.BlockSrc = ""
	return false
}

func getHeader(headers map[string][]string, key string) string {
	if vals, ok := headers[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	// Case-insensitive fallback
	lowerKey := strings.ToLower(key)
	for k, vals := range headers {
		if strings.ToLower(k) == lowerKey && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
// The interstitial title is checked regardless of status code: AutoTrader
// serves the challenge page with a 200 when it decides to interrogate a
// client.
func detectCloudflare(rec *archive.FetchRecord) (bool, string) {
	if bytes.Contains(rec.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}

	if rec.StatusCode == http.StatusForbidden || rec.StatusCode == http.StatusServiceUnavailable {
		server := strings.ToLower(getHeader(rec.Headers, "Server"))
		if strings.Contains(server, "cloudflare") {
			return true, "Cloudflare"
		}

		if bytes.Contains(rec.Body, []byte("cf-browser-verification")) ||
			bytes.Contains(rec.Body, []byte("cloudflare-nginx")) ||
			bytes.Contains(rec.Body, []byte("cf-turnstile")) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(rec *archive.FetchRecord) (bool, string) {
	if rec.StatusCode == http.StatusForbidden {
		server := strings.ToLower(getHeader(rec.Headers, "Server"))
		if strings.Contains(server, "akamai") {
			return true, "Akamai"
		}

		// Akamai often returns a generic "Reference #" block page
		if bytes.Contains(rec.Body, []byte("Reference #")) && bytes.Contains(rec.Body, []byte("Access Denied")) {
			return true, "Akamai"
		}
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(rec *archive.FetchRecord) (bool, string) {
	if rec.StatusCode == http.StatusForbidden {
		server := strings.ToLower(getHeader(rec.Headers, "Server"))
		if strings.Contains(server, "datadome") {
			return true, "DataDome"
		}

		if getHeader(rec.Headers, "X-DataDome") != "" || getHeader(rec.Headers, "X-DataDome-Response") != "" {
			return true, "DataDome"
		}

		if bytes.Contains(rec.Body, []byte("geo.captcha-delivery.com")) || bytes.Contains(rec.Body, []byte("datadome")) {
			return true, "DataDome"
		}
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(rec *archive.FetchRecord) (bool, string) {
	if rec.StatusCode == http.StatusForbidden {
		if getHeader(rec.Headers, "X-Px-Captcha") != "" {
			return true, "PerimeterX"
		}

		if bytes.Contains(rec.Body, []byte("client.perimeterx.net")) ||
			bytes.Contains(rec.Body, []byte("px-captcha")) ||
			bytes.Contains(rec.Body, []byte("_pxBlock")) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}
