package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// trackingPixelPNG is a 1x1 transparent PNG served for every open-tracking
// hit, recognized or not.
var trackingPixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xdb, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// TrackingPixel returns the fixed response body for the open-tracking
// endpoint.
func TrackingPixel() []byte {
	return trackingPixelPNG
}

// OpenPixelURL builds the open-tracking pixel URL for a recipient.
func OpenPixelURL(baseURL, trackingID string) string {
	return fmt.Sprintf("%s/track-open/%s", baseURL, trackingID)
}

// ClickTrackURL builds a redirecting URL that records a click before sending
// the reader to the original target.
func ClickTrackURL(baseURL, trackingID, originalURL string) string {
	return fmt.Sprintf("%s/click/%s?url=%s", baseURL, trackingID, url.QueryEscape(originalURL))
}

// InjectTracking rewrites links through the click redirect and appends the
// open pixel to an HTML body. A missing tracking id leaves the body as-is.
func InjectTracking(htmlBody, baseURL, trackingID string) string {
	if trackingID == "" {
		return htmlBody
	}

	modified := injectClickTracking(htmlBody, baseURL, trackingID)

	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`, OpenPixelURL(baseURL, trackingID))
	if idx := strings.Index(strings.ToLower(modified), "</body>"); idx != -1 {
		return modified[:idx] + pixel + modified[idx:]
	}
	return modified + pixel
}

func injectClickTracking(html, baseURL, trackingID string) string {
	// Simplified rewriting; an HTML parser would be sturdier but links in
	// campaign templates are flat anchor tags in practice.
	const startTag = `<a href="`
	const endTag = `"`
	offset := 0

	for {
		startIdx := strings.Index(html[offset:], startTag)
		if startIdx == -1 {
			break
		}
		startIdx += offset + len(startTag)

		endIdx := strings.Index(html[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		originalURL := html[startIdx:endIdx]
		if strings.HasPrefix(originalURL, baseURL+"/click/") || strings.HasPrefix(originalURL, baseURL+"/track-open/") {
			offset = endIdx
			continue
		}
		trackedURL := ClickTrackURL(baseURL, trackingID, originalURL)

		html = html[:startIdx] + trackedURL + html[endIdx:]
		offset = startIdx + len(trackedURL)
	}

	return html
}
