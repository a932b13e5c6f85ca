package utils

import (
	"strings"
	"testing"
)

const testBaseURL = "https://track.example.com"

func TestInjectTrackingAddsPixel(t *testing.T) {
	body := "<html><body><p>Hello</p></body></html>"
	got := InjectTracking(body, testBaseURL, "tok-123")

	pixelURL := OpenPixelURL(testBaseURL, "tok-123")
	if !strings.Contains(got, pixelURL) {
		t.Fatalf("expected pixel URL %q in body, got %q", pixelURL, got)
	}
	if !strings.Contains(got, `</body>`) || strings.Index(got, pixelURL) > strings.Index(got, "</body>") {
		t.Errorf("pixel should be injected before </body>: %q", got)
	}
}

func TestInjectTrackingAppendsPixelWithoutBodyTag(t *testing.T) {
	got := InjectTracking("just a fragment", testBaseURL, "tok-123")
	if !strings.HasSuffix(got, `style="display:none">`) {
		t.Errorf("expected pixel appended at end, got %q", got)
	}
}

func TestInjectTrackingRewritesLinks(t *testing.T) {
	body := `<p><a href="https://example.com/pricing">Pricing</a></p>`
	got := InjectTracking(body, testBaseURL, "tok-123")

	if strings.Contains(got, `href="https://example.com/pricing"`) {
		t.Errorf("original link should be rewritten: %q", got)
	}
	if !strings.Contains(got, testBaseURL+"/click/tok-123?url=") {
		t.Errorf("expected click redirect in body: %q", got)
	}
}

func TestInjectTrackingSkipsAlreadyTrackedLinks(t *testing.T) {
	tracked := ClickTrackURL(testBaseURL, "tok-123", "https://example.com")
	body := `<a href="` + tracked + `">link</a>`
	got := InjectTracking(body, testBaseURL, "tok-123")

	if strings.Count(got, "/click/") != 1 {
		t.Errorf("already tracked link must not be rewrapped: %q", got)
	}
}

func TestInjectTrackingNoTokenIsNoop(t *testing.T) {
	body := `<a href="https://example.com">link</a>`
	if got := InjectTracking(body, testBaseURL, ""); got != body {
		t.Errorf("expected body unchanged without token, got %q", got)
	}
}

func TestClickTrackURLEscapesTarget(t *testing.T) {
	got := ClickTrackURL(testBaseURL, "tok", "https://example.com/a?b=c&d=e")
	if strings.Contains(got, "b=c&d=e") {
		t.Errorf("target query must be escaped: %q", got)
	}
	if !strings.Contains(got, "url=https%3A%2F%2Fexample.com") {
		t.Errorf("unexpected escaping: %q", got)
	}
}

func TestTrackingPixelIsValidPNG(t *testing.T) {
	pixel := TrackingPixel()
	if len(pixel) == 0 {
		t.Fatal("expected pixel bytes")
	}
	if !strings.HasPrefix(string(pixel), "\x89PNG") {
		t.Error("expected PNG signature")
	}
}
