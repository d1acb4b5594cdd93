package exec

import (
	"strings"
	"testing"
)

func TestNormalizeDiscardsSmallPayloads(t *testing.T) {
	if _, keep := NormalizePlotPayload("image/svg+xml", ""); keep {
		t.Error("empty payload should be discarded")
	}
	if _, keep := NormalizePlotPayload("image/svg+xml", "<svg/>"); keep {
		t.Error("tiny payload should be discarded")
	}
}

func TestNormalizeDataURL(t *testing.T) {
	payload := strings.Repeat("A", 64)
	data, keep := NormalizePlotPayload("image/png", "data:image/png;base64,"+payload)
	if !keep {
		t.Fatal("data URL payload should be kept")
	}
	if data != payload {
		t.Errorf("expected raw base64 payload, got %q", data)
	}
}

func TestNormalizeDataURLWithoutBase64(t *testing.T) {
	if _, keep := NormalizePlotPayload("image/png", "data:image/png,"+strings.Repeat("x", 64)); keep {
		t.Error("non-base64 data URL should be discarded")
	}
}

func TestNormalizeHTMLWrappedSVG(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg"><rect width="10" height="10"/></svg>`
	wrapped := `<html><body><div class="plot">` + svg + `</div></body></html>`

	data, keep := NormalizePlotPayload("text/html", wrapped)
	if !keep {
		t.Fatal("wrapped SVG should be kept")
	}
	if data != svg {
		t.Errorf("expected bare SVG, got %q", data)
	}
}

func TestNormalizePassThrough(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg"><circle r="5"/></svg>`
	data, keep := NormalizePlotPayload("image/svg+xml", svg)
	if !keep || data != svg {
		t.Errorf("raw SVG should pass through unchanged, got %q (keep=%v)", data, keep)
	}
}
