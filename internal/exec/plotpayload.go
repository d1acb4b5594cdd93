// plotpayload.go normalizes plot payloads received from the interpreter.
// Plot libraries wrap the same image bytes in several envelopes (raw SVG,
// HTML wrappers, data URLs); the heuristics here unwrap them before the
// payload is forwarded to the UI or buffered for a notebook cell.
package exec

import "strings"

// minPayloadSize is the smallest payload considered meaningful.
const minPayloadSize = 32

// NormalizePlotPayload unwraps data-URL and HTML-embedded payloads and
// discards empty or meaningless ones. Returns the normalized payload and
// whether it should be kept.
func NormalizePlotPayload(mime, data string) (string, bool) {
	data = strings.TrimSpace(data)
	if len(data) < minPayloadSize {
		return "", false
	}

	// data:image/png;base64,AAAA... -> raw base64 payload.
	if strings.HasPrefix(data, "data:") {
		if idx := strings.Index(data, "base64,"); idx >= 0 {
			payload := data[idx+len("base64,"):]
			if len(payload) < minPayloadSize {
				return "", false
			}
			return payload, true
		}
		return "", false
	}

	// SVG embedded in HTML markup -> the <svg>...</svg> element alone.
	if strings.Contains(data, "<svg") && !strings.HasPrefix(data, "<svg") {
		start := strings.Index(data, "<svg")
		end := strings.LastIndex(data, "</svg>")
		if end > start {
			return data[start : end+len("</svg>")], true
		}
	}

	return data, true
}
