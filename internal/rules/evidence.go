package rules

import "net/http"

// maxBodyBytes caps how much response body a rule ever sees. Oversized
// bodies are truncated before matching so a pathological response cannot
// stall or crash the engine.
const maxBodyBytes = 1 << 20

// Evidence anchors name the part of the evidence a rule matched on.
const (
	AnchorResponseBody = "response_body"
	AnchorHeaders      = "headers"
	AnchorURL          = "url"
)

// Evidence bundles everything captured from one probe of one endpoint.
// Rules treat it as read-only.
type Evidence struct {
	EndpointKey     string
	Method          string
	URL             string
	StatusCode      int
	RequestHeaders  http.Header
	ResponseHeaders http.Header
	RequestBody     string
	ResponseBody    string

	// Canary is the marker value the probe injected into the request,
	// used by the reflected-input rule.
	Canary string
}

// Body returns the response body clamped to maxBodyBytes.
func (ev *Evidence) Body() string {
	if len(ev.ResponseBody) > maxBodyBytes {
		return ev.ResponseBody[:maxBodyBytes]
	}
	return ev.ResponseBody
}

// Header returns the first value of a response header, or "".
func (ev *Evidence) Header(name string) string {
	if ev.ResponseHeaders == nil {
		return ""
	}
	return ev.ResponseHeaders.Get(name)
}
