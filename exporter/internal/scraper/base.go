package scraper

import (
	"net/http"
	"time"
)

// userAgentRoundTripper stamps every outgoing request with the exporter's
// User-Agent.
type userAgentRoundTripper struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// NewHTTPClient returns the client used for every outbound call. timeout
// bounds each request including reading the body.
func NewHTTPClient(timeout time.Duration, userAgent string) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &http.Client{
		Transport: &userAgentRoundTripper{base: transport, userAgent: userAgent},
		Timeout:   timeout,
	}
}
