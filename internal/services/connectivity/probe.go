package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Reachability is one reachability sample
type Reachability struct {
	Connected         bool `json:"connected"`
	InternetReachable bool `json:"internetReachable"`
}

// Online reports whether lookups can be attempted
func (r Reachability) Online() bool {
	return r.Connected && r.InternetReachable
}

// Probe samples reachability
type Probe interface {
	Check(ctx context.Context) (Reachability, error)
}

// ProbeFunc adapts a function to Probe
type ProbeFunc func(ctx context.Context) (Reachability, error)

// Check calls f
func (f ProbeFunc) Check(ctx context.Context) (Reachability, error) {
	return f(ctx)
}

// HTTPProbe checks reachability by requesting a small known URL.
// A transport failure means not connected; a 5xx means connected without internet.
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe creates a probe against url with the given timeout
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Check issues a HEAD request to the probe URL
func (p *HTTPProbe) Check(ctx context.Context) (Reachability, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return Reachability{}, fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Reachability{}, nil
	}
	resp.Body.Close()

	return Reachability{
		Connected:         true,
		InternetReachable: resp.StatusCode < http.StatusInternalServerError,
	}, nil
}
