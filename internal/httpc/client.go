// Package httpc builds the HTTP clients Perception uses for the detection
// backend and speech services.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// UserAgent is sent on every request that does not set its own.
const UserAgent = "Perception/1.0"

// Transport limits. Frames go to one backend host, so a handful of idle
// connections is enough.
const (
	ConnectTimeout  = 5 * time.Second
	IdleConnTimeout = 90 * time.Second
	maxIdlePerHost  = 4
)

// NewClient returns a client whose requests time out after timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: userAgent{next: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConnsPerHost:   maxIdlePerHost,
			IdleConnTimeout:       IdleConnTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
		}},
	}
}

type userAgent struct {
	next http.RoundTripper
}

func (t userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	return t.next.RoundTrip(req)
}
