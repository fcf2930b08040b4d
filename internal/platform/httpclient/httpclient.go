// Package httpclient builds HTTP clients for calls to collaborator services.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// New returns an http.Client with explicit transport limits. Timeout bounds
// the whole request; http.DefaultClient has none and must not be used for
// outbound calls.
func New(timeout time.Duration) *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: t}
}
