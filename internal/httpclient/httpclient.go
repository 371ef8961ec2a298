// Package httpclient builds the shared HTTP client used by all adapters.
// The request timeout is applied to dial, TLS, and response headers only;
// a whole-request deadline would cut long streams off mid-flight, so body
// read lifetimes are governed by the request context instead.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// New constructs an *http.Client suited to streaming provider APIs.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          64,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
	}
}
