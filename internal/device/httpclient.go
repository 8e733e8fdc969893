package device

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultTimeout         = 4 * time.Second
	defaultDialTimeout     = 3 * time.Second
	defaultIdleConnTimeout = 30 * time.Second
)

// NewHTTPClient returns an HTTP client bounded by timeout. The controller is a
// small embedded web server, so a couple of idle connections are plenty.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	dialTimeout := timeout
	if dialTimeout > defaultDialTimeout {
		dialTimeout = defaultDialTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          4,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       defaultIdleConnTimeout,
			ResponseHeaderTimeout: timeout,
		},
	}
}
