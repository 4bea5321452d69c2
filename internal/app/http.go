package app

import (
	"net"
	"net/http"
	"time"
)

// newBackendHTTPClient returns the transport shared by the extraction and
// simplification clients. Simplification can take minutes on CPU backends,
// so the overall deadline comes from the per-request timeout rather than the
// client.
func newBackendHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 10 * time.Minute,
	}
	return &http.Client{Transport: transport}
}
