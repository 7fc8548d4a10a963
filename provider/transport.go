package provider

import (
	"net/http"
	"time"
)

// TransportConfig tunes the HTTP transport owned by one pooled client.
type TransportConfig struct {
	// MaxIdleConns caps idle keep-alive connections. Zero uses 10.
	MaxIdleConns int

	// IdleConnTimeout closes idle connections after this long. Zero uses 90s.
	IdleConnTimeout time.Duration

	// Timeout bounds each request including reading the body. Zero disables it.
	Timeout time.Duration
}

// NewHTTPClient builds an http.Client with a dedicated transport.
func NewHTTPClient(cfg TransportConfig) (*http.Client, *http.Transport) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 10
	t.MaxIdleConnsPerHost = 10
	t.IdleConnTimeout = 90 * time.Second
	if cfg.MaxIdleConns > 0 {
		t.MaxIdleConns = cfg.MaxIdleConns
		t.MaxIdleConnsPerHost = cfg.MaxIdleConns
	}
	if cfg.IdleConnTimeout > 0 {
		t.IdleConnTimeout = cfg.IdleConnTimeout
	}

	return &http.Client{Transport: t, Timeout: cfg.Timeout}, t
}
