package httpx

import (
	"net/http"
	"time"
)

type Option func(*clientConfig)

type TransportFunc func(http.RoundTripper) http.RoundTripper

type clientConfig struct {
	dialTimeout           time.Duration
	requestTimeout        time.Duration
	keepAlive             time.Duration
	tlsHandshakeTimeout   time.Duration
	responseHeaderTimeout time.Duration
	idleConnTimeout       time.Duration
	maxIdleConnsPerHost   int
	maxBodySize           int64
	transports            []TransportFunc
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		dialTimeout:           10 * time.Second,
		requestTimeout:        30 * time.Second,
		keepAlive:             90 * time.Second,
		tlsHandshakeTimeout:   10 * time.Second,
		responseHeaderTimeout: 20 * time.Second,
		idleConnTimeout:       90 * time.Second,
		maxIdleConnsPerHost:   10,
		maxBodySize:           10 << 20,
	}
}

// WithRequestTimeout bounds the whole exchange. Callers should still pass a
// context deadline; the shorter of the two wins.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.requestTimeout = timeout
	}
}

func WithDialTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.dialTimeout = timeout
	}
}

func WithResponseHeaderTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.responseHeaderTimeout = timeout
	}
}

func WithMaxIdleConnsPerHost(n int) Option {
	return func(c *clientConfig) {
		c.maxIdleConnsPerHost = n
	}
}

// WithMaxBodySize caps how many response bytes are read.
func WithMaxBodySize(n int64) Option {
	return func(c *clientConfig) {
		c.maxBodySize = n
	}
}

func WithTransport(transport TransportFunc) Option {
	return func(c *clientConfig) {
		c.transports = append(c.transports, transport)
	}
}
