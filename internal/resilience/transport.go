package resilience

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// TransportConfig holds the connection pool and HTTP/2 settings shared by
// every outbound client.
var TransportConfig = struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration

	H2ReadIdleTimeout time.Duration
	H2PingTimeout     time.Duration
}{
	MaxIdleConns:          200,
	MaxIdleConnsPerHost:   50,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	DialTimeout:           30 * time.Second,
	KeepAlive:             30 * time.Second,

	// Streams can sit silent between events; pings keep the connection
	// honest without imposing a read deadline.
	H2ReadIdleTimeout: 30 * time.Second,
	H2PingTimeout:     15 * time.Second,
}

// transportKey identifies a cached transport. Streaming transports differ
// from request transports only by their connect timeout.
type transportKey struct {
	proxyURL       string
	connectTimeout time.Duration
}

func newDialer(connectTimeout time.Duration) *net.Dialer {
	return &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: TransportConfig.KeepAlive,
	}
}

// newBaseTransport builds a pooled transport. It does not set DialContext.
// No ResponseHeaderTimeout is set: the stream service may hold headers until
// the job starts producing events.
func newBaseTransport(connectTimeout time.Duration) *http.Transport {
	tlsTimeout := TransportConfig.TLSHandshakeTimeout
	if connectTimeout > 0 && connectTimeout < tlsTimeout {
		tlsTimeout = connectTimeout
	}
	t := &http.Transport{
		MaxIdleConns:          TransportConfig.MaxIdleConns,
		MaxIdleConnsPerHost:   TransportConfig.MaxIdleConnsPerHost,
		IdleConnTimeout:       TransportConfig.IdleConnTimeout,
		TLSHandshakeTimeout:   tlsTimeout,
		ExpectContinueTimeout: TransportConfig.ExpectContinueTimeout,
		ForceAttemptHTTP2:     true,
		// Bodies are decoded by the caller so br and zstd work alongside gzip.
		DisableCompression: true,
		TLSClientConfig:    &tls.Config{MinVersion: tls.VersionTLS12},
		WriteBufferSize:    32 * 1024,
		ReadBufferSize:     32 * 1024,
	}
	configureHTTP2(t)
	return t
}

func configureHTTP2(transport *http.Transport) {
	h2Transport, err := http2.ConfigureTransports(transport)
	if err != nil {
		return
	}
	h2Transport.ReadIdleTimeout = TransportConfig.H2ReadIdleTimeout
	h2Transport.PingTimeout = TransportConfig.H2PingTimeout
}

// TransportCache hands out one transport per proxy and connect timeout.
type TransportCache struct {
	mu    sync.RWMutex
	cache map[transportKey]*http.Transport
}

func NewTransportCache() *TransportCache {
	return &TransportCache{cache: make(map[transportKey]*http.Transport)}
}

// GetOrCreate returns the cached transport for the key or builds one.
// Supported proxy schemes are http, https and socks5.
func (c *TransportCache) GetOrCreate(proxyURLStr string, connectTimeout time.Duration) (*http.Transport, error) {
	if connectTimeout <= 0 {
		connectTimeout = TransportConfig.DialTimeout
	}
	key := transportKey{proxyURL: proxyURLStr, connectTimeout: connectTimeout}

	c.mu.RLock()
	if t := c.cache[key]; t != nil {
		c.mu.RUnlock()
		return t, nil
	}
	c.mu.RUnlock()

	transport := newBaseTransport(connectTimeout)
	dialer := newDialer(connectTimeout)
	transport.DialContext = dialer.DialContext

	if proxyURLStr != "" {
		proxyURL, err := url.Parse(proxyURLStr)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		switch proxyURL.Scheme {
		case "socks5":
			var auth *proxy.Auth
			if proxyURL.User != nil {
				password, _ := proxyURL.User.Password()
				auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
			}
			socks, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, dialer)
			if err != nil {
				return nil, fmt.Errorf("socks5 proxy: %w", err)
			}
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := socks.(proxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return socks.Dial(network, addr)
			}
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxyURL)
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.cache[key]; existing != nil {
		return existing, nil
	}
	c.cache[key] = transport
	return transport, nil
}

var (
	globalCache     *TransportCache
	globalCacheOnce sync.Once
)

func globalTransportCache() *TransportCache {
	globalCacheOnce.Do(func() {
		globalCache = NewTransportCache()
	})
	return globalCache
}

// NewHTTPClient returns a client for request/response calls bounded by timeout.
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport, err := globalTransportCache().GetOrCreate(proxyURL, 0)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// NewStreamingClient returns a client whose only deadline is the connect
// phase. Reads are unbounded; cancel the request context to stop a stream.
func NewStreamingClient(proxyURL string, connectTimeout time.Duration) (*http.Client, error) {
	transport, err := globalTransportCache().GetOrCreate(proxyURL, connectTimeout)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: transport}, nil
}
