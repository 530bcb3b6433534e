// Package httppool manages pooled HTTP clients for backend endpoints.
// Each provider instance owns one pool; construction is lazy and
// double-checked so concurrent first callers never build two clients, and
// a closed pool transparently recreates its client on next use.
package httppool

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds connection-pool limits and per-call timeouts.
type Config struct {
	// MaxIdleConnsPerHost 每主机保持的 keep-alive 连接数
	MaxIdleConnsPerHost int
	// MaxConnsPerHost 每主机硬连接上限（0 表示不限制）
	MaxConnsPerHost int
	// IdleConnTimeout keep-alive 连接存活时间
	IdleConnTimeout time.Duration

	// ConnectTimeout 建连超时
	ConnectTimeout time.Duration
	// TLSHandshakeTimeout TLS 握手超时
	TLSHandshakeTimeout time.Duration
	// ResponseHeaderTimeout 等待响应头超时（生成类调用的主要耗时所在）
	ResponseHeaderTimeout time.Duration
	// OverallTimeout 整次调用兜底超时
	OverallTimeout time.Duration

	// RequestsPerSecond 客户端侧限速（0 表示不限速）。
	// 托管端点默认开启，贴合厂商 RPM 上限；本地端点不限速。
	RequestsPerSecond float64
	// Burst 限速突发额度
	Burst int
}

// hostedConfig are the tight defaults for hosted (public) endpoints.
func hostedConfig() Config {
	return Config{
		MaxIdleConnsPerHost:   8,
		MaxConnsPerHost:       32,
		IdleConnTimeout:       90 * time.Second,
		ConnectTimeout:        10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 3 * time.Minute,
		OverallTimeout:        5 * time.Minute,
		RequestsPerSecond:     8,
		Burst:                 16,
	}
}

// localConfig are the generous defaults for loopback/private endpoints,
// where a single box may serve large models slowly but reliably.
func localConfig() Config {
	return Config{
		MaxIdleConnsPerHost:   4,
		MaxConnsPerHost:       16,
		IdleConnTimeout:       5 * time.Minute,
		ConnectTimeout:        30 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ResponseHeaderTimeout: 15 * time.Minute,
		OverallTimeout:        20 * time.Minute,
	}
}

// ConfigForEndpoint selects pool defaults by inspecting the resolved host:
// loopback and private-network hosts get generous (minutes) timeouts,
// hosted endpoints get tight (seconds) connect timeouts plus a client-side
// rate limiter.
func ConfigForEndpoint(endpoint string) Config {
	u, err := url.Parse(endpoint)
	if err != nil {
		return hostedConfig()
	}
	if IsPrivateHost(u.Hostname()) {
		return localConfig()
	}
	return hostedConfig()
}

// IsPrivateHost reports whether the host is loopback, link-local, or on a
// private network.
func IsPrivateHost(host string) bool {
	if host == "" {
		return false
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".local") || strings.HasSuffix(lower, ".internal") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		// 非字面量 IP 的主机名按托管端点处理
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// Pool owns one pooled HTTP client for an endpoint.
type Pool struct {
	endpoint string
	cfg      Config
	logger   *zap.Logger
	limiter  *rate.Limiter

	mu     sync.RWMutex
	client *http.Client
	closed bool
}

// New creates a pool for the endpoint. The client itself is built lazily
// on first use.
func New(endpoint string, cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Pool{
		endpoint: endpoint,
		cfg:      cfg,
		logger:   logger.With(zap.String("endpoint", endpoint)),
		limiter:  limiter,
	}
}

// Client returns the pooled client, building it on first use. A pool that
// was closed recreates the client transparently.
func (p *Pool) Client() *http.Client {
	// fast path
	p.mu.RLock()
	if p.client != nil && !p.closed {
		c := p.client
		p.mu.RUnlock()
		return c
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	// double-check under the write lock
	if p.client != nil && !p.closed {
		return p.client
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   p.cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          p.cfg.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost:   p.cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       p.cfg.MaxConnsPerHost,
		IdleConnTimeout:       p.cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   p.cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: p.cfg.ResponseHeaderTimeout,
	}
	p.client = &http.Client{
		Transport: transport,
		Timeout:   p.cfg.OverallTimeout,
	}
	p.closed = false
	p.logger.Debug("pooled client created",
		zap.Duration("overall_timeout", p.cfg.OverallTimeout),
		zap.Int("max_conns_per_host", p.cfg.MaxConnsPerHost))
	return p.client
}

// Do sends the request through the pooled client, honoring the client-side
// rate limiter when one is configured.
func (p *Pool) Do(req *http.Request) (*http.Response, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	return p.Client().Do(req)
}

// Endpoint returns the endpoint this pool serves.
func (p *Pool) Endpoint() string { return p.endpoint }

// Close releases idle connections and marks the pool closed. Idempotent;
// the next Client() call rebuilds.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.client == nil {
		p.closed = true
		return
	}
	if t, ok := p.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	p.client = nil
	p.closed = true
	p.logger.Debug("pooled client closed")
}
