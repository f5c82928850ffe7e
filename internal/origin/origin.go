// Package origin fetches responses from the upstream servers stash caches.
//
// NewTransport builds the shared HTTP transport with optional DNS caching;
// Client wraps it for one upstream and returns fully buffered responses so
// the caller can decide whether to cache them.
package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/eugener/stash/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/eugener/stash/internal/origin")

// MaxBodySize caps upstream response bodies held in memory.
const MaxBodySize = 32 << 20

// ErrBodyTooLarge is returned by Fetch when an upstream body exceeds
// MaxBodySize. Such responses are never buffered partially.
var ErrBodyTooLarge = errors.New("origin: response exceeds body limit")

// NewTransport returns a tuned *http.Transport with connection pooling and
// optional DNS caching.
func NewTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// hopByHop headers that must not be forwarded between client and upstream.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// IsHopByHop reports whether the canonical header key is connection-scoped.
func IsHopByHop(key string) bool {
	_, ok := hopByHopHeaders[key]
	return ok
}

// Response is a buffered upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Client fetches from a single upstream base URL.
type Client struct {
	base   *url.URL
	prefix string
	http   *http.Client
}

// NewClient creates a client for upstream. prefix is stripped from incoming
// request paths before they are joined onto the upstream path.
func NewClient(upstream, prefix string, transport http.RoundTripper, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("origin: parse upstream: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin: upstream %q must be absolute", upstream)
	}
	return &Client{
		base:   u,
		prefix: strings.TrimSuffix(prefix, "/"),
		http:   &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// Target returns the upstream URL for an incoming request.
func (c *Client) Target(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.EscapedPath(), c.prefix)
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	target := strings.TrimSuffix(c.base.String(), "/") + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return target
}

// Fetch forwards r upstream and buffers the response. Hop-by-hop headers are
// dropped in both directions. Bodies larger than MaxBodySize fail with
// ErrBodyTooLarge. The fetch runs in its own span and the trace context is
// forwarded upstream.
func (c *Client) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	target := c.Target(r)
	ctx, span := tracer.Start(ctx, "origin.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", r.Method),
		attribute.String("url.full", target),
	)

	resp, err := c.fetch(ctx, r, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

func (c *Client) fetch(ctx context.Context, r *http.Request, target string) (*Response, error) {
	outReq, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return nil, fmt.Errorf("origin: create request: %w", err)
	}
	for key, vals := range r.Header {
		if IsHopByHop(key) {
			continue
		}
		outReq.Header[key] = vals
	}
	telemetry.InjectHeaders(ctx, outReq.Header)

	resp, err := c.http.Do(outReq)
	if err != nil {
		return nil, fmt.Errorf("origin: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("origin: read response: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrBodyTooLarge, outReq.URL.Path, MaxBodySize)
	}

	header := make(http.Header, len(resp.Header))
	for key, vals := range resp.Header {
		if IsHopByHop(key) {
			continue
		}
		header[key] = vals
	}
	return &Response{StatusCode: resp.StatusCode, Header: header, Body: body}, nil
}
