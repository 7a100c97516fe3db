package http

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"

	"github.com/samirrijal/loadgen/internal/core/domain"
)

// TransportError is a request that never produced a response. Its message is
// a short code (ETIMEDOUT, ECONNREFUSED, ...) so summaries group by cause.
type TransportError struct {
	Code string
	Err  error
}

func (e *TransportError) Error() string { return e.Code }
func (e *TransportError) Unwrap() error { return e.Err }

// ClientOption customises a Client.
type ClientOption func(*fasthttp.Client)

// WithDial replaces the dialer, e.g. with an in-memory listener in tests.
func WithDial(dial fasthttp.DialFunc) ClientOption {
	return func(c *fasthttp.Client) { c.Dial = dial }
}

// WithMaxConnsPerHost caps open connections to the target.
func WithMaxConnsPerHost(n int) ClientOption {
	return func(c *fasthttp.Client) { c.MaxConnsPerHost = n }
}

// Client implements ports.Requester with fasthttp.
type Client struct {
	client  *fasthttp.Client
	timeout time.Duration
}

// NewClient creates a client whose requests time out after timeout.
func NewClient(timeout time.Duration, opts ...ClientOption) *Client {
	fc := &fasthttp.Client{
		Name:                "loadgen",
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
		MaxIdleConnDuration: 30 * time.Second,
		MaxConnsPerHost:     1024,
	}
	for _, o := range opts {
		o(fc)
	}
	return &Client{client: fc, timeout: timeout}
}

// Do sends the request, propagating the trace context to the target.
func (c *Client) Do(ctx context.Context, r *domain.HTTPRequest) (*domain.HTTPResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.URL)
	req.Header.SetMethod(r.Method)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if len(r.Body) > 0 {
		req.SetBody(r.Body)
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{h: &req.Header})

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	start := time.Now()
	err := c.client.DoTimeout(req, resp, timeout)
	latency := time.Since(start)
	if err != nil {
		return nil, &TransportError{Code: errorCode(err), Err: err}
	}

	headers := make(map[string]string)
	resp.Header.VisitAll(func(k, v []byte) {
		headers[strings.ToLower(string(k))] = string(v)
	})

	return &domain.HTTPResponse{
		StatusCode: resp.StatusCode(),
		Headers:    headers,
		Body:       append([]byte(nil), resp.Body()...),
		Latency:    latency,
	}, nil
}

// CloseIdle closes idle keep-alive connections.
func (c *Client) CloseIdle() {
	c.client.CloseIdleConnections()
}

func errorCode(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, fasthttp.ErrTimeout), errors.Is(err, fasthttp.ErrDialTimeout):
		return "ETIMEDOUT"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, fasthttp.ErrConnectionClosed):
		return "ECONNRESET"
	case errors.Is(err, fasthttp.ErrNoFreeConns):
		return "ENOFREECONNS"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "ETIMEDOUT"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "ENOTFOUND"
	}
	return err.Error()
}

// headerCarrier adapts fasthttp request headers to propagation.TextMapCarrier.
type headerCarrier struct {
	h *fasthttp.RequestHeader
}

func (c headerCarrier) Get(key string) string { return string(c.h.Peek(key)) }
func (c headerCarrier) Set(key, value string) { c.h.Set(key, value) }

func (c headerCarrier) Keys() []string {
	var keys []string
	c.h.VisitAll(func(k, _ []byte) { keys = append(keys, string(k)) })
	return keys
}
