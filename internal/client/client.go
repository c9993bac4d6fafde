// Package client is the typed HTTP client of the ordering API, used by the
// table-side checkout flow and the order watcher.
package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/qrdine/internal/wire"
)

// APIKeyHeader carries the staff API key.
const APIKeyHeader = "api_key"

// Client calls the ordering API.
type Client struct {
	base   *url.URL
	http   *http.Client
	apiKey string
}

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	timeout    time.Duration
	apiKey     string
	tracer     trace.TracerProvider
	meter      metric.MeterProvider
}

// WithHTTPClient replaces the underlying client. Its transport is used as is.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTimeout bounds each request. Default is 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithAPIKey authenticates staff operations.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithTelemetry instruments the transport with the given providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(o *options) {
		o.tracer = tp
		o.meter = mp
	}
}

// New returns a Client for the API rooted at serverURL.
func New(serverURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse server url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("server url %q must be absolute", serverURL)
	}

	o := options{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	hc := o.httpClient
	if hc == nil {
		var tOpts []otelhttp.Option
		if o.tracer != nil {
			tOpts = append(tOpts, otelhttp.WithTracerProvider(o.tracer))
		}
		if o.meter != nil {
			tOpts = append(tOpts, otelhttp.WithMeterProvider(o.meter))
		}
		hc = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, tOpts...),
			Timeout:   o.timeout,
		}
	}

	return &Client{base: base, http: hc, apiKey: o.apiKey}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends body (if any) and decodes a 2xx response into out (if any). It
// returns the response status.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body wire.Encoder, out wire.Decoder, auth bool) (int, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(wire.Marshal(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), rd)
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	op := method + " " + path
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &TransportError{Op: op, Err: errors.Wrap(err, "read body")}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, decodeError(op, resp.StatusCode, raw)
	}
	if out != nil {
		if err := wire.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, errors.Wrapf(err, "decode %s response", op)
		}
	}
	return resp.StatusCode, nil
}
