// Package openai pools clients of the OpenAI API. Each pooled Client owns its
// HTTP transport; Close drops the transport's idle connections so that a
// client retired by the pool does not keep sockets open.
package openai

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/resourcekit/pool"
	"github.com/hupe1980/resourcekit/provider"
)

// ResourceType is the resource type of pools created by NewPool.
const ResourceType = "openai"

// Options configures the clients built by the factory.
type Options struct {
	// APIKey overrides OPENAI_API_KEY.
	APIKey string

	// BaseURL overrides OPENAI_BASE_URL.
	BaseURL string

	// MaxRetries is the SDK retry count per request. Negative keeps the SDK default.
	MaxRetries int

	// Transport tunes the HTTP transport owned by each client.
	Transport provider.TransportConfig

	// RequestOptions are appended to the client options.
	RequestOptions []option.RequestOption

	// Pool overrides the manager defaults for pools created by NewPool.
	Pool *pool.Config
}

func defaultOptions() Options {
	return Options{MaxRetries: -1}
}

// Client is one pooled OpenAI client.
type Client struct {
	openai.Client

	http      *http.Client
	transport *http.Transport
	closed    atomic.Bool
}

// HTTPClient returns the HTTP client the SDK client sends requests through.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Close drops idle connections. The client must not be used afterwards.
func (c *Client) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.transport.CloseIdleConnections()
	}
	return nil
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool { return c.closed.Load() }

// NewClient builds a client with its own transport.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return newClient(opts)
}

func newClient(opts Options) *Client {
	hc, transport := provider.NewHTTPClient(opts.Transport)

	reqOpts := []option.RequestOption{option.WithHTTPClient(hc)}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(opts.MaxRetries))
	}
	reqOpts = append(reqOpts, opts.RequestOptions...)

	return &Client{
		Client:    openai.NewClient(reqOpts...),
		http:      hc,
		transport: transport,
	}
}

// NewFactory returns a pool.Factory building clients with the given options.
func NewFactory(optFns ...func(o *Options)) pool.Factory[*Client] {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return func(ctx context.Context) (*Client, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return newClient(opts), nil
	}
}

// NewPool returns the pool registered under id, creating a pool of clients
// when it does not exist yet.
func NewPool(ctx context.Context, m *pool.Manager, id string, optFns ...func(o *Options)) (*pool.Pool[*Client], error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return pool.GetOrCreate(ctx, m, id, ResourceType, NewFactory(optFns...), func(o *pool.Options[*Client]) {
		if opts.Pool != nil {
			o.Config = *opts.Pool
		}
	})
}
