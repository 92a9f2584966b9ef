package goldapi

import (
	"net/http"
)

const baseURL = "https://www.goldapi.io/api"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=goldapi_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the GoldAPI price feed.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient performs the requests.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// ClientOption is a configuration option for the GoldAPI client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new GoldAPI client. An empty key is allowed for proxies that
// authenticate on their own.
func NewClient(key string, options ...ClientOption) (*Client, error) {
	var client = &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	if key != "" {
		// https://www.goldapi.io/dashboard
		client.header.Set("x-access-token", key)
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}
