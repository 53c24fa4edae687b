package recognition

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/teslashibe/voxture/internal/httpc"
	"github.com/teslashibe/voxture/pkg/camera"
)

// DefaultEndpoint is the local recognition service.
const DefaultEndpoint = "http://127.0.0.1:5000/sign"

// maxErrorBody bounds how much of a failed response is kept in APIError.
const maxErrorBody = 512

// Config holds client configuration.
type Config struct {
	Endpoint string        // Full URL of the recognition route
	Timeout  time.Duration // Per-request timeout (0 = httpc default)

	// MaxResponseBytes bounds the response body (annotated images included).
	MaxResponseBytes int64

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithEndpoint sets the recognition URL.
// Example: "http://127.0.0.1:5000/sign"
func WithEndpoint(endpoint string) Option {
	return func(c *Config) { c.Endpoint = endpoint }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithMaxResponseBytes bounds the response body size.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Config) { c.MaxResponseBytes = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults for the local service.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:         DefaultEndpoint,
		Timeout:          httpc.DefaultTimeout,
		MaxResponseBytes: 16 << 20,
		Logger:           slog.Default(),
	}
}

// Client is the HTTP recognizer.
type Client struct {
	endpoint string
	config   *Config
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a new recognition client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("recognition: invalid endpoint %q", cfg.Endpoint)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		endpoint: cfg.Endpoint,
		config:   cfg,
		http:     hc,
		logger:   cfg.Logger.With("component", "recognition.client"),
	}, nil
}

// Endpoint returns the configured URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Recognize submits frame and parses the response.
// Failures wrap ErrTransport or ErrMalformedResponse.
func (c *Client) Recognize(ctx context.Context, frame *camera.Frame) (*Result, error) {
	if frame == nil || len(frame.JPEG) == 0 {
		return nil, fmt.Errorf("recognition: empty frame")
	}
	start := time.Now()

	body, err := sonic.Marshal(signRequest{Image: frame.DataURI()})
	if err != nil {
		return nil, fmt.Errorf("recognition: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("recognition: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError("post", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.parseError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes+1))
	if err != nil {
		return nil, transportError("read body", err)
	}
	if int64(len(data)) > c.config.MaxResponseBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedResponse, c.config.MaxResponseBytes)
	}

	res, err := parseResponse(data)
	if err != nil {
		return nil, err
	}
	res.LatencyMs = time.Since(start).Milliseconds()

	c.logger.Debug("recognized frame",
		"label", res.Label,
		"annotated", res.HasImage(),
		"latency_ms", res.LatencyMs,
		"bytes_out", len(body))
	return res, nil
}

// parseResponse decodes a response body. A body carrying neither field is
// malformed.
func parseResponse(data []byte) (*Result, error) {
	var wire signResponse
	if err := sonic.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	res := &Result{}
	if wire.Gesture != nil {
		res.Label = strings.TrimSpace(*wire.Gesture)
	}
	if wire.Image != nil {
		res.AnnotatedImage = *wire.Image
	}
	if !res.HasLabel() && !res.HasImage() {
		return nil, fmt.Errorf("%w: neither gesture nor image present", ErrMalformedResponse)
	}
	return res, nil
}

// parseError builds an APIError from a non-2xx response.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}

// Health checks that the endpoint's host answers HTTP at all. Any status
// counts as reachable, since the route only accepts POST.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("recognition: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError("health", err)
	}
	resp.Body.Close()
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

var _ Recognizer = (*Client)(nil)
