package gemini

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/faheemlabs/faheem/pkg/configutil"
	"github.com/faheemlabs/faheem/pkg/logging"
)

const (
	// HeaderPath names the upstream path the relay should call.
	HeaderPath = "x-gemini-path"
	// HeaderAPIKey carries the caller-supplied credential.
	HeaderAPIKey = "x-goog-api-key"

	defaultModel = "gemini-2.5-flash"
)

// Config contains backend client configuration. All traffic goes through
// the relay forwarder at Endpoint; the client never talks to the backend
// origin directly.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
}

// Client issues file-lifecycle and streamed-inference calls against the
// generative backend through the relay forwarder.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if err := configutil.RequireString(cfg.Endpoint, "backend.endpoint"); err != nil {
		return nil, err
	}
	if err := configutil.RequireString(cfg.APIKey, "backend.api_key"); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	// No client-level timeout: uploads and streams are long-lived and the
	// relay enforces its own 5 minute outbound deadline. Callers bound
	// requests with a context.
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logging.NewComponentLogger(slog.Default(), "gemini_client"),
	}, nil
}

func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) newRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(HeaderPath, path)
	req.Header.Set(HeaderAPIKey, c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// StatusError is a non-2xx response from the backend (or the relay).
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

func statusError(resp *http.Response) error {
	const maxBody = 4 << 10
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
