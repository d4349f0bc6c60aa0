package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// per-request timeout, the transport default would be none
const requestTimeout = 30 * time.Second

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

type Client struct {
	logger  zerolog.Logger
	http    *http.Client
	headers http.Header
}

// New creates a fetch client sending headers with every request. A nil
// header set is valid.
func New(headers http.Header) *Client {
	return &Client{
		logger:  log.With().Str("module", "fetch").Logger(),
		http:    &http.Client{Timeout: requestTimeout},
		headers: headers,
	}
}

// Fetch issues a single GET and returns the whole body on any 2xx status.
// There are no retries: transport failures and non-2xx statuses abort the
// caller's run.
func (c *Client) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	c.logger.Debug().Str("url", u.String()).Msg("downloading file")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", u, err)
	}

	for name, values := range c.headers {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: %w", u, &StatusError{Code: resp.StatusCode})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", u, err)
	}

	return data, nil
}
