package adminclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	contentTypeJSON = "application/json"
	requestIDHeader = "X-Request-Id"

	// how much of an error response body ends up in the error message
	maxErrorBodyLen = 512
)

// TokenSource provides the bearer token sent with every admin API call.
type TokenSource interface {
	Token() (string, error)
}

// FetchError is returned for transport failures, non-2xx responses and unreadable bodies.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("admin api %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("admin api %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Client struct {
	logger     *zap.Logger
	url        string
	httpClient *http.Client
	tokens     TokenSource
}

// NewClient creates the SV admin API client, tokens may be nil for unauthenticated calls.
func NewClient(logger *zap.Logger, svURL string, timeout time.Duration, tokens TokenSource) *Client {
	url := strings.TrimSuffix(svURL, "/")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	return &Client{
		logger:     logger,
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

func (c *Client) sendRequest(ctx context.Context, method, apiSuffix string, data []byte) ([]byte, error) {
	fail := func(statusCode int, err error) ([]byte, error) {
		return nil, &FetchError{Endpoint: apiSuffix, StatusCode: statusCode, Err: err}
	}

	url := fmt.Sprintf("%s/%s", c.url, apiSuffix)

	var body io.Reader
	if len(data) > 0 {
		body = bytes.NewReader(data)
	}
	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fail(0, err)
	}

	requestID := uuid.NewString()
	request.Header.Set(requestIDHeader, requestID)
	request.Header.Set("Accept", contentTypeJSON)
	if len(data) > 0 {
		request.Header.Set("Content-Type", contentTypeJSON)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fail(0, fmt.Errorf("failed to get the auth token: %w", err))
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fail(0, fmt.Errorf("failed to connect to the admin API: %w", err))
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return fail(response.StatusCode, fmt.Errorf("error reading response: %w", err))
	}

	c.logger.Debug("admin api call finished",
		zap.String("endpoint", apiSuffix),
		zap.String("requestID", requestID),
		zap.Int("status", response.StatusCode),
		zap.Duration("took", time.Since(start)))

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		excerpt := string(responseBody)
		if len(excerpt) > maxErrorBodyLen {
			excerpt = excerpt[:maxErrorBodyLen] + "..."
		}
		return fail(response.StatusCode, fmt.Errorf("%s: %s", response.Status, excerpt))
	}

	return responseBody, nil
}
