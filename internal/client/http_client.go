package client

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"search-agent/internal/config"
)

// HTTPClient hands out *http.Client values whose transport retries transient
// failures. The OpenAI and Search Console SDKs both take one.
type HTTPClient struct {
	client        *http.Client
	retryAttempts int
	logger        *logrus.Logger
}

func NewHTTPClient(cfg *config.Config, logger *logrus.Logger) *HTTPClient {
	return NewHTTPClientWithTransport(cfg, logger, http.DefaultTransport)
}

func NewHTTPClientWithTransport(cfg *config.Config, logger *logrus.Logger, base http.RoundTripper) *HTTPClient {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	c := &HTTPClient{
		retryAttempts: attempts,
		logger:        logger,
	}
	c.client = &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &retryTransport{
			base:     base,
			attempts: attempts,
			backoff:  quadraticBackoff,
			logger:   logger,
		},
	}
	return c
}

// Client returns the shared retrying client.
func (c *HTTPClient) Client() *http.Client {
	return c.client
}

func quadraticBackoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * time.Second
}

type retryTransport struct {
	base     http.RoundTripper
	attempts int
	backoff  func(attempt int) time.Duration
	logger   *logrus.Logger
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var lastErr error
	var lastResp *http.Response

	for attempt := 0; attempt < t.attempts; attempt++ {
		if attempt > 0 {
			backoffTime := t.backoff(attempt)
			t.logger.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"backoff": backoffTime,
				"url":     req.URL.Redacted(),
			}).Warn("Retrying request after backoff")

			select {
			case <-time.After(backoffTime):
			case <-req.Context().Done():
				if lastResp != nil {
					return lastResp, nil
				}
				return nil, req.Context().Err()
			}

			if lastResp != nil {
				drain(lastResp)
				lastResp = nil
			}
		}

		attemptReq, err := rewind(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := t.base.RoundTrip(attemptReq)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		// 5xx and 429 are transient; every other status goes back to the caller
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			lastResp = resp
			continue
		}

		t.logger.WithFields(logrus.Fields{
			"attempt":     attempt + 1,
			"status_code": resp.StatusCode,
			"url":         req.URL.Redacted(),
		}).Debug("Request completed")

		return resp, nil
	}

	// Hand the final error response to the SDK so it can decode the API error body
	if lastResp != nil {
		return lastResp, nil
	}
	return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
}

func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body cannot be replayed for retry")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
