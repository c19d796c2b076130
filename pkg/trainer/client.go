// Package trainer provides a client for the model training service.
package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/newscat/internal/model"
)

// Client defines the training service operations.
type Client interface {
	// StartJob submits a training job and returns the service's job handle.
	StartJob(ctx context.Context, req *StartRequest) (*JobState, error)
	// JobStatus fetches the current state of a previously submitted job.
	JobStatus(ctx context.Context, jobID string) (*JobState, error)
}

// StartRequest is the payload submitted to the training service.
type StartRequest struct {
	JobID   string                 `json:"job_id"`
	Config  model.TrainingConfig   `json:"config"`
	Samples []model.TrainingSample `json:"samples,omitempty"`
}

// JobState is the training service's view of a job.
type JobState struct {
	JobID        string             `json:"job_id"`
	Status       model.JobStatus    `json:"status"`
	Progress     float64            `json:"progress"`
	ModelVersion string             `json:"model_version,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Option configures the trainer client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a training service client for the given base URL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503).
func (c *httpClient) retryDo(ctx context.Context, method, url string, payload []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, 0, eris.Wrap(err, "trainer: create request")
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "trainer: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("trainer: status %d: %s", resp.StatusCode, string(respBody))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) StartJob(ctx context.Context, req *StartRequest) (*JobState, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "trainer: marshal start request")
	}

	body, statusCode, err := c.retryDo(ctx, http.MethodPost, c.baseURL+"/train", payload)
	if err != nil {
		return nil, eris.Wrap(err, "trainer: start job")
	}
	if statusCode != http.StatusOK && statusCode != http.StatusAccepted {
		return nil, eris.Errorf("trainer: unexpected status %d: %s", statusCode, string(body))
	}

	var state JobState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, eris.Wrap(err, "trainer: unmarshal start response")
	}
	return &state, nil
}

func (c *httpClient) JobStatus(ctx context.Context, jobID string) (*JobState, error) {
	url := fmt.Sprintf("%s/jobs/%s", c.baseURL, jobID)

	body, statusCode, err := c.retryDo(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "trainer: job status")
	}
	if statusCode == http.StatusNotFound {
		return nil, eris.Errorf("trainer: job %s not found", jobID)
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("trainer: unexpected status %d: %s", statusCode, string(body))
	}

	var state JobState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, eris.Wrap(err, "trainer: unmarshal status response")
	}
	return &state, nil
}
