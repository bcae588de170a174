package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"gpuworker/pkg/types"
)

// predictRequest is the body of POST /predict.
type predictRequest struct {
	Inputs   string `json:"inputs"`
	Truncate bool   `json:"truncate,omitempty"`
}

// infoResponse is the subset of GET /info we read.
type infoResponse struct {
	ModelID string `json:"model_id"`
	Version string `json:"version"`
}

// predictClient speaks the classification server protocol: /predict,
// /health and /info. Predictions retry on transport errors and 5xx (the
// server answers 503 while it is still warming up); health probes never retry.
type predictClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	probe   *http.Client
}

func newPredictClient(baseURL string, timeout time.Duration) *predictClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil // suppress default logging

	probeClient := retryablehttp.NewClient()
	probeClient.RetryMax = 0
	probeClient.Logger = nil

	return &predictClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    retryClient.StandardClient(),
		probe:   probeClient.StandardClient(),
	}
}

// Predict classifies a single input. Both the flat `[{label,score}]` and the
// nested `[[{label,score}]]` response shapes are accepted.
func (c *predictClient) Predict(ctx context.Context, text string) ([]types.Prediction, error) {
	body, err := json.Marshal(predictRequest{Inputs: text, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read predict response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classification server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return decodePredictions(data)
}

func decodePredictions(data []byte) ([]types.Prediction, error) {
	var flat []types.Prediction
	if err := json.Unmarshal(data, &flat); err == nil {
		return flat, nil
	}
	var nested [][]types.Prediction
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}
	if len(nested) == 0 {
		return nil, nil
	}
	return nested[0], nil
}

// Healthy reports whether GET /health answers 2xx within timeout.
func (c *predictClient) Healthy(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Info reads GET /info. Servers that do not implement it return an error.
func (c *predictClient) Info(ctx context.Context) (infoResponse, error) {
	var info infoResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/info", http.NoBody)
	if err != nil {
		return info, err
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("info: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("decode info: %w", err)
	}
	return info, nil
}
