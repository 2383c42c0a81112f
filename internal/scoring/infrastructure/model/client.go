package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal REST client for an external anomaly model server. The
// server exposes a single scoring endpoint returning the raw decision value
// of the trained estimator.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a model client.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("model: empty base url")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type scoreRequest struct {
	Features []float64 `json:"features"`
}

type scoreResponse struct {
	DecisionValue float64 `json:"decision_value"`
}

// DecisionValue posts the feature vector to the model server and returns the
// raw decision function output.
func (c *Client) DecisionValue(ctx context.Context, features []float64) (float64, error) {
	if len(features) == 0 {
		return 0, errors.New("model: empty feature vector")
	}
	payload, err := json.Marshal(scoreRequest{Features: features})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("model: http %d", resp.StatusCode)
	}
	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.DecisionValue, nil
}
