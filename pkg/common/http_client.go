package common

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Request sends an HTTP request with a JSON body and returns the decoded
// response body plus the status code. Bodies that are not valid JSON are
// returned as a raw string.
func Request(ctx context.Context, method, url string, payload interface{}, headers map[string]string) (interface{}, int, error) {
	var body io.Reader
	if payload != nil {
		jsonPayload, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewBuffer(jsonPayload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var result interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return string(raw), resp.StatusCode, nil
		}
	}
	return result, resp.StatusCode, nil
}

// Post sends a POST request and returns the decoded body.
func Post(ctx context.Context, url string, payload interface{}, headers map[string]string) (interface{}, error) {
	result, _, err := Request(ctx, http.MethodPost, url, payload, headers)
	return result, err
}

// Get sends a GET request and returns the decoded body.
func Get(ctx context.Context, url string, headers map[string]string) (interface{}, error) {
	result, _, err := Request(ctx, http.MethodGet, url, nil, headers)
	return result, err
}
