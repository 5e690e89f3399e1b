package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"reelforge/internal/api"
	"reelforge/internal/daemon"
)

// apiClient talks to the reelforged HTTP API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) Status() (daemon.StatusResponse, error) {
	var resp daemon.StatusResponse
	err := c.do(http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

func (c *apiClient) Submit(req api.SubmitRequest) (daemon.JobResponse, error) {
	var resp daemon.JobResponse
	err := c.do(http.MethodPost, "/api/jobs", req, &resp)
	return resp, err
}

func (c *apiClient) List(statuses []string) (daemon.JobListResponse, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var resp daemon.JobListResponse
	err := c.do(http.MethodGet, path, nil, &resp)
	return resp, err
}

func (c *apiClient) Describe(id string) (daemon.JobDetailResponse, error) {
	var resp daemon.JobDetailResponse
	err := c.do(http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *apiClient) UpdateScenes(id string, req daemon.UpdateScenesRequest) (daemon.JobResponse, error) {
	var resp daemon.JobResponse
	err := c.do(http.MethodPut, "/api/jobs/"+url.PathEscape(id)+"/scenes", req, &resp)
	return resp, err
}

func (c *apiClient) Resume(id string) (daemon.JobResponse, error) {
	return c.transition(id, "resume")
}

func (c *apiClient) Cancel(id string) (daemon.JobResponse, error) {
	return c.transition(id, "cancel")
}

func (c *apiClient) Retry(id string) (daemon.JobResponse, error) {
	return c.transition(id, "retry")
}

func (c *apiClient) transition(id, action string) (daemon.JobResponse, error) {
	var resp daemon.JobResponse
	err := c.do(http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/"+action, nil, &resp)
	return resp, err
}

func (c *apiClient) do(method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon: %s", payload.Error)
	}
	return fmt.Errorf("daemon: unexpected status %s", resp.Status)
}

func wrapDialError(err error, baseURL string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start the daemon with `reelforged`", baseURL)
	}
	return fmt.Errorf("connect to daemon at %s: %w", baseURL, err)
}
