package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/outbid/outbid/internal/model"
)

const solverUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Solver fetches pages by first obtaining challenge clearance cookies from a
// solving service, then requesting the page directly with those cookies.
type Solver struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	client       *http.Client
}

// NewSolver creates a solver strategy against the given service.
func NewSolver(baseURL, apiKey string, pollInterval time.Duration, client *http.Client) *Solver {
	if client == nil {
		client = http.DefaultClient
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Solver{
		baseURL:      baseURL,
		apiKey:       apiKey,
		pollInterval: pollInterval,
		client:       client,
	}
}

func (s *Solver) Name() string { return "solver" }

func (s *Solver) MaxAttempts() int { return 1 }

type solverTaskRequest struct {
	APIKey string `json:"api_key"`
	URL    string `json:"url"`
}

type solverTaskResponse struct {
	TaskID string `json:"task_id"`
}

type solverStatusResponse struct {
	Status  string            `json:"status"` // "pending", "ready", "failed"
	Cookies map[string]string `json:"cookies"`
	Error   string            `json:"error"`
}

// Fetch solves the challenge for targetURL and fetches the page with the
// resulting cookies. The whole sequence shares the caller's context deadline.
func (s *Solver) Fetch(ctx context.Context, targetURL string) (string, string, error) {
	cookies, err := s.solve(ctx, targetURL)
	if err != nil {
		return "", s.baseURL, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", s.baseURL, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("User-Agent", solverUserAgent)
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", s.baseURL, fmt.Errorf("fetch with clearance: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", s.baseURL, fmt.Errorf("read page: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", s.baseURL, &model.HTTPError{StatusCode: resp.StatusCode}
	}

	return string(body), s.baseURL, nil
}

// solve creates a solving task and polls until it yields cookies.
func (s *Solver) solve(ctx context.Context, targetURL string) (map[string]string, error) {
	payload, err := json.Marshal(solverTaskRequest{APIKey: s.apiKey, URL: targetURL})
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/createTask", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	var task solverTaskResponse
	err = json.NewDecoder(resp.Body).Decode(&task)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	if task.TaskID == "" {
		return nil, fmt.Errorf("solver returned empty task id")
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := s.taskStatus(ctx, task.TaskID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case "ready":
			return status.Cookies, nil
		case "failed":
			return nil, fmt.Errorf("solver task failed: %s", status.Error)
		}
	}
}

func (s *Solver) taskStatus(ctx context.Context, taskID string) (*solverStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/getTaskResult?api_key=%s&task_id=%s", s.baseURL, s.apiKey, taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll task: %w", err)
	}
	defer resp.Body.Close()

	var status solverStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode task status: %w", err)
	}
	return &status, nil
}
