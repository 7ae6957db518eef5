package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"orbitoj/internal/judge/model"
	appErr "orbitoj/pkg/errors"
)

// HTTPConfig holds execution engine endpoint settings.
type HTTPConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"token"`
}

// HTTPExecutor talks to a sandbox exec server over its REST surface.
type HTTPExecutor struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPExecutor creates an executor client for the given endpoint.
func NewHTTPExecutor(cfg HTTPConfig) (*HTTPExecutor, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("engine baseURL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPExecutor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (e *HTTPExecutor) Compile(ctx context.Context, task CompileTask) (*CompileResult, error) {
	var result CompileResult
	if err := e.post(ctx, "/compile", task, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (e *HTTPExecutor) Exec(ctx context.Context, task ExecTask) (*model.TestcaseResult, error) {
	var result model.TestcaseResult
	if err := e.post(ctx, "/exec", task, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (e *HTTPExecutor) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeEngineError, "encode engine request failed")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeEngineError, "build engine request failed")
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeEngineError, "engine request failed: %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return appErr.Newf(appErr.JudgeEngineError, "engine returned %d: %s", resp.StatusCode, string(detail))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return appErr.Wrapf(err, appErr.JudgeEngineError, "decode engine response failed")
	}
	return nil
}
