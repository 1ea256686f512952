package isms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultDispatchPath = "/api/v1/operations"
	defaultHTTPTimeout  = 30 * time.Second
)

// HTTPConfig 描述访问 ISMS 后端所需的信息。
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPCoordinator 通过 HTTP 调用远端 ISMS 后端执行 CRUD 操作。
type HTTPCoordinator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Coordinator = (*HTTPCoordinator)(nil)

// NewHTTPCoordinator 根据配置创建 HTTP 协作方客户端。
func NewHTTPCoordinator(cfg HTTPConfig) (*HTTPCoordinator, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("未配置 ISMS 后端地址")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &HTTPCoordinator{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Dispatch 调用远端执行一次 CRUD 操作并解析统一结果。
func (c *HTTPCoordinator) Dispatch(ctx context.Context, operation, objectType, message string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{
		"operation":   operation,
		"object_type": objectType,
		"message":     message,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化操作请求失败: %w", err)
	}

	endpoint := c.baseURL + defaultDispatchPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建操作请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 ISMS 后端失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("ISMS 后端返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析 ISMS 后端响应失败: %w", err)
	}
	if result.Type == "" {
		return nil, errors.New("ISMS 后端响应缺少 type 字段")
	}
	return &result, nil
}
