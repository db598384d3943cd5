package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m3n89t-max/-chatbot/internal/logger"
)

// 中文说明：
// OpenAIChatClient：兼容 OpenAI / DeepSeek / Qwen 的聊天补全接口
// （/v1/chat/completions）。带图片时走 content 分段格式，
// ExpectJSON 时附带 response_format 要求纯 JSON 输出。

type OpenAIChatClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// 针对 429/5xx 的有限重试，0 表示默认重试 2 次
	MaxRetries   int
	ExtraHeaders map[string]string
}

func (c *OpenAIChatClient) Complete(ctx context.Context, payload ChatPayload) (string, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	url := chatCompletionsURL(c.BaseURL)
	body, err := json.Marshal(c.buildRequestBody(payload))
	if err != nil {
		return "", fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpc := &http.Client{Timeout: timeout}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt == 0 {
			logger.Debugf("[AI] 请求: POST %s model=%s headers=%v bytes=%d",
				url, c.Model, c.maskedHeaders(), len(body))
		}
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if rerr != nil {
			return "", rerr
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		for k, v := range c.ExtraHeaders {
			req.Header.Set(k, v)
		}

		resp, derr := httpc.Do(req)
		if derr != nil {
			return "", derr
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if decodeErr != nil {
				return "", decodeErr
			}
			if len(r.Choices) == 0 {
				return "", fmt.Errorf("empty choices")
			}
			return r.Choices[0].Message.Content, nil
		}

		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		retryAfter := resp.Header.Get("Retry-After")
		resp.Body.Close()
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		if !retryableStatus(resp.StatusCode) || attempt >= maxRetries {
			break
		}
		wait := retryWait(retryAfter, attempt)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (c *OpenAIChatClient) buildRequestBody(payload ChatPayload) map[string]any {
	messages := make([]map[string]any, 0, 2)
	if payload.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": payload.System})
	}
	if len(payload.Images) == 0 {
		messages = append(messages, map[string]any{"role": "user", "content": payload.User})
	} else {
		parts := []map[string]any{{"type": "text", "text": payload.User}}
		for _, img := range payload.Images {
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": img.DataURI},
			})
		}
		messages = append(messages, map[string]any{"role": "user", "content": parts})
	}
	temperature := payload.Temperature
	if temperature <= 0 {
		temperature = 0.5
	}
	body := map[string]any{"model": c.Model, "messages": messages, "temperature": temperature}
	if payload.MaxTokens > 0 {
		body["max_tokens"] = payload.MaxTokens
	}
	if payload.ExpectJSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	return body
}

func (c *OpenAIChatClient) maskedHeaders() map[string]string {
	hlog := map[string]string{"Content-Type": "application/json"}
	if c.APIKey != "" {
		hlog["Authorization"] = "Bearer ****" + tail4(c.APIKey)
	}
	for k, v := range c.ExtraHeaders {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "key") || strings.Contains(lk, "token") || strings.Contains(lk, "auth") {
			v = "****" + tail4(v)
		}
		hlog[k] = v
	}
	return hlog
}

func tail4(s string) string {
	if len(s) > 4 {
		return s[len(s)-4:]
	}
	return s
}

// chatCompletionsURL 规范化 BaseURL，配置里多写或漏写
// /chat/completions 都能容忍。
func chatCompletionsURL(base string) string {
	url := strings.TrimSpace(base)
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryWait 优先用 Retry-After，否则 0.8s 起指数退避，上限 8s。
func retryWait(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	wait := 800 * time.Millisecond << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}

type completionClient interface {
	Complete(ctx context.Context, payload ChatPayload) (string, error)
}

// OpenAIModelProvider 把 OpenAIChatClient 包装成 ModelProvider。
type OpenAIModelProvider struct {
	id         string
	enabled    bool
	vision     bool
	expectJSON bool
	client     completionClient
}

func NewOpenAIModelProvider(id string, enabled, vision, expectJSON bool, client completionClient) *OpenAIModelProvider {
	return &OpenAIModelProvider{id: id, enabled: enabled, vision: vision, expectJSON: expectJSON, client: client}
}

func (p *OpenAIModelProvider) ID() string           { return p.id }
func (p *OpenAIModelProvider) Enabled() bool        { return p.enabled }
func (p *OpenAIModelProvider) SupportsVision() bool { return p.vision }
func (p *OpenAIModelProvider) ExpectsJSON() bool    { return p.expectJSON }

func (p *OpenAIModelProvider) Call(ctx context.Context, payload ChatPayload) (string, error) {
	if p.expectJSON {
		payload.ExpectJSON = true
	}
	if !p.vision {
		payload.Images = nil
	}
	return p.client.Complete(ctx, payload)
}
