package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/m3n89t-max/-chatbot/internal/logger"
)

// 中文说明：
// OpenAIEmbeddingClient：兼容 OpenAI 的向量化接口（/v1/embeddings），
// 供知识检索做查询向量化。

type OpenAIEmbeddingClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// ExpectDim 大于 0 时校验返回向量维度，不一致直接报错。
	ExpectDim int
}

// Embed 返回文本的向量表示。
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("向量化输入为空")
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	url := embeddingsURL(c.BaseURL)
	body, err := json.Marshal(map[string]any{"model": c.Model, "input": text})
	if err != nil {
		return nil, err
	}

	httpc := &http.Client{Timeout: timeout}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if rerr != nil {
			return nil, rerr
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		resp, derr := httpc.Do(req)
		if derr != nil {
			return nil, derr
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Data []struct {
					Embedding []float64 `json:"embedding"`
				} `json:"data"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if decodeErr != nil {
				return nil, decodeErr
			}
			if len(r.Data) == 0 || len(r.Data[0].Embedding) == 0 {
				return nil, fmt.Errorf("embedding 响应为空")
			}
			if c.ExpectDim > 0 && len(r.Data[0].Embedding) != c.ExpectDim {
				return nil, fmt.Errorf("embedding 维度不符: got=%d want=%d", len(r.Data[0].Embedding), c.ExpectDim)
			}
			out := make([]float32, len(r.Data[0].Embedding))
			for i, v := range r.Data[0].Embedding {
				out[i] = float32(v)
			}
			return out, nil
		}
		retryAfter := resp.Header.Get("Retry-After")
		resp.Body.Close()
		lastErr = fmt.Errorf("embedding status=%d", resp.StatusCode)
		if !retryableStatus(resp.StatusCode) || attempt >= maxRetries {
			break
		}
		logger.Debugf("[AI] embedding 重试 attempt=%d status=%d", attempt+1, resp.StatusCode)
		select {
		case <-time.After(retryWait(retryAfter, attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func embeddingsURL(base string) string {
	url := strings.TrimSpace(base)
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, "/embeddings")
	return url + "/embeddings"
}
