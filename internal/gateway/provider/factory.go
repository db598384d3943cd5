package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3n89t-max/-chatbot/internal/logger"
)

// 中文说明：按配置批量构造模型提供方。未显式给 ID 的条目按
// provider:model 生成并告警，禁用条目直接跳过。

type ModelCfg struct {
	ID, Provider, APIURL, APIKey, Model string
	Enabled                             bool
	Headers                             map[string]string
	SupportsVision                      bool
	ExpectJSON                          bool
	MaxRetries                          int
}

func BuildProvidersFromConfig(models []ModelCfg, timeout time.Duration) []ModelProvider {
	out := make([]ModelProvider, 0, len(models))
	for _, m := range models {
		if !m.Enabled {
			continue
		}
		id := strings.TrimSpace(m.ID)
		if id == "" {
			base := strings.TrimSpace(m.Provider)
			if base == "" {
				base = "provider"
			}
			model := strings.TrimSpace(m.Model)
			if model != "" {
				id = fmt.Sprintf("%s:%s", base, model)
			} else {
				id = base
			}
			logger.Warnf("未配置 ai.models.id，已为 %q 生成 ID: %s", m.Provider, id)
		}
		client := &OpenAIChatClient{
			BaseURL:      m.APIURL,
			APIKey:       m.APIKey,
			Model:        m.Model,
			ExtraHeaders: m.Headers,
			MaxRetries:   m.MaxRetries,
		}
		if timeout > 0 {
			client.Timeout = timeout
		}
		out = append(out, NewOpenAIModelProvider(id, true, m.SupportsVision, m.ExpectJSON, client))
	}
	return out
}

// FindProvider 按 ID 取提供方，找不到时报错列出可用项。
func FindProvider(providers []ModelProvider, id string) (ModelProvider, error) {
	id = strings.TrimSpace(id)
	for _, p := range providers {
		if strings.EqualFold(p.ID(), id) {
			return p, nil
		}
	}
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.ID())
	}
	return nil, fmt.Errorf("未找到模型提供方 %q，可用: %s", id, strings.Join(ids, ", "))
}
