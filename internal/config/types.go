package config

import (
	"fmt"
	"strings"
)

// Config 是 wavebot 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	AI        AIConfig        `toml:"ai"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Risk      RiskConfig      `toml:"risk"`
	State     StateConfig     `toml:"state"`
	Rubric    RubricConfig    `toml:"rubric"`
	Market    MarketConfig    `toml:"market"`
	Chart     ChartConfig     `toml:"chart"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Name     string `toml:"name"`
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

type ServerConfig struct {
	Enabled  bool   `toml:"enabled"`
	HTTPAddr string `toml:"http_addr"`
}

type DatabaseConfig struct {
	SQLitePath string `toml:"sqlite_path"`
	// CycleLogPath 为空时审计日志复用主库文件。
	CycleLogPath string `toml:"cycle_log_path"`
}

// AIConfig 模型接入与双情景编排的全部设置。
type AIConfig struct {
	RequestTimeoutSeconds int                    `toml:"request_timeout_seconds"`
	MaxTokens             int                    `toml:"max_tokens"`
	ProviderPresets       map[string]ModelPreset `toml:"provider_presets"`
	Models                []AIModelConfig        `toml:"models"`
	ScenarioA             string                 `toml:"scenario_a"`
	ScenarioB             string                 `toml:"scenario_b"`
	Evaluator             string                 `toml:"evaluator"`
	Embedding             EmbeddingConfig        `toml:"embedding"`
	PersonaA              string                 `toml:"persona_a"`
	PersonaB              string                 `toml:"persona_b"`
}

// ModelPreset 描述可复用的 API 连接配置。
type ModelPreset struct {
	APIURL         string            `toml:"api_url"`
	APIKey         string            `toml:"api_key"`
	Headers        map[string]string `toml:"headers"`
	SupportsVision bool              `toml:"supports_vision"`
	ExpectJSON     bool              `toml:"expect_json"`
}

// AIModelConfig 代表一个可被角色引用的模型条目。
type AIModelConfig struct {
	ID       string            `toml:"id"`
	Provider string            `toml:"provider"`
	Preset   string            `toml:"preset"`
	Enabled  bool              `toml:"enabled"`
	APIURL   string            `toml:"api_url"`
	APIKey   string            `toml:"api_key"`
	Model    string            `toml:"model"`
	Headers  map[string]string `toml:"headers"`
	// SupportsVision/ExpectJSON 使用指针以区分"显式 false"与"沿用预设值"。
	SupportsVision *bool `toml:"supports_vision"`
	ExpectJSON     *bool `toml:"expect_json"`
	MaxRetries     int   `toml:"max_retries"`
}

// ResolvedModelConfig 是合并预设后的最终模型配置。
type ResolvedModelConfig struct {
	ID             string
	Provider       string
	Enabled        bool
	APIURL         string
	APIKey         string
	Model          string
	Headers        map[string]string
	SupportsVision bool
	ExpectJSON     bool
	MaxRetries     int
}

// ResolveModelConfigs 合并预设并返回最终模型列表。未启用的条目保留
// 在结果里，由调用方决定是否跳过。
func (a *AIConfig) ResolveModelConfigs() ([]ResolvedModelConfig, error) {
	out := make([]ResolvedModelConfig, 0, len(a.Models))
	for i, m := range a.Models {
		resolved := ResolvedModelConfig{
			ID:         strings.TrimSpace(m.ID),
			Provider:   strings.TrimSpace(m.Provider),
			Enabled:    m.Enabled,
			APIURL:     strings.TrimSpace(m.APIURL),
			APIKey:     strings.TrimSpace(m.APIKey),
			Model:      strings.TrimSpace(m.Model),
			MaxRetries: m.MaxRetries,
		}
		var preset ModelPreset
		presetName := strings.TrimSpace(m.Preset)
		if presetName != "" {
			p, ok := a.ProviderPresets[presetName]
			if !ok {
				return nil, fmt.Errorf("ai.models[%d] references unknown preset %q", i, presetName)
			}
			preset = p
		}
		if resolved.APIURL == "" {
			resolved.APIURL = strings.TrimSpace(preset.APIURL)
		}
		if resolved.APIKey == "" {
			resolved.APIKey = strings.TrimSpace(preset.APIKey)
		}
		resolved.Headers = mergeHeaders(preset.Headers, m.Headers)
		if m.SupportsVision != nil {
			resolved.SupportsVision = *m.SupportsVision
		} else {
			resolved.SupportsVision = preset.SupportsVision
		}
		if m.ExpectJSON != nil {
			resolved.ExpectJSON = *m.ExpectJSON
		} else {
			resolved.ExpectJSON = preset.ExpectJSON
		}
		if resolved.ID == "" {
			base := resolved.Provider
			if base == "" {
				base = "provider"
			}
			if resolved.Model != "" {
				resolved.ID = base + ":" + resolved.Model
			} else {
				resolved.ID = base
			}
		}
		out = append(out, resolved)
	}
	return out, nil
}

func mergeHeaders(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// EmbeddingConfig 查询向量化端点。
type EmbeddingConfig struct {
	APIURL     string `toml:"api_url"`
	APIKey     string `toml:"api_key"`
	Model      string `toml:"model"`
	MaxRetries int    `toml:"max_retries"`
}

type RetrievalConfig struct {
	TopK                 int     `toml:"top_k"`
	SimilarityThreshold  float64 `toml:"similarity_threshold"`
	KeywordFallbackScore float64 `toml:"keyword_fallback_score"`
	EmbeddingDimension   int     `toml:"embedding_dimension"`
}

type RiskConfig struct {
	MaxConcurrentPositions   int     `toml:"max_concurrent_positions"`
	ConsecutiveLossThreshold int     `toml:"consecutive_loss_threshold"`
	MinRiskReward            float64 `toml:"min_risk_reward"`
}

type StateConfig struct {
	ResetCooldownSeconds int `toml:"reset_cooldown_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

type RubricConfig struct {
	Path string `toml:"path"`
}

type MarketConfig struct {
	ActiveSource           string         `toml:"active_source"`
	Sources                []MarketSource `toml:"sources"`
	PollIntervalSeconds    int            `toml:"poll_interval_seconds"`
	FetchTimeoutSeconds    int            `toml:"fetch_timeout_seconds"`
	MaxConcurrency         int            `toml:"max_concurrency"`
	BreakerThreshold       int            `toml:"breaker_threshold"`
	BreakerCooldownSeconds int            `toml:"breaker_cooldown_seconds"`
}

type MarketSource struct {
	Name        string      `toml:"name"`
	Enabled     bool        `toml:"enabled"`
	RESTBaseURL string      `toml:"rest_base_url"`
	Proxy       ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
}

func (m MarketConfig) ResolveActiveSource() MarketSource {
	if len(m.Sources) == 0 {
		return MarketSource{
			Name:        "binance",
			Enabled:     true,
			RESTBaseURL: "https://fapi.binance.com",
		}
	}
	active := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	var fallback MarketSource
	for _, src := range m.Sources {
		if fallback.Name == "" {
			fallback = src
		}
		if !src.Enabled {
			continue
		}
		if active == "" || strings.ToLower(src.Name) == active {
			return src
		}
	}
	return fallback
}

type ChartConfig struct {
	Enabled              bool `toml:"enabled"`
	Bars                 int  `toml:"bars"`
	EMAFast              int  `toml:"ema_fast"`
	EMAMid               int  `toml:"ema_mid"`
	EMASlow              int  `toml:"ema_slow"`
	RenderTimeoutSeconds int  `toml:"render_timeout_seconds"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
