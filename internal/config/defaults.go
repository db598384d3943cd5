package config

import (
	"fmt"
	"strings"
)

// 默认值常量
const (
	defaultAppName          = "wavebot"
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogPath       = "/data/logs/wavebot.log"
	defaultAppLLMLogPath    = "/data/logs/wavebot-llm.log"
	defaultServerHTTPAddr   = ":9990"
	defaultSQLitePath       = "/data/db/wavebot.db"
	defaultAIRequestTimeout = 120
	defaultAIMaxTokens      = 2048
	defaultEmbeddingRetries = 2

	defaultRetrievalTopK      = 5
	defaultRetrievalThreshold = 0.35
	defaultKeywordScore       = 0.5
	defaultEmbeddingDim       = 1536

	defaultRiskMaxPositions = 3
	defaultRiskLossStreak   = 3
	defaultRiskMinRR        = 1.5

	defaultStateResetCooldown = 5
	defaultStateSweepInterval = 5

	defaultRubricPath = "configs/rubric.yaml"

	defaultMarketName            = "binance"
	defaultMarketREST            = "https://fapi.binance.com"
	defaultMarketPollInterval    = 30
	defaultMarketFetchTimeout    = 5
	defaultMarketMaxConcurrency  = 4
	defaultMarketBreakerFailures = 5
	defaultMarketBreakerCooldown = 120

	defaultChartBars          = 120
	defaultChartEMAFast       = 21
	defaultChartEMAMid        = 50
	defaultChartEMASlow       = 200
	defaultChartRenderTimeout = 20
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Server.applyDefaults(keys)
	c.Database.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.Retrieval.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.State.applyDefaults(keys)
	c.Rubric.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Chart.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.name", &a.Name, defaultAppName),
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.llm_log_path", &a.LLMLog, defaultAppLLMLogPath),
	)
}

func (s *ServerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("server.enabled", &s.Enabled, true),
		stringFieldDefault("server.http_addr", &s.HTTPAddr, defaultServerHTTPAddr),
	)
}

func (d *DatabaseConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("database.sqlite_path", &d.SQLitePath, defaultSQLitePath),
	)
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	if a.ProviderPresets == nil {
		a.ProviderPresets = make(map[string]ModelPreset)
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "ai.request_timeout_seconds",
			need:  func() bool { return a.RequestTimeoutSeconds <= 0 },
			apply: func() { a.RequestTimeoutSeconds = defaultAIRequestTimeout },
		},
		fieldDefault{
			key:   "ai.max_tokens",
			need:  func() bool { return a.MaxTokens <= 0 },
			apply: func() { a.MaxTokens = defaultAIMaxTokens },
		},
		fieldDefault{
			key:   "ai.embedding.max_retries",
			need:  func() bool { return a.Embedding.MaxRetries <= 0 },
			apply: func() { a.Embedding.MaxRetries = defaultEmbeddingRetries },
		},
	)
	// 角色未显式指定时，按模型列表顺序兜底：第一个当 A，第二个当 B，
	// 评估器跟随 B。
	resolved, err := a.ResolveModelConfigs()
	if err != nil {
		return
	}
	enabled := make([]ResolvedModelConfig, 0, len(resolved))
	for _, m := range resolved {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	if strings.TrimSpace(a.ScenarioA) == "" && len(enabled) > 0 {
		a.ScenarioA = enabled[0].ID
	}
	if strings.TrimSpace(a.ScenarioB) == "" {
		if len(enabled) > 1 {
			a.ScenarioB = enabled[1].ID
		} else if len(enabled) > 0 {
			a.ScenarioB = enabled[0].ID
		}
	}
	if strings.TrimSpace(a.Evaluator) == "" {
		a.Evaluator = a.ScenarioB
	}
}

func (r *RetrievalConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "retrieval.top_k",
			need:  func() bool { return r.TopK <= 0 },
			apply: func() { r.TopK = defaultRetrievalTopK },
		},
		fieldDefault{
			key:   "retrieval.similarity_threshold",
			need:  func() bool { return r.SimilarityThreshold <= 0 },
			apply: func() { r.SimilarityThreshold = defaultRetrievalThreshold },
		},
		fieldDefault{
			key:   "retrieval.keyword_fallback_score",
			need:  func() bool { return r.KeywordFallbackScore <= 0 },
			apply: func() { r.KeywordFallbackScore = defaultKeywordScore },
		},
		fieldDefault{
			key:   "retrieval.embedding_dimension",
			need:  func() bool { return r.EmbeddingDimension <= 0 },
			apply: func() { r.EmbeddingDimension = defaultEmbeddingDim },
		},
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.max_concurrent_positions",
			need:  func() bool { return r.MaxConcurrentPositions <= 0 },
			apply: func() { r.MaxConcurrentPositions = defaultRiskMaxPositions },
		},
		fieldDefault{
			key:   "risk.consecutive_loss_threshold",
			need:  func() bool { return r.ConsecutiveLossThreshold <= 0 },
			apply: func() { r.ConsecutiveLossThreshold = defaultRiskLossStreak },
		},
		fieldDefault{
			key:   "risk.min_risk_reward",
			need:  func() bool { return r.MinRiskReward <= 0 },
			apply: func() { r.MinRiskReward = defaultRiskMinRR },
		},
	)
}

func (s *StateConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "state.reset_cooldown_seconds",
			need:  func() bool { return s.ResetCooldownSeconds <= 0 },
			apply: func() { s.ResetCooldownSeconds = defaultStateResetCooldown },
		},
		fieldDefault{
			key:   "state.sweep_interval_seconds",
			need:  func() bool { return s.SweepIntervalSeconds <= 0 },
			apply: func() { s.SweepIntervalSeconds = defaultStateSweepInterval },
		},
	)
}

func (r *RubricConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("rubric.path", &r.Path, defaultRubricPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	if len(m.Sources) == 0 {
		m.Sources = []MarketSource{{
			Name:        defaultMarketName,
			Enabled:     true,
			RESTBaseURL: defaultMarketREST,
		}}
	}
	for i := range m.Sources {
		src := &m.Sources[i]
		src.Proxy.normalize()
		if strings.TrimSpace(src.Name) == "" {
			if i == 0 {
				src.Name = defaultMarketName
			} else {
				src.Name = fmt.Sprintf("market_%d", i)
			}
		}
		if src.RESTBaseURL == "" {
			src.RESTBaseURL = defaultMarketREST
		}
	}
	if strings.TrimSpace(m.ActiveSource) == "" {
		m.ActiveSource = firstEnabledMarket(m.Sources)
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "market.poll_interval_seconds",
			need:  func() bool { return m.PollIntervalSeconds <= 0 },
			apply: func() { m.PollIntervalSeconds = defaultMarketPollInterval },
		},
		fieldDefault{
			key:   "market.fetch_timeout_seconds",
			need:  func() bool { return m.FetchTimeoutSeconds <= 0 },
			apply: func() { m.FetchTimeoutSeconds = defaultMarketFetchTimeout },
		},
		fieldDefault{
			key:   "market.max_concurrency",
			need:  func() bool { return m.MaxConcurrency <= 0 },
			apply: func() { m.MaxConcurrency = defaultMarketMaxConcurrency },
		},
		fieldDefault{
			key:   "market.breaker_threshold",
			need:  func() bool { return m.BreakerThreshold <= 0 },
			apply: func() { m.BreakerThreshold = defaultMarketBreakerFailures },
		},
		fieldDefault{
			key:   "market.breaker_cooldown_seconds",
			need:  func() bool { return m.BreakerCooldownSeconds <= 0 },
			apply: func() { m.BreakerCooldownSeconds = defaultMarketBreakerCooldown },
		},
	)
}

func (c *ChartConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("chart.enabled", &c.Enabled, true),
		fieldDefault{
			key:   "chart.bars",
			need:  func() bool { return c.Bars <= 0 },
			apply: func() { c.Bars = defaultChartBars },
		},
		fieldDefault{
			key:   "chart.ema_fast",
			need:  func() bool { return c.EMAFast <= 0 },
			apply: func() { c.EMAFast = defaultChartEMAFast },
		},
		fieldDefault{
			key:   "chart.ema_mid",
			need:  func() bool { return c.EMAMid <= 0 },
			apply: func() { c.EMAMid = defaultChartEMAMid },
		},
		fieldDefault{
			key:   "chart.ema_slow",
			need:  func() bool { return c.EMASlow <= 0 },
			apply: func() { c.EMASlow = defaultChartEMASlow },
		},
		fieldDefault{
			key:   "chart.render_timeout_seconds",
			need:  func() bool { return c.RenderTimeoutSeconds <= 0 },
			apply: func() { c.RenderTimeoutSeconds = defaultChartRenderTimeout },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func firstEnabledMarket(sources []MarketSource) string {
	for _, src := range sources {
		name := strings.TrimSpace(src.Name)
		if src.Enabled && name != "" {
			return name
		}
	}
	if len(sources) > 0 {
		if name := strings.TrimSpace(sources[0].Name); name != "" {
			return name
		}
	}
	return defaultMarketName
}
