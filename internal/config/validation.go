package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.Retrieval.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.State.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Chart.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Database.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	if strings.TrimSpace(d.SQLitePath) == "" {
		return fmt.Errorf("database.sqlite_path cannot be empty")
	}
	return nil
}

func (a *AIConfig) validate() error {
	if a.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("ai.request_timeout_seconds must be > 0")
	}
	models, err := a.ResolveModelConfigs()
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return fmt.Errorf("ai.models requires at least one model")
	}
	modelSet := make(map[string]struct{}, len(models))
	for _, m := range models {
		if strings.TrimSpace(m.Model) == "" {
			return fmt.Errorf("ai.models contains entry without model (id=%s)", m.ID)
		}
		if strings.TrimSpace(m.APIURL) == "" {
			return fmt.Errorf("ai.models.%s missing api_url (can inherit from preset)", m.ID)
		}
		if strings.TrimSpace(m.Provider) == "" {
			return fmt.Errorf("ai.models.%s missing provider", m.ID)
		}
		if _, dup := modelSet[strings.ToLower(m.ID)]; dup {
			return fmt.Errorf("ai.models contains duplicate id: %s", m.ID)
		}
		modelSet[strings.ToLower(m.ID)] = struct{}{}
	}
	for role, id := range map[string]string{
		"ai.scenario_a": a.ScenarioA,
		"ai.scenario_b": a.ScenarioB,
		"ai.evaluator":  a.Evaluator,
	} {
		id = strings.TrimSpace(id)
		if id == "" {
			return fmt.Errorf("%s cannot be empty", role)
		}
		if _, ok := modelSet[strings.ToLower(id)]; !ok {
			return fmt.Errorf("%s references unconfigured model id: %s", role, id)
		}
	}
	if strings.TrimSpace(a.Embedding.Model) == "" {
		return fmt.Errorf("ai.embedding.model cannot be empty")
	}
	return nil
}

func (r *RetrievalConfig) validate() error {
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	if r.SimilarityThreshold <= 0 || r.SimilarityThreshold >= 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in (0, 1)")
	}
	if r.KeywordFallbackScore <= 0 || r.KeywordFallbackScore > 1 {
		return fmt.Errorf("retrieval.keyword_fallback_score must be in (0, 1]")
	}
	if r.EmbeddingDimension <= 0 {
		return fmt.Errorf("retrieval.embedding_dimension must be > 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("risk.max_concurrent_positions must be > 0")
	}
	if r.ConsecutiveLossThreshold <= 0 {
		return fmt.Errorf("risk.consecutive_loss_threshold must be > 0")
	}
	if r.MinRiskReward <= 0 {
		return fmt.Errorf("risk.min_risk_reward must be > 0")
	}
	return nil
}

func (s *StateConfig) validate() error {
	if s.ResetCooldownSeconds <= 0 {
		return fmt.Errorf("state.reset_cooldown_seconds must be > 0")
	}
	if s.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("state.sweep_interval_seconds must be > 0")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if len(m.Sources) == 0 {
		return fmt.Errorf("market.sources requires at least one source")
	}
	activeName := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	enabled := 0
	activeFound := false
	for _, src := range m.Sources {
		if !src.Enabled {
			continue
		}
		enabled++
		if strings.TrimSpace(src.RESTBaseURL) == "" {
			return fmt.Errorf("market source %s missing rest_base_url", src.Name)
		}
		if src.Proxy.Enabled && src.Proxy.RESTURL == "" {
			return fmt.Errorf("market source %s has proxy enabled but no rest_url", src.Name)
		}
		name := strings.ToLower(strings.TrimSpace(src.Name))
		if activeName == "" || name == activeName {
			activeFound = true
		}
	}
	if enabled == 0 {
		return fmt.Errorf("market.sources requires at least one enabled source")
	}
	if !activeFound {
		return fmt.Errorf("enabled market.active_source=%s not found", m.ActiveSource)
	}
	return nil
}

func (c *ChartConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Bars < 30 || c.Bars > 1000 {
		return fmt.Errorf("chart.bars must be in [30,1000]")
	}
	if c.EMAFast <= 0 || c.EMAMid <= 0 || c.EMASlow <= 0 {
		return fmt.Errorf("chart ema periods must be > 0")
	}
	if c.EMAFast >= c.EMAMid || c.EMAMid >= c.EMASlow {
		return fmt.Errorf("chart ema periods must satisfy fast < mid < slow")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

// IsValidInterval 简易校验：以数字开头，以 m/h/d/w 结尾
func IsValidInterval(s string) bool {
	if s == "" {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
