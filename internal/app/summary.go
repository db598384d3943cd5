package app

import (
	"fmt"
	"strings"

	brcfg "github.com/m3n89t-max/-chatbot/internal/config"
)

// StartupSummary 启动时打印配置摘要，便于核对双情景、检索与风控参数。
type StartupSummary struct {
	Models    ModelSummary
	Retrieval RetrievalSummary
	Risk      RiskSummary
	Market    MarketSummary
	Chart     ChartSummary
	Personas  map[string]string

	HTTPAddr string
	Telegram bool
}

type ModelSummary struct {
	ScenarioA string
	ScenarioB string
	Evaluator string
	Embedding string
}

type RetrievalSummary struct {
	TopK            int
	Threshold       float64
	KeywordFallback float64
	EmbeddingDim    int
}

type RiskSummary struct {
	MaxPositions  int
	LossThreshold int
	MinRiskReward float64
}

type MarketSummary struct {
	Source       string
	PollSeconds  int
	FetchSeconds int
}

type ChartSummary struct {
	Enabled bool
	Bars    int
	Periods []int
}

func newStartupSummary(cfg *brcfg.Config) *StartupSummary {
	s := &StartupSummary{
		Models: ModelSummary{
			ScenarioA: cfg.AI.ScenarioA,
			ScenarioB: cfg.AI.ScenarioB,
			Evaluator: cfg.AI.Evaluator,
			Embedding: cfg.AI.Embedding.Model,
		},
		Retrieval: RetrievalSummary{
			TopK:            cfg.Retrieval.TopK,
			Threshold:       cfg.Retrieval.SimilarityThreshold,
			KeywordFallback: cfg.Retrieval.KeywordFallbackScore,
			EmbeddingDim:    cfg.Retrieval.EmbeddingDimension,
		},
		Risk: RiskSummary{
			MaxPositions:  cfg.Risk.MaxConcurrentPositions,
			LossThreshold: cfg.Risk.ConsecutiveLossThreshold,
			MinRiskReward: cfg.Risk.MinRiskReward,
		},
		Market: MarketSummary{
			Source:       cfg.Market.ResolveActiveSource().Name,
			PollSeconds:  cfg.Market.PollIntervalSeconds,
			FetchSeconds: cfg.Market.FetchTimeoutSeconds,
		},
		Chart: ChartSummary{
			Enabled: cfg.Chart.Enabled,
			Bars:    cfg.Chart.Bars,
			Periods: []int{cfg.Chart.EMAFast, cfg.Chart.EMAMid, cfg.Chart.EMASlow},
		},
		Personas: map[string]string{
			"A": cfg.AI.PersonaA,
			"B": cfg.AI.PersonaB,
		},
		Telegram: cfg.Notify.Telegram.Enabled,
	}
	if cfg.Server.Enabled {
		s.HTTPAddr = cfg.Server.HTTPAddr
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[模型编排 (AI MODELS)]")
	fmt.Printf("  情景 A: %s\n", orDash(s.Models.ScenarioA))
	fmt.Printf("  情景 B: %s\n", orDash(s.Models.ScenarioB))
	fmt.Printf("  评估器: %s\n", orDash(s.Models.Evaluator))
	fmt.Printf("  向量化: %s\n", orDash(s.Models.Embedding))
	fmt.Println()

	fmt.Println("[知识检索 (RETRIEVAL)]")
	fmt.Printf("  TopK: %d\n", s.Retrieval.TopK)
	fmt.Printf("  相似度阈值: %.2f\n", s.Retrieval.Threshold)
	fmt.Printf("  关键词兜底分: %.2f\n", s.Retrieval.KeywordFallback)
	fmt.Printf("  向量维度: %d\n", s.Retrieval.EmbeddingDim)
	fmt.Println()

	fmt.Println("[风控闸门 (RISK GATE)]")
	fmt.Printf("  最大并发持仓: %d\n", s.Risk.MaxPositions)
	fmt.Printf("  连续亏损阈值: %d\n", s.Risk.LossThreshold)
	fmt.Printf("  最低盈亏比: %.2f\n", s.Risk.MinRiskReward)
	fmt.Println()

	fmt.Println("[失效监控 (INVALIDATION MONITOR)]")
	fmt.Printf("  行情来源: %s\n", orDash(s.Market.Source))
	fmt.Printf("  轮询间隔: %ds\n", s.Market.PollSeconds)
	fmt.Printf("  拉取超时: %ds\n", s.Market.FetchSeconds)
	fmt.Println()

	fmt.Println("[图表渲染 (CHART)]")
	if s.Chart.Enabled {
		fmt.Printf("  启用, K线数: %d, EMA 周期: %s\n", s.Chart.Bars, formatPeriods(s.Chart.Periods))
	} else {
		fmt.Println("  (未启用)")
	}
	fmt.Println()

	fmt.Println("[通知与服务 (NOTIFY & SERVER)]")
	if s.Telegram {
		fmt.Println("  Telegram: 启用")
	} else {
		fmt.Println("  Telegram: 关闭")
	}
	if s.HTTPAddr != "" {
		fmt.Printf("  HTTP 接口: %s\n", s.HTTPAddr)
	} else {
		fmt.Println("  HTTP 接口: (未启用)")
	}
	fmt.Println()

	fmt.Println("[情景人设 (PERSONAS)]")
	for _, key := range []string{"A", "B"} {
		persona := s.Personas[key]
		if strings.TrimSpace(persona) == "" {
			fmt.Printf("  > 情景 %s: (默认人设)\n", key)
			continue
		}
		preview := persona
		lines := strings.Split(persona, "\n")
		if len(lines) > 5 {
			preview = strings.Join(lines[:5], "\n") + "\n... (truncated)"
		}
		preview = strings.ReplaceAll(preview, "\n", "\n    ")
		fmt.Printf("  > 情景 %s:\n    %s\n", key, preview)
	}
	fmt.Println(strings.Repeat("=", 80))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatPeriods(periods []int) string {
	parts := make([]string, 0, len(periods))
	for _, p := range periods {
		parts = append(parts, fmt.Sprintf("%d", p))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "/")
}
