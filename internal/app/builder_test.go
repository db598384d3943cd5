package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brcfg "github.com/m3n89t-max/-chatbot/internal/config"
	"github.com/m3n89t-max/-chatbot/internal/decision"
	"github.com/m3n89t-max/-chatbot/internal/market"
	"github.com/m3n89t-max/-chatbot/internal/rubric"
	"github.com/m3n89t-max/-chatbot/internal/store/decisionlog"
)

const builderRubric = `rubric:
  instruction: "只输出 JSON。"
  axes:
    invalidation_clarity:
      title: "失效位清晰度"
      order: 1
    risk_reward_quality:
      title: "盈亏比质量"
      order: 2
    structural_simplicity:
      title: "结构简洁度"
      order: 3
    resolution_speed:
      title: "验证速度"
      order: 4
  output_schema:
    type: object
    required: [rule_valid]
    properties:
      rule_valid:
        type: boolean
`

type stubScenario struct{ id string }

func (s stubScenario) ID() string { return s.id }

func (s stubScenario) Propose(ctx context.Context, req decision.ProposalRequest) (decision.ScenarioProposal, error) {
	return decision.ScenarioProposal{}, nil
}

type stubEvaluator struct{}

func (stubEvaluator) Evaluate(ctx context.Context, proposal decision.ScenarioProposal, contextText string) (decision.Evaluation, error) {
	return decision.Evaluation{}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

type stubSource struct{}

func (stubSource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	return nil, nil
}

func (stubSource) LastPrice(ctx context.Context, symbol string) (float64, error) {
	return 27000, nil
}

func (stubSource) Close() error { return nil }

func stubProviderSet(_ *brcfg.Config, _ *rubric.Registry) (*providerSet, error) {
	return &providerSet{
		scenarioA: stubScenario{id: "model-a"},
		scenarioB: stubScenario{id: "model-b"},
		evaluator: stubEvaluator{},
		embedder:  stubEmbedder{},
	}, nil
}

func stubMarketSource(_ *brcfg.Config) (market.Source, error) {
	return stubSource{}, nil
}

func builderConfig(t *testing.T) *brcfg.Config {
	t.Helper()
	dir := t.TempDir()
	rubricPath := filepath.Join(dir, "rubric.yaml")
	require.NoError(t, os.WriteFile(rubricPath, []byte(builderRubric), 0o644))

	cfg := &brcfg.Config{}
	cfg.App.LogLevel = "warn"
	cfg.Server.Enabled = true
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Database.SQLitePath = filepath.Join(dir, "wavebot.db")
	cfg.Rubric.Path = rubricPath
	cfg.Retrieval.TopK = 5
	cfg.Retrieval.SimilarityThreshold = 0.3
	cfg.Retrieval.KeywordFallbackScore = 0.5
	cfg.Retrieval.EmbeddingDimension = 4
	cfg.Risk.MaxConcurrentPositions = 3
	cfg.Risk.ConsecutiveLossThreshold = 3
	cfg.Risk.MinRiskReward = 1.5
	cfg.State.ResetCooldownSeconds = 5
	cfg.State.SweepIntervalSeconds = 30
	cfg.Market.PollIntervalSeconds = 60
	cfg.Market.FetchTimeoutSeconds = 10
	return cfg
}

func TestAppBuilderBuild(t *testing.T) {
	t.Run("完整构建并可重复关闭", func(t *testing.T) {
		cfg := builderConfig(t)
		b := NewAppBuilder(cfg,
			WithProviders(stubProviderSet),
			WithMarketSource(stubMarketSource),
		)
		app, err := b.Build(context.Background())
		require.NoError(t, err)
		require.NotNil(t, app)

		assert.NotNil(t, app.Engine())
		assert.NotNil(t, app.Summary)
		assert.NotNil(t, app.httpSrv)
		assert.NotNil(t, app.monitor)
		assert.NotNil(t, app.sweeper)

		// cycle_log_path 为空时审计表建在主库里，建表没生效这里会报错。
		records, err := app.cycles.ListCycles(context.Background(), decisionlog.CycleQuery{Limit: 5})
		require.NoError(t, err)
		assert.Empty(t, records)

		app.Close()
		app.Close()
	})

	t.Run("nil 配置直接报错", func(t *testing.T) {
		_, err := NewAppBuilder(nil).Build(context.Background())
		require.Error(t, err)
	})

	t.Run("量表文件缺失时报错", func(t *testing.T) {
		cfg := builderConfig(t)
		cfg.Rubric.Path = filepath.Join(t.TempDir(), "missing.yaml")
		b := NewAppBuilder(cfg,
			WithProviders(stubProviderSet),
			WithMarketSource(stubMarketSource),
		)
		_, err := b.Build(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "加载评分量表失败")
	})

	t.Run("行情来源失败时中止", func(t *testing.T) {
		cfg := builderConfig(t)
		b := NewAppBuilder(cfg,
			WithProviders(stubProviderSet),
			WithMarketSource(func(*brcfg.Config) (market.Source, error) {
				return nil, errors.New("boom")
			}),
		)
		_, err := b.Build(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "初始化行情来源失败")
	})

	t.Run("未启用 HTTP 时不建服务", func(t *testing.T) {
		cfg := builderConfig(t)
		cfg.Server.Enabled = false
		b := NewAppBuilder(cfg,
			WithProviders(stubProviderSet),
			WithMarketSource(stubMarketSource),
		)
		app, err := b.Build(context.Background())
		require.NoError(t, err)
		defer app.Close()
		assert.Nil(t, app.httpSrv)
	})
}

func TestNewStartupSummary(t *testing.T) {
	cfg := builderConfig(t)
	cfg.AI.ScenarioA = "model-a"
	cfg.AI.ScenarioB = "model-b"
	cfg.AI.Evaluator = "model-eval"
	cfg.AI.Embedding.Model = "text-embedding-3-small"
	cfg.Server.Enabled = false

	s := newStartupSummary(cfg)
	assert.Equal(t, "model-a", s.Models.ScenarioA)
	assert.Equal(t, "model-b", s.Models.ScenarioB)
	assert.Equal(t, "model-eval", s.Models.Evaluator)
	assert.Equal(t, 5, s.Retrieval.TopK)
	// 未配置行情来源时回落到默认 binance。
	assert.Equal(t, "binance", s.Market.Source)
	assert.Empty(t, s.HTTPAddr)
	assert.False(t, s.Telegram)
}
