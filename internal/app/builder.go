package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m3n89t-max/-chatbot/internal/analysis/chart"
	brcfg "github.com/m3n89t-max/-chatbot/internal/config"
	"github.com/m3n89t-max/-chatbot/internal/decision"
	"github.com/m3n89t-max/-chatbot/internal/gateway"
	"github.com/m3n89t-max/-chatbot/internal/gateway/notifier"
	"github.com/m3n89t-max/-chatbot/internal/gateway/provider"
	"github.com/m3n89t-max/-chatbot/internal/gateway/vectorstore"
	"github.com/m3n89t-max/-chatbot/internal/knowledge"
	"github.com/m3n89t-max/-chatbot/internal/logger"
	"github.com/m3n89t-max/-chatbot/internal/market"
	"github.com/m3n89t-max/-chatbot/internal/monitor"
	"github.com/m3n89t-max/-chatbot/internal/risk"
	"github.com/m3n89t-max/-chatbot/internal/rubric"
	"github.com/m3n89t-max/-chatbot/internal/store/decisionlog"
	"github.com/m3n89t-max/-chatbot/internal/store/gormstore"
	"github.com/m3n89t-max/-chatbot/internal/tradestate"
	httpapi "github.com/m3n89t-max/-chatbot/internal/transport/http"
)

type AppBuilder struct {
	cfg *brcfg.Config

	storesFn    func(*brcfg.Config) (*storeSet, error)
	rubricFn    func(string) (*rubric.Registry, error)
	providersFn func(*brcfg.Config, *rubric.Registry) (*providerSet, error)
	marketFn    func(*brcfg.Config) (market.Source, error)
	notifierFn  func(brcfg.NotifyConfig) notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		storesFn:    buildStores,
		rubricFn:    rubric.NewRegistry,
		providersFn: buildProviders,
		marketFn:    gateway.NewSourceFromConfig,
		notifierFn:  newTelegram,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// storeSet 主存储与审计存储。cycle_log_path 未配置时两者共用一个
// SQLite 连接，避免多连接锁冲突。
type storeSet struct {
	gorm   *gormstore.GormStore
	cycles *decisionlog.CycleLogStore
}

func buildStores(cfg *brcfg.Config) (*storeSet, error) {
	path := strings.TrimSpace(cfg.Database.SQLitePath)
	if path == "" {
		return nil, fmt.Errorf("database.sqlite_path 未配置，无法初始化存储")
	}
	gormStore, err := gormstore.NewGormStore(path)
	if err != nil {
		return nil, fmt.Errorf("初始化 gorm 存储失败: %w", err)
	}

	cyclePath := strings.TrimSpace(cfg.Database.CycleLogPath)
	shared := cyclePath == ""
	if shared {
		cyclePath = path
	}
	cycles, err := decisionlog.NewCycleLogStore(cyclePath)
	if err != nil {
		_ = gormStore.Close()
		return nil, fmt.Errorf("初始化审计存储失败: %w", err)
	}
	if shared {
		sqlDB, err := gormStore.SQLDB()
		if err != nil {
			_ = cycles.Close()
			_ = gormStore.Close()
			return nil, fmt.Errorf("获取 SQL DB 失败: %w", err)
		}
		if err := cycles.UseExternalDB(sqlDB); err != nil {
			_ = cycles.Close()
			_ = gormStore.Close()
			return nil, fmt.Errorf("绑定审计存储失败: %w", err)
		}
	}
	return &storeSet{gorm: gormStore, cycles: cycles}, nil
}

// providerSet 双情景提案方、规则评估器与查询向量化客户端。
type providerSet struct {
	scenarioA decision.ScenarioProvider
	scenarioB decision.ScenarioProvider
	evaluator decision.RuleEvaluator
	embedder  knowledge.Embedder
}

func buildProviders(cfg *brcfg.Config, registry *rubric.Registry) (*providerSet, error) {
	resolved, err := cfg.AI.ResolveModelConfigs()
	if err != nil {
		return nil, err
	}
	modelCfgs := make([]provider.ModelCfg, 0, len(resolved))
	for _, m := range resolved {
		modelCfgs = append(modelCfgs, provider.ModelCfg{
			ID:             m.ID,
			Provider:       m.Provider,
			APIURL:         m.APIURL,
			APIKey:         m.APIKey,
			Model:          m.Model,
			Enabled:        m.Enabled,
			Headers:        m.Headers,
			SupportsVision: m.SupportsVision,
			ExpectJSON:     m.ExpectJSON,
			MaxRetries:     m.MaxRetries,
		})
	}
	timeout := time.Duration(cfg.AI.RequestTimeoutSeconds) * time.Second
	providers := provider.BuildProvidersFromConfig(modelCfgs, timeout)

	provA, err := provider.FindProvider(providers, cfg.AI.ScenarioA)
	if err != nil {
		return nil, fmt.Errorf("ai.scenario_a: %w", err)
	}
	provB, err := provider.FindProvider(providers, cfg.AI.ScenarioB)
	if err != nil {
		return nil, fmt.Errorf("ai.scenario_b: %w", err)
	}
	provEval, err := provider.FindProvider(providers, cfg.AI.Evaluator)
	if err != nil {
		return nil, fmt.Errorf("ai.evaluator: %w", err)
	}

	embedder := &provider.OpenAIEmbeddingClient{
		BaseURL:    cfg.AI.Embedding.APIURL,
		APIKey:     cfg.AI.Embedding.APIKey,
		Model:      cfg.AI.Embedding.Model,
		Timeout:    timeout,
		MaxRetries: cfg.AI.Embedding.MaxRetries,
		ExpectDim:  cfg.Retrieval.EmbeddingDimension,
	}

	return &providerSet{
		scenarioA: provider.NewScenarioClient(provA, cfg.AI.PersonaA, cfg.AI.MaxTokens),
		scenarioB: provider.NewScenarioClient(provB, cfg.AI.PersonaB, cfg.AI.MaxTokens),
		evaluator: provider.NewEvaluatorClient(provEval, registry, cfg.AI.MaxTokens),
		embedder:  embedder,
	}, nil
}

func newTelegram(cfg brcfg.NotifyConfig) notifier.TextNotifier {
	if !cfg.Telegram.Enabled {
		return nil
	}
	return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	stores, err := b.storesFn(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 主存储就绪 %s", cfg.Database.SQLitePath)

	registry, err := b.rubricFn(cfg.Rubric.Path)
	if err != nil {
		return nil, fmt.Errorf("加载评分量表失败: %w", err)
	}
	logger.Infof("✓ 评分量表 %s 版本 %d", cfg.Rubric.Path, registry.Snapshot().Version)

	provs, err := b.providersFn(cfg, registry)
	if err != nil {
		return nil, err
	}

	source, err := b.marketFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化行情来源失败: %w", err)
	}
	logger.Infof("✓ 行情来源 %s", cfg.Market.ResolveActiveSource().Name)

	vstore, err := vectorstore.NewGormVectorStore(stores.gorm)
	if err != nil {
		return nil, err
	}
	ranker := knowledge.NewRanker(provs.embedder, vstore, cfg.Retrieval.KeywordFallbackScore)

	machine := tradestate.NewMachine(time.Duration(cfg.State.ResetCooldownSeconds) * time.Second)
	gate := risk.NewGate(risk.Limits{
		MaxConcurrentPositions:   cfg.Risk.MaxConcurrentPositions,
		ConsecutiveLossThreshold: cfg.Risk.ConsecutiveLossThreshold,
		MinRiskReward:            cfg.Risk.MinRiskReward,
	})

	var charts decision.ChartProvider
	if cfg.Chart.Enabled {
		renderer, err := chart.NewRenderer(source, chart.Config{
			Bars:          cfg.Chart.Bars,
			EMAFast:       cfg.Chart.EMAFast,
			EMAMid:        cfg.Chart.EMAMid,
			EMASlow:       cfg.Chart.EMASlow,
			RenderTimeout: time.Duration(cfg.Chart.RenderTimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化图表渲染失败: %w", err)
		}
		charts = renderer
	}

	textNotifier := b.notifierFn(cfg.Notify)

	var observers decision.ObserverChain
	if obs := decisionlog.NewCycleObserver(stores.cycles); obs != nil {
		observers = append(observers, obs)
	}
	if cn := notifier.NewCycleNotifier(textNotifier); cn != nil {
		observers = append(observers, cn)
	}

	engine, err := decision.NewEngine(decision.EngineParams{
		Retriever: ranker,
		ProviderA: provs.scenarioA,
		ProviderB: provs.scenarioB,
		Scorer:    decision.NewRubricScorer(provs.evaluator),
		Selector:  decision.NewSelector(time.Now().UnixNano()),
		Machine:   machine,
		Gate:      gate,
		States:    stores.gorm,
		Decisions: stores.gorm,
		Charts:    charts,
		Observer:  observers,
		Retrieval: decision.RetrievalSettings{
			TopK:                cfg.Retrieval.TopK,
			SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化决策引擎失败: %w", err)
	}

	mon, err := monitor.New(stores.gorm, source, machine, textNotifier, monitor.Config{
		PollInterval:     time.Duration(cfg.Market.PollIntervalSeconds) * time.Second,
		FetchTimeout:     time.Duration(cfg.Market.FetchTimeoutSeconds) * time.Second,
		MaxConcurrency:   cfg.Market.MaxConcurrency,
		BreakerThreshold: cfg.Market.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Market.BreakerCooldownSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化失效监控失败: %w", err)
	}

	sweeper := tradestate.NewResetSweeper(stores.gorm, machine,
		time.Duration(cfg.State.SweepIntervalSeconds)*time.Second)

	var httpSrv *httpapi.Server
	if cfg.Server.Enabled {
		router := &httpapi.Router{
			Engine:          engine,
			Audit:           stores.cycles,
			Knowledge:       stores.gorm,
			Retriever:       ranker,
			Embedder:        provs.embedder,
			Risk:            stores.gorm,
			Rubric:          registry,
			SearchTopK:      cfg.Retrieval.TopK,
			SearchThreshold: cfg.Retrieval.SimilarityThreshold,
		}
		httpSrv, err = httpapi.NewServer(httpapi.ServerConfig{Addr: cfg.Server.HTTPAddr, Router: router})
		if err != nil {
			return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
		}
		logger.Infof("✓ HTTP 接口监听 %s", httpSrv.Addr())
	}

	return &App{
		cfg:     cfg,
		store:   stores.gorm,
		cycles:  stores.cycles,
		source:  source,
		engine:  engine,
		monitor: mon,
		sweeper: sweeper,
		httpSrv: httpSrv,
		Summary: newStartupSummary(cfg),
	}, nil
}

func WithStores(fn func(*brcfg.Config) (*storeSet, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.storesFn = fn
		}
	}
}

func WithRubricRegistry(fn func(string) (*rubric.Registry, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.rubricFn = fn
		}
	}
}

func WithProviders(fn func(*brcfg.Config, *rubric.Registry) (*providerSet, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.providersFn = fn
		}
	}
}

func WithMarketSource(fn func(*brcfg.Config) (market.Source, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.marketFn = fn
		}
	}
}

func WithNotifier(fn func(brcfg.NotifyConfig) notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.notifierFn = fn
		}
	}
}
