package monitor

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/m3n89t-max/-chatbot/internal/gateway/notifier"
	"github.com/m3n89t-max/-chatbot/internal/logger"
	"github.com/m3n89t-max/-chatbot/internal/market"
	"github.com/m3n89t-max/-chatbot/internal/pkg/circuit"
	"github.com/m3n89t-max/-chatbot/internal/scheduler"
	"github.com/m3n89t-max/-chatbot/internal/tradestate"
)

// 中文说明：价格失效监控。周期性扫描处于 CONFIRMED_* 状态的三元组，
// 从失效条件原文解出价位，与最新成交价比较：多头跌破、空头升破即
// 触发 INVALIDATED_RESET 并推送通知。行情接口连续失败时熔断，
// 冷却后放行一次探测。

type Config struct {
	PollInterval     time.Duration
	FetchTimeout     time.Duration
	MaxConcurrency   int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = 30 * time.Second
	}
	if out.FetchTimeout <= 0 {
		out.FetchTimeout = 5 * time.Second
	}
	if out.MaxConcurrency <= 0 {
		out.MaxConcurrency = 4
	}
	if out.BreakerThreshold <= 0 {
		out.BreakerThreshold = 5
	}
	if out.BreakerCooldown <= 0 {
		out.BreakerCooldown = 2 * time.Minute
	}
	return out
}

type Monitor struct {
	store   tradestate.Store
	source  market.Source
	machine *tradestate.Machine
	notify  notifier.TextNotifier
	breaker *circuit.Breaker
	cfg     Config
}

func New(store tradestate.Store, source market.Source, machine *tradestate.Machine, notify notifier.TextNotifier, cfg Config) (*Monitor, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: 状态存储不能为空")
	}
	if source == nil {
		return nil, fmt.Errorf("monitor: 行情来源不能为空")
	}
	if machine == nil {
		return nil, fmt.Errorf("monitor: 状态机不能为空")
	}
	cfg = cfg.withDefaults()
	return &Monitor{
		store:   store,
		source:  source,
		machine: machine,
		notify:  notify,
		breaker: circuit.NewBreaker("market-price", cfg.BreakerThreshold, cfg.BreakerCooldown),
		cfg:     cfg,
	}, nil
}

// Run 阻塞轮询直到 ctx 取消，返回值恒为 nil，便于放进 errgroup。
func (m *Monitor) Run(ctx context.Context) error {
	sched := scheduler.NewAlignedScheduler(ctx, m.cfg.PollInterval, 0)
	sched.RunImmediately = true
	sched.Start(func() {
		m.Sweep(ctx)
	})
	return nil
}

// Sweep 执行单轮扫描。导出供手动触发与测试使用。
func (m *Monitor) Sweep(ctx context.Context) {
	if !m.breaker.Allow() {
		logger.Warnf("行情熔断打开，跳过本轮失效扫描")
		return
	}
	records, err := m.store.ListByStates(ctx, tradestate.ConfirmedStates...)
	if err != nil {
		logger.Errorf("读取确认态记录失败: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}
	prices := m.fetchPrices(ctx, records)
	for _, rec := range records {
		price, ok := prices[strings.ToUpper(strings.TrimSpace(rec.Symbol))]
		if !ok {
			continue
		}
		m.evaluate(ctx, rec, price)
	}
}

// fetchPrices 按标的去重后并发取价，单个失败只记一次熔断计数，
// 不终止整轮。
func (m *Monitor) fetchPrices(ctx context.Context, records []tradestate.Record) map[string]float64 {
	seen := make(map[string]struct{}, len(records))
	symbols := make([]string, 0, len(records))
	for _, rec := range records {
		sym := strings.ToUpper(strings.TrimSpace(rec.Symbol))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}

	var mu sync.Mutex
	out := make(map[string]float64, len(symbols))
	var eg errgroup.Group
	eg.SetLimit(m.cfg.MaxConcurrency)
	for _, sym := range symbols {
		sym := sym
		eg.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
			defer cancel()
			price, err := m.source.LastPrice(fetchCtx, sym)
			if err != nil {
				m.breaker.RecordFailure()
				logger.Warnf("查询 %s 最新价失败: %v", sym, err)
				return nil
			}
			m.breaker.RecordSuccess()
			mu.Lock()
			out[sym] = price
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func (m *Monitor) evaluate(ctx context.Context, rec tradestate.Record, price float64) {
	level, ok := ParseInvalidationLevel(rec.LastInvalidation, price)
	if !ok {
		logger.Debugf("%s/%s/%s 失效条件无法解析价位: %q",
			rec.ConversationID, rec.Symbol, rec.Timeframe, rec.LastInvalidation)
		return
	}
	if !Crossed(rec.LastDirection, price, level) {
		return
	}
	before := rec.State
	if err := m.machine.Transition(&rec, tradestate.StateInvalidatedReset); err != nil {
		logger.Warnf("%s/%s/%s 失效迁移被拒: %v", rec.ConversationID, rec.Symbol, rec.Timeframe, err)
		return
	}
	if err := m.store.UpsertTradingState(ctx, rec); err != nil {
		logger.Errorf("%s/%s/%s 失效落库失败: %v", rec.ConversationID, rec.Symbol, rec.Timeframe, err)
		return
	}
	logger.Infof("%s/%s/%s 价格触发失效: price=%s level=%s %s -> %s",
		rec.ConversationID, rec.Symbol, rec.Timeframe,
		market.FormatPrice(price), level.String(), before, rec.State)
	m.sendResetNotice(rec, price, level)
}

func (m *Monitor) sendResetNotice(rec tradestate.Record, price float64, level decimal.Decimal) {
	if m.notify == nil {
		return
	}
	msg := notifier.InvalidationResetMessage(notifier.InvalidationNotice{
		ConversationID: rec.ConversationID,
		Symbol:         rec.Symbol,
		Timeframe:      rec.Timeframe,
		Direction:      rec.LastDirection,
		Price:          market.FormatPrice(price),
		Level:          level.String(),
		Condition:      rec.LastInvalidation,
		ResetDeadline:  rec.ResetDeadline,
	})
	if err := m.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("失效通知发送失败: %v", err)
	}
}

var numberPattern = regexp.MustCompile(`\d+(?:,\d{3})*(?:\.\d+)?`)

// ParseInvalidationLevel 从失效条件原文中解出价位。原文里常混有
// 浪编号、周期之类的干扰数字，取与参考价对数距离最近的候选；
// 参考价非正时退化为第一个正数候选。
func ParseInvalidationLevel(text string, refPrice float64) (decimal.Decimal, bool) {
	matches := numberPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return decimal.Decimal{}, false
	}
	var (
		best     decimal.Decimal
		bestDist = math.Inf(1)
		found    bool
	)
	logRef := 0.0
	if refPrice > 0 {
		logRef = math.Log(refPrice)
	}
	for _, raw := range matches {
		cand, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil || !cand.IsPositive() {
			continue
		}
		if refPrice <= 0 {
			return cand, true
		}
		f, _ := cand.Float64()
		dist := math.Abs(math.Log(f) - logRef)
		if dist < bestDist {
			best = cand
			bestDist = dist
			found = true
		}
	}
	return best, found
}

// Crossed 判断价格是否越过失效位。多头跌破（含相等）、
// 空头升破（含相等）视为触发，方向缺失不触发。
func Crossed(direction string, price float64, level decimal.Decimal) bool {
	p := decimal.NewFromFloat(price)
	switch strings.ToUpper(strings.TrimSpace(direction)) {
	case "LONG":
		return p.Cmp(level) <= 0
	case "SHORT":
		return p.Cmp(level) >= 0
	default:
		return false
	}
}
