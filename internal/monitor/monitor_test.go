package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/m3n89t-max/-chatbot/internal/gateway/notifier"
	"github.com/m3n89t-max/-chatbot/internal/market"
	"github.com/m3n89t-max/-chatbot/internal/tradestate"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetTradingState(ctx context.Context, conversationID, symbol, timeframe string) (tradestate.Record, bool, error) {
	args := m.Called(ctx, conversationID, symbol, timeframe)
	return args.Get(0).(tradestate.Record), args.Bool(1), args.Error(2)
}

func (m *mockStore) UpsertTradingState(ctx context.Context, rec tradestate.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) ListResetDue(ctx context.Context, now time.Time) ([]tradestate.Record, error) {
	args := m.Called(ctx, now)
	if v := args.Get(0); v != nil {
		return v.([]tradestate.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ListByStates(ctx context.Context, states ...tradestate.State) ([]tradestate.Record, error) {
	args := m.Called(ctx, states)
	if v := args.Get(0); v != nil {
		return v.([]tradestate.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	args := m.Called(ctx, symbol, interval, limit)
	if v := args.Get(0); v != nil {
		return v.([]market.Candle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) LastPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockSource) Close() error {
	return nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendText(text string) error {
	args := m.Called(text)
	return args.Error(0)
}

func confirmedRecord(conversation, symbol, direction, invalidation string) tradestate.Record {
	return tradestate.Record{
		ConversationID:   conversation,
		Symbol:           symbol,
		Timeframe:        "4h",
		State:            tradestate.StateConfirmedImpulse,
		LastDirection:    direction,
		LastLabel:        "impulse",
		LastInvalidation: invalidation,
	}
}

func newTestMonitor(t *testing.T, store *mockStore, source *mockSource, notify *mockNotifier, cfg Config) *Monitor {
	t.Helper()
	machine := tradestate.NewMachine(5 * time.Second)
	machine.NowFn = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	var sender notifier.TextNotifier
	if notify != nil {
		sender = notify
	}
	m, err := New(store, source, machine, sender, cfg)
	require.NoError(t, err)
	return m
}

func TestParseInvalidationLevel(t *testing.T) {
	t.Run("与参考价最接近的候选胜出", func(t *testing.T) {
		level, ok := ParseInvalidationLevel("4小时收盘跌破 60500 即第3浪计数失效", 62000)
		require.True(t, ok)
		assert.Equal(t, "60500", level.String())
	})

	t.Run("支持千分位与小数", func(t *testing.T) {
		level, ok := ParseInvalidationLevel("跌破 1,234.56 失效", 1200)
		require.True(t, ok)
		assert.Equal(t, "1234.56", level.String())
	})

	t.Run("小市值价位", func(t *testing.T) {
		level, ok := ParseInvalidationLevel("升破 0.0456 则空头情景失效", 0.044)
		require.True(t, ok)
		assert.Equal(t, "0.0456", level.String())
	})

	t.Run("参考价缺失取第一个正数", func(t *testing.T) {
		level, ok := ParseInvalidationLevel("跌破 60500 失效", 0)
		require.True(t, ok)
		assert.Equal(t, "60500", level.String())
	})

	t.Run("无数字返回未命中", func(t *testing.T) {
		_, ok := ParseInvalidationLevel("结构破坏即失效", 62000)
		assert.False(t, ok)
	})
}

func TestCrossed(t *testing.T) {
	level := decimal.NewFromInt(60500)
	cases := []struct {
		name      string
		direction string
		price     float64
		want      bool
	}{
		{"多头跌破", "LONG", 60400, true},
		{"多头触及等于", "LONG", 60500, true},
		{"多头在上方", "LONG", 60600, false},
		{"空头升破", "SHORT", 60600, true},
		{"空头触及等于", "short", 60500, true},
		{"空头在下方", "SHORT", 60400, false},
		{"方向缺失不触发", "", 60400, false},
		{"HOLD 不触发", "HOLD", 60400, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Crossed(tc.direction, tc.price, level))
		})
	}
}

func TestSweepTriggersInvalidationReset(t *testing.T) {
	store := new(mockStore)
	source := new(mockSource)
	notify := new(mockNotifier)

	recA := confirmedRecord("conv-1", "BTC/USDT", "LONG", "跌破 60500 即失效")
	recB := confirmedRecord("conv-2", "BTC/USDT", "LONG", "跌破 59000 即失效")
	store.On("ListByStates", mock.Anything, mock.Anything).Return([]tradestate.Record{recA, recB}, nil).Once()
	source.On("LastPrice", mock.Anything, "BTC/USDT").Return(60400.0, nil).Once()
	store.On("UpsertTradingState", mock.Anything, mock.MatchedBy(func(rec tradestate.Record) bool {
		return rec.ConversationID == "conv-1" &&
			rec.State == tradestate.StateInvalidatedReset &&
			rec.ResetDeadline != nil
	})).Return(nil).Once()
	notify.On("SendText", mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "失效") && strings.Contains(text, "BTC/USDT")
	})).Return(nil).Once()

	m := newTestMonitor(t, store, source, notify, Config{})
	m.Sweep(context.Background())

	// 同一标的只取一次价；conv-2 的失效位在更下方，不触发
	store.AssertExpectations(t)
	source.AssertExpectations(t)
	notify.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "UpsertTradingState", 1)
}

func TestSweepShortSideTrigger(t *testing.T) {
	store := new(mockStore)
	source := new(mockSource)

	rec := confirmedRecord("conv-s", "ETH/USDT", "SHORT", "升破 3200 空头情景失效")
	store.On("ListByStates", mock.Anything, mock.Anything).Return([]tradestate.Record{rec}, nil).Once()
	source.On("LastPrice", mock.Anything, "ETH/USDT").Return(3250.0, nil).Once()
	store.On("UpsertTradingState", mock.Anything, mock.MatchedBy(func(rec tradestate.Record) bool {
		return rec.State == tradestate.StateInvalidatedReset
	})).Return(nil).Once()

	m := newTestMonitor(t, store, source, nil, Config{})
	m.Sweep(context.Background())

	store.AssertExpectations(t)
}

func TestSweepLeavesHealthyPositions(t *testing.T) {
	store := new(mockStore)
	source := new(mockSource)

	rec := confirmedRecord("conv-1", "BTC/USDT", "LONG", "跌破 60500 即失效")
	store.On("ListByStates", mock.Anything, mock.Anything).Return([]tradestate.Record{rec}, nil).Once()
	source.On("LastPrice", mock.Anything, "BTC/USDT").Return(61000.0, nil).Once()

	m := newTestMonitor(t, store, source, nil, Config{})
	m.Sweep(context.Background())

	store.AssertNotCalled(t, "UpsertTradingState", mock.Anything, mock.Anything)
}

func TestSweepSkipsWhenNothingConfirmed(t *testing.T) {
	store := new(mockStore)
	source := new(mockSource)

	store.On("ListByStates", mock.Anything, mock.Anything).Return(nil, nil).Once()

	m := newTestMonitor(t, store, source, nil, Config{})
	m.Sweep(context.Background())

	source.AssertNotCalled(t, "LastPrice", mock.Anything, mock.Anything)
}

func TestSweepBreakerOpensAfterRepeatedFailures(t *testing.T) {
	store := new(mockStore)
	source := new(mockSource)

	rec := confirmedRecord("conv-1", "BTC/USDT", "LONG", "跌破 60500 即失效")
	store.On("ListByStates", mock.Anything, mock.Anything).Return([]tradestate.Record{rec}, nil)
	source.On("LastPrice", mock.Anything, "BTC/USDT").Return(0.0, errors.New("binance 超时"))

	m := newTestMonitor(t, store, source, nil, Config{BreakerThreshold: 2, BreakerCooldown: time.Hour})
	m.Sweep(context.Background())
	m.Sweep(context.Background())
	// 两次失败后熔断打开，第三轮直接跳过
	m.Sweep(context.Background())

	store.AssertNumberOfCalls(t, "ListByStates", 2)
	source.AssertNumberOfCalls(t, "LastPrice", 2)
}

func TestNewValidation(t *testing.T) {
	machine := tradestate.NewMachine(time.Second)
	_, err := New(nil, new(mockSource), machine, nil, Config{})
	require.Error(t, err)
	_, err = New(new(mockStore), nil, machine, nil, Config{})
	require.Error(t, err)
	_, err = New(new(mockStore), new(mockSource), nil, nil, Config{})
	require.Error(t, err)
}
