package notifier

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/m3n89t-max/-chatbot/internal/decision"
	"github.com/m3n89t-max/-chatbot/internal/risk"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendText(text string) error {
	args := m.Called(text)
	return args.Error(0)
}

func TestCycleNotifierSendsActionableDecision(t *testing.T) {
	sender := new(mockSender)
	sender.On("SendText", mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "LONG") && strings.Contains(text, "trace-1")
	})).Return(nil).Once()

	n := NewCycleNotifier(sender)
	n.AfterDecide(context.Background(), decision.CycleTrace{
		TraceID: "trace-1",
		Winner:  decision.TagA,
		Verdict: risk.Verdict{Allowed: true},
		Decision: decision.Decision{
			TraceID:   "trace-1",
			Symbol:    "BTC/USDT",
			Timeframe: "4h",
			Direction: decision.DirectionLong,
		},
	})

	sender.AssertExpectations(t)
}

func TestCycleNotifierSkipsQuietHold(t *testing.T) {
	sender := new(mockSender)
	n := NewCycleNotifier(sender)
	n.AfterDecide(context.Background(), decision.CycleTrace{
		TraceID: "trace-2",
		Verdict: risk.Verdict{Allowed: true},
		Decision: decision.Decision{
			Direction: decision.DirectionHold,
		},
	})
	sender.AssertNotCalled(t, "SendText", mock.Anything)
}

func TestCycleNotifierReportsRiskBlock(t *testing.T) {
	sender := new(mockSender)
	sender.On("SendText", mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "风控拦截") && strings.Contains(text, "连续亏损")
	})).Return(nil).Once()

	n := NewCycleNotifier(sender)
	n.AfterDecide(context.Background(), decision.CycleTrace{
		TraceID: "trace-3",
		Verdict: risk.Verdict{Allowed: false, Reason: "连续亏损达到阈值"},
		Decision: decision.Decision{
			TraceID:   "trace-3",
			Symbol:    "BTC/USDT",
			Timeframe: "4h",
			Direction: decision.DirectionHold,
		},
	})

	sender.AssertExpectations(t)
}

func TestNewCycleNotifierNilSender(t *testing.T) {
	if NewCycleNotifier(nil) != nil {
		t.Fatal("nil sender 应返回 nil 通知器")
	}
	var n *CycleNotifier
	// nil 接收者直接忽略，不允许 panic
	n.AfterDecide(context.Background(), decision.CycleTrace{})
}
