package notifier

import (
	"context"

	"github.com/m3n89t-max/-chatbot/internal/decision"
	"github.com/m3n89t-max/-chatbot/internal/logger"
)

// CycleNotifier 把决策结果转成 Telegram 摘要。只推送会产生动作的
// 轮次：开仓方向或风控拦截；纯观望轮不打扰。
type CycleNotifier struct {
	sender TextNotifier
}

var _ decision.DecisionObserver = (*CycleNotifier)(nil)

func NewCycleNotifier(sender TextNotifier) *CycleNotifier {
	if sender == nil {
		return nil
	}
	return &CycleNotifier{sender: sender}
}

func (n *CycleNotifier) AfterDecide(ctx context.Context, trace decision.CycleTrace) {
	if n == nil || n.sender == nil {
		return
	}
	blocked := !trace.Verdict.Allowed
	if trace.Decision.Direction == decision.DirectionHold && !blocked {
		return
	}
	msg := DecisionSummaryMessage(DecisionNotice{
		TraceID:      trace.TraceID,
		Symbol:       trace.Decision.Symbol,
		Timeframe:    trace.Decision.Timeframe,
		Direction:    string(trace.Decision.Direction),
		Winner:       string(trace.Winner),
		TotalA:       trace.ScoreA.Total,
		TotalB:       trace.ScoreB.Total,
		EntryTrigger: trace.Decision.EntryTrigger,
		Invalidation: trace.Decision.Invalidation,
		RiskPercent:  trace.Decision.RiskPercent,
		RiskBlocked:  blocked,
		RiskReason:   trace.Verdict.Reason,
		State:        string(trace.Decision.ResultingState),
		Degraded:     trace.ScoreA.Degraded || trace.ScoreB.Degraded,
	})
	if err := n.sender.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("trace=%s 决策通知发送失败: %v", trace.TraceID, err)
	}
}
