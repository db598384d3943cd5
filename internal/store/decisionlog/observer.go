package decisionlog

import (
	"context"
	"strings"
	"time"

	"github.com/m3n89t-max/-chatbot/internal/decision"
	"github.com/m3n89t-max/-chatbot/internal/logger"
)

// CycleObserver 实现 decision.DecisionObserver，把每轮决策现场落入审计库。
// 写入失败只告警，决不反向影响决策主流程。
type CycleObserver struct {
	store *CycleLogStore
}

func NewCycleObserver(store *CycleLogStore) *CycleObserver {
	if store == nil {
		return nil
	}
	return &CycleObserver{store: store}
}

func (o *CycleObserver) AfterDecide(ctx context.Context, trace decision.CycleTrace) {
	if o == nil || o.store == nil {
		return
	}
	rec := CycleRecord{
		TraceID:        trace.TraceID,
		Timestamp:      time.Now().UnixMilli(),
		ConversationID: trace.Request.ConversationID,
		Symbol:         strings.ToUpper(strings.TrimSpace(trace.Request.Symbol)),
		Timeframe:      trace.Request.Timeframe,
		Query:          trace.Request.Query,
		ContextText:    trace.ContextText,
		ProviderA:      trace.ProviderA,
		ProviderB:      trace.ProviderB,
		ProposalA:      trace.ProposalA,
		ProposalB:      trace.ProposalB,
		ScoreA:         trace.ScoreA,
		ScoreB:         trace.ScoreB,
		WinnerTag:      string(trace.Winner),
		Direction:      string(trace.Decision.Direction),
		RiskPercent:    trace.Decision.RiskPercent,
		RiskAllowed:    trace.Verdict.Allowed,
		RiskReason:     trace.Verdict.Reason,
		ResultingState: string(trace.Decision.ResultingState),
		Recorded:       trace.Decision.Recorded,
		Degraded:       trace.ScoreA.Degraded || trace.ScoreB.Degraded,
		ImageCount:     len(trace.Images),
		ElapsedMS:      trace.Elapsed.Milliseconds(),
	}
	if _, err := o.store.InsertCycle(ctx, rec); err != nil {
		logger.Warnf("trace=%s 写入决策审计日志失败: %v", trace.TraceID, err)
	}
}
