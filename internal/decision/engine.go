package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3n89t-max/-chatbot/internal/knowledge"
	"github.com/m3n89t-max/-chatbot/internal/logger"
	"github.com/m3n89t-max/-chatbot/internal/risk"
	"github.com/m3n89t-max/-chatbot/internal/tradestate"
)

// 中文说明：决策编排器。一轮决策严格串行：读状态 → 检索 → 生成
// A/B 两路情景 → 各自评分 → 仲裁 → 推进状态机 → 风控闸门 →
// 落库并返回。检索与提案失败终止本轮；评分失败降级；计算完成后
// 的持久化失败只记日志并把 Recorded 置假，不吞掉已产出的决策。

type RetrievalSettings struct {
	TopK                int
	SimilarityThreshold float64
}

type EngineParams struct {
	Retriever ContextRetriever
	ProviderA ScenarioProvider
	ProviderB ScenarioProvider
	Scorer    *RubricScorer
	Selector  *Selector
	Machine   *tradestate.Machine
	Gate      *risk.Gate
	States    tradestate.Store
	Decisions DecisionStore
	Charts    ChartProvider    // 可空，行情快照
	Observer  DecisionObserver // 可空，审计留痕与通知走这里
	Retrieval RetrievalSettings
}

type Engine struct {
	retriever  ContextRetriever
	providerA  ScenarioProvider
	providerB  ScenarioProvider
	scorer     *RubricScorer
	selector   *Selector
	machine    *tradestate.Machine
	gate       *risk.Gate
	states     tradestate.Store
	decisions  DecisionStore
	charts     ChartProvider
	observer   DecisionObserver
	retrieval  RetrievalSettings
	nowFn      func() time.Time
	newTraceID func() string
}

func NewEngine(p EngineParams) (*Engine, error) {
	missing := ""
	switch {
	case p.Retriever == nil:
		missing = "retriever"
	case p.ProviderA == nil:
		missing = "provider A"
	case p.ProviderB == nil:
		missing = "provider B"
	case p.Scorer == nil:
		missing = "scorer"
	case p.Selector == nil:
		missing = "selector"
	case p.Machine == nil:
		missing = "state machine"
	case p.Gate == nil:
		missing = "risk gate"
	case p.States == nil:
		missing = "state store"
	case p.Decisions == nil:
		missing = "decision store"
	}
	if missing != "" {
		return nil, fmt.Errorf("决策引擎缺少必需组件: %s", missing)
	}
	if p.Retrieval.TopK <= 0 {
		p.Retrieval.TopK = 8
	}
	if p.Retrieval.SimilarityThreshold <= 0 {
		p.Retrieval.SimilarityThreshold = 0.35
	}
	return &Engine{
		retriever:  p.Retriever,
		providerA:  p.ProviderA,
		providerB:  p.ProviderB,
		scorer:     p.Scorer,
		selector:   p.Selector,
		machine:    p.Machine,
		gate:       p.Gate,
		states:     p.States,
		decisions:  p.Decisions,
		charts:     p.Charts,
		observer:   p.Observer,
		retrieval:  p.Retrieval,
		nowFn:      time.Now,
		newTraceID: uuid.NewString,
	}, nil
}

// RunDecisionCycle 执行一轮完整决策。请求内并发由上层保证串行，
// 同一三元组的并发写入按后写覆盖处理。
func (e *Engine) RunDecisionCycle(ctx context.Context, req CycleRequest) (*Decision, error) {
	start := e.nowFn()
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query 为空")
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		return nil, errors.New("conversation_id 为空")
	}
	trading := strings.TrimSpace(req.Symbol) != ""
	if trading && strings.TrimSpace(req.Timeframe) == "" {
		return nil, errors.New("timeframe 为空")
	}
	traceID := e.newTraceID()

	var rec tradestate.Record
	if trading {
		loaded, ok, err := e.states.GetTradingState(ctx, req.ConversationID, req.Symbol, req.Timeframe)
		if err != nil {
			return nil, fmt.Errorf("读取交易状态失败: %w", err)
		}
		if ok {
			rec = loaded
		} else {
			rec = tradestate.NewRecord(req.ConversationID, req.Symbol, req.Timeframe)
		}
		if e.machine.RecoverIfDue(&rec) {
			logger.Infof("trace=%s 冷却到期，状态懒恢复为 %s", traceID, rec.State)
		}
	}

	res, err := e.retriever.RetrievePriority(ctx, req.Query, e.retrieval.TopK, e.retrieval.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("知识检索失败: %w", err)
	}
	contextText := knowledge.FormatContext(res)

	var images []ImageAttachment
	if trading && e.charts != nil {
		img, err := e.charts.Snapshot(ctx, req.Symbol, req.Timeframe)
		if err != nil {
			logger.Warnf("trace=%s 行情快照生成失败，降级为纯文本分析: %v", traceID, err)
		} else {
			images = append(images, img)
		}
	}

	base := ProposalRequest{
		Query:       req.Query,
		ContextText: contextText,
		Symbol:      req.Symbol,
		Timeframe:   req.Timeframe,
		Images:      images,
	}
	propA, err := e.providerA.Propose(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("情景 A 生成失败 (%s): %w", e.providerA.ID(), err)
	}
	reqB := base
	reqB.Other = &propA
	propB, err := e.providerB.Propose(ctx, reqB)
	if err != nil {
		return nil, fmt.Errorf("情景 B 生成失败 (%s): %w", e.providerB.ID(), err)
	}

	scoreA := e.scorer.Score(ctx, TagA, propA, contextText)
	scoreB := e.scorer.Score(ctx, TagB, propB, contextText)

	var winner Tag
	if trading {
		winner = Select(scoreA, scoreB)
	} else {
		winner = e.selector.PickRandom()
	}
	winnerProp, loserProp := propA, propB
	if winner == TagB {
		winnerProp, loserProp = propB, propA
	}

	direction := winnerProp.Direction
	riskPct := RiskPercent(winnerProp.RiskReward)
	reasoning := buildReasoning(winner, winnerProp, scoreA, scoreB)

	var resulting tradestate.State
	verdict := risk.Verdict{Allowed: true}
	if trading {
		resulting, err = e.machine.Advance(&rec, string(direction), winnerProp.Label)
		if err != nil {
			return nil, fmt.Errorf("状态推进失败: %w", err)
		}
		rec.LastInvalidation = winnerProp.Invalidation

		rc, err := e.decisions.GetRiskContext(ctx, riskScope(req))
		if err != nil {
			logger.Warnf("trace=%s 读取风险快照失败，按零风险处理: %v", traceID, err)
			rc = risk.Context{}
		}
		verdict = e.gate.Evaluate(rc, scoreA.RiskRewardQuality, scoreB.RiskRewardQuality)
		if !verdict.Allowed {
			direction = DirectionHold
			reasoning += "\n风控拦截: " + verdict.Reason
		}
	}

	d := Decision{
		TraceID:        traceID,
		ConversationID: req.ConversationID,
		Symbol:         req.Symbol,
		Timeframe:      req.Timeframe,
		Direction:      direction,
		EntryTrigger:   winnerProp.Trigger,
		Invalidation:   winnerProp.Invalidation,
		RiskPercent:    riskPct,
		WinnerTag:      winner,
		LosingLabel:    loserProp.Label,
		ResultingState: resulting,
		ScoreA:         scoreA,
		ScoreB:         scoreB,
		Reasoning:      reasoning,
		Recorded:       true,
		CreatedAt:      e.nowFn(),
	}

	// 决策与状态已经算完，这里的失败不再回滚，只降级标记。
	if err := e.decisions.InsertDecision(ctx, d); err != nil {
		d.Recorded = false
		logger.Errorf("trace=%s 决策落库失败: %v", traceID, err)
	}
	if trading {
		if err := e.states.UpsertTradingState(ctx, rec); err != nil {
			d.Recorded = false
			logger.Errorf("trace=%s 交易状态写回失败: %v", traceID, err)
		}
	}

	if e.observer != nil {
		e.observer.AfterDecide(ctx, CycleTrace{
			TraceID:     traceID,
			Request:     req,
			ContextText: contextText,
			Images:      images,
			ProviderA:   e.providerA.ID(),
			ProviderB:   e.providerB.ID(),
			ProposalA:   propA,
			ProposalB:   propB,
			ScoreA:      scoreA,
			ScoreB:      scoreB,
			Winner:      winner,
			Verdict:     verdict,
			Decision:    d,
			Elapsed:     e.nowFn().Sub(start),
		})
	}
	logger.Infof("trace=%s 决策完成 symbol=%s direction=%s winner=%s state=%s elapsed=%s",
		traceID, req.Symbol, d.Direction, winner, resulting, e.nowFn().Sub(start).Round(time.Millisecond))
	return &d, nil
}

// GetState 查询三元组当前状态，读路径上顺手做冷却懒恢复。
func (e *Engine) GetState(ctx context.Context, conversationID, symbol, timeframe string) (tradestate.Record, error) {
	if strings.TrimSpace(conversationID) == "" || strings.TrimSpace(symbol) == "" || strings.TrimSpace(timeframe) == "" {
		return tradestate.Record{}, errors.New("conversation_id/symbol/timeframe 不能为空")
	}
	rec, ok, err := e.states.GetTradingState(ctx, conversationID, symbol, timeframe)
	if err != nil {
		return tradestate.Record{}, fmt.Errorf("读取交易状态失败: %w", err)
	}
	if !ok {
		return tradestate.NewRecord(conversationID, symbol, timeframe), nil
	}
	if e.machine.RecoverIfDue(&rec) {
		if err := e.states.UpsertTradingState(ctx, rec); err != nil {
			logger.Warnf("冷却懒恢复写回失败 %s/%s/%s: %v", conversationID, symbol, timeframe, err)
		}
	}
	return rec, nil
}

// riskScope 风险快照按用户维度归档，请求没带 user 时退回会话维度。
func riskScope(req CycleRequest) string {
	if u := strings.TrimSpace(req.UserID); u != "" {
		return u
	}
	return req.ConversationID
}

func buildReasoning(winner Tag, prop ScenarioProposal, a, b ScenarioScore) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "方案 %s 胜出: %s (总分 A=%d B=%d)", winner, prop.Label, a.Total, b.Total)
	if !a.RuleValid {
		sb.WriteString("\n方案 A 未通过规则校验")
	}
	if !b.RuleValid {
		sb.WriteString("\n方案 B 未通过规则校验")
	}
	if a.Degraded || b.Degraded {
		sb.WriteString("\n评分过程发生降级，结果仅供参考")
	}
	if r := strings.TrimSpace(prop.Rationale); r != "" {
		sb.WriteString("\n")
		sb.WriteString(r)
	}
	return sb.String()
}

