package decision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m3n89t-max/-chatbot/internal/knowledge"
	"github.com/m3n89t-max/-chatbot/internal/risk"
	"github.com/m3n89t-max/-chatbot/internal/tradestate"
)

// 中文说明：决策域类型与协作方接口。两路情景提案模型、规则评估器、
// 检索器、存储与观察者都以小接口注入，便于替换与测试。

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionHold  Direction = "HOLD"
)

// ParseDirection 宽松接受模型输出里的方向同义词，未知词报错。
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return DirectionLong, nil
	case "SHORT", "SELL":
		return DirectionShort, nil
	case "HOLD", "WAIT", "NEUTRAL":
		return DirectionHold, nil
	default:
		return "", fmt.Errorf("无法识别的方向: %q", s)
	}
}

// Tag 标识情景提案出自哪一路模型。
type Tag string

const (
	TagA Tag = "A"
	TagB Tag = "B"
)

func (t Tag) Other() Tag {
	if t == TagA {
		return TagB
	}
	return TagA
}

// ScenarioProposal 一路模型给出的完整情景，收到后视为不可变值。
type ScenarioProposal struct {
	Direction    Direction `json:"direction"`
	Label        string    `json:"label"`
	Trigger      string    `json:"trigger"`
	Invalidation string    `json:"invalidation"`
	RiskReward   float64   `json:"risk_reward"`
	CitedRules   []string  `json:"cited_rules,omitempty"`
	Rationale    string    `json:"rationale,omitempty"`
}

// Evaluation 规则评估器的原始打分。
type Evaluation struct {
	RuleValid            bool     `json:"rule_valid"`
	InvalidationClarity  int      `json:"invalidation_clarity"`
	RiskRewardQuality    int      `json:"risk_reward_quality"`
	StructuralSimplicity int      `json:"structural_simplicity"`
	ResolutionSpeed      int      `json:"resolution_speed"`
	StopDistancePct      *float64 `json:"stop_distance_pct,omitempty"`
}

// ScenarioScore 归一化后的情景评分。规则校验不通过时总分强制为 0，
// 评分过程发生降级时 Degraded 置真。
type ScenarioScore struct {
	Tag                  Tag      `json:"tag"`
	RuleValid            bool     `json:"rule_valid"`
	InvalidationClarity  int      `json:"invalidation_clarity"`
	RiskRewardQuality    int      `json:"risk_reward_quality"`
	StructuralSimplicity int      `json:"structural_simplicity"`
	ResolutionSpeed      int      `json:"resolution_speed"`
	Total                int      `json:"total"`
	StopDistancePct      *float64 `json:"stop_distance_pct,omitempty"`
	Degraded             bool     `json:"degraded,omitempty"`
}

// NewScore 由评估结果构造评分，子项截断到 [0,2]。
func NewScore(tag Tag, ev Evaluation, degraded bool) ScenarioScore {
	s := ScenarioScore{
		Tag:                  tag,
		RuleValid:            ev.RuleValid,
		InvalidationClarity:  clampSubScore(ev.InvalidationClarity),
		RiskRewardQuality:    clampSubScore(ev.RiskRewardQuality),
		StructuralSimplicity: clampSubScore(ev.StructuralSimplicity),
		ResolutionSpeed:      clampSubScore(ev.ResolutionSpeed),
		StopDistancePct:      ev.StopDistancePct,
		Degraded:             degraded,
	}
	if s.RuleValid {
		s.Total = s.InvalidationClarity + s.RiskRewardQuality + s.StructuralSimplicity + s.ResolutionSpeed
	}
	return s
}

func clampSubScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 2 {
		return 2
	}
	return v
}

// Decision 单轮决策的最终产物，创建后不再修改；风控改写发生在
// 构造之前。Recorded 为假表示决策已产出但落库失败。
type Decision struct {
	TraceID        string           `json:"trace_id"`
	ConversationID string           `json:"conversation_id"`
	Symbol         string           `json:"symbol,omitempty"`
	Timeframe      string           `json:"timeframe,omitempty"`
	Direction      Direction        `json:"direction"`
	EntryTrigger   string           `json:"entry_trigger"`
	Invalidation   string           `json:"invalidation"`
	RiskPercent    float64          `json:"risk_percent"`
	WinnerTag      Tag              `json:"winner_tag"`
	LosingLabel    string           `json:"losing_label"`
	ResultingState tradestate.State `json:"resulting_state,omitempty"`
	ScoreA         ScenarioScore    `json:"score_a"`
	ScoreB         ScenarioScore    `json:"score_b"`
	Reasoning      string           `json:"reasoning"`
	Recorded       bool             `json:"recorded"`
	CreatedAt      time.Time        `json:"created_at"`
}

// CycleRequest 一轮决策的输入。Symbol 为空表示纯聊天轮，
// 不经过状态机与风控。
type CycleRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	Symbol         string `json:"symbol,omitempty"`
	Timeframe      string `json:"timeframe,omitempty"`
	UserID         string `json:"user_id,omitempty"`
}

// ImageAttachment 注入提案模型的图像（DataURI + 描述）。
type ImageAttachment struct {
	DataURI     string `json:"data_uri"`
	Description string `json:"description,omitempty"`
}

// ProposalRequest 发给情景提案方的完整输入。B 路会在 Other 中
// 看到 A 路的结果，以便给出差异化的对立情景。
type ProposalRequest struct {
	Query       string
	ContextText string
	Symbol      string
	Timeframe   string
	Other       *ScenarioProposal
	Images      []ImageAttachment
}

// ScenarioProvider 情景提案协作方，失败对本轮决策是致命的。
type ScenarioProvider interface {
	ID() string
	Propose(ctx context.Context, req ProposalRequest) (ScenarioProposal, error)
}

// RuleEvaluator 规则评估协作方，失败由评分器降级兜底。
type RuleEvaluator interface {
	Evaluate(ctx context.Context, proposal ScenarioProposal, contextText string) (Evaluation, error)
}

// ContextRetriever 知识检索协作方，决策轮固定走优先级组合模式。
type ContextRetriever interface {
	RetrievePriority(ctx context.Context, query string, topK int, threshold float64) (knowledge.RetrievalResult, error)
}

// DecisionStore 决策落库与用户风险快照读取。
type DecisionStore interface {
	InsertDecision(ctx context.Context, d Decision) error
	GetRiskContext(ctx context.Context, userID string) (risk.Context, error)
}

// ChartProvider 行情快照协作方，失败只降级不阻断。
type ChartProvider interface {
	Snapshot(ctx context.Context, symbol, timeframe string) (ImageAttachment, error)
}

// CycleTrace 一轮决策的完整过程快照，交给观察者做审计留痕。
type CycleTrace struct {
	TraceID     string
	Request     CycleRequest
	ContextText string
	Images      []ImageAttachment
	ProviderA   string
	ProviderB   string
	ProposalA   ScenarioProposal
	ProposalB   ScenarioProposal
	ScoreA      ScenarioScore
	ScoreB      ScenarioScore
	Winner      Tag
	Verdict     risk.Verdict
	Decision    Decision
	Elapsed     time.Duration
}

// DecisionObserver 决策完成后的旁路观察者，实现方不得阻塞主流程。
type DecisionObserver interface {
	AfterDecide(ctx context.Context, trace CycleTrace)
}

// ObserverChain 依次通知多个观察者，nil 项跳过。
type ObserverChain []DecisionObserver

func (c ObserverChain) AfterDecide(ctx context.Context, trace CycleTrace) {
	for _, o := range c {
		if o != nil {
			o.AfterDecide(ctx, trace)
		}
	}
}
