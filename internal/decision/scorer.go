package decision

import (
	"context"

	"github.com/m3n89t-max/-chatbot/internal/logger"
)

// 中文说明：情景评分器。真正的评判交给外部规则评估器，这里只负责
// 归一化与失败兜底：评估失败退回固定中性评分，绝不阻断决策产出。

const neutralStopDistancePct = 2.0

type RubricScorer struct {
	evaluator RuleEvaluator
}

func NewRubricScorer(evaluator RuleEvaluator) *RubricScorer {
	return &RubricScorer{evaluator: evaluator}
}

// NeutralScore 评估失败时的固定中性评分：子项全 1、规则视为通过、
// 止损距离 2%，并带上 Degraded 降级标记供审计。
func NeutralScore(tag Tag) ScenarioScore {
	stop := neutralStopDistancePct
	return ScenarioScore{
		Tag:                  tag,
		RuleValid:            true,
		InvalidationClarity:  1,
		RiskRewardQuality:    1,
		StructuralSimplicity: 1,
		ResolutionSpeed:      1,
		Total:                4,
		StopDistancePct:      &stop,
		Degraded:             true,
	}
}

// Score 评估失败（超时、输出畸形、schema 不符）时降级兜底，永不报错。
func (s *RubricScorer) Score(ctx context.Context, tag Tag, proposal ScenarioProposal, contextText string) ScenarioScore {
	ev, err := s.evaluator.Evaluate(ctx, proposal, contextText)
	if err != nil {
		logger.Warnf("情景 %s 评分失败，退回中性兜底: %v", tag, err)
		return NeutralScore(tag)
	}
	return NewScore(tag, ev, false)
}
