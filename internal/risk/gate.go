package risk

import (
	"fmt"
)

// 中文说明：交易前风控闸门。三道检查按固定顺序短路执行，
// 闸门本身永不报错，拦截时由编排层把最终方向改写为 HOLD
// 并附上原因。

type Limits struct {
	MaxConcurrentPositions   int
	ConsecutiveLossThreshold int
	MinRiskReward            float64
}

func DefaultLimits() Limits {
	return Limits{
		MaxConcurrentPositions:   3,
		ConsecutiveLossThreshold: 3,
		MinRiskReward:            1.5,
	}
}

// Context 用户维度的风险快照，由外部风控记账方维护，这里只读。
type Context struct {
	UserID            string
	ActivePositions   int
	ConsecutiveLosses int
}

type Verdict struct {
	Allowed bool
	Reason  string
}

type Gate struct {
	limits Limits
}

func NewGate(limits Limits) *Gate {
	def := DefaultLimits()
	if limits.MaxConcurrentPositions <= 0 {
		limits.MaxConcurrentPositions = def.MaxConcurrentPositions
	}
	if limits.ConsecutiveLossThreshold <= 0 {
		limits.ConsecutiveLossThreshold = def.ConsecutiveLossThreshold
	}
	if limits.MinRiskReward <= 0 {
		limits.MinRiskReward = def.MinRiskReward
	}
	return &Gate{limits: limits}
}

// Evaluate 边界取等即拦截：持仓数或连亏数达到阈值就不再放行。
// rrQualityA/B 是两个情景的盈亏比评分子项（0~2），两者都低于
// MinRiskReward 时整轮拦截。
func (g *Gate) Evaluate(rc Context, rrQualityA, rrQualityB int) Verdict {
	if rc.ActivePositions >= g.limits.MaxConcurrentPositions {
		return Verdict{Reason: fmt.Sprintf("持仓数已达上限 (%d/%d)", rc.ActivePositions, g.limits.MaxConcurrentPositions)}
	}
	if rc.ConsecutiveLosses >= g.limits.ConsecutiveLossThreshold {
		return Verdict{Reason: fmt.Sprintf("连续亏损 %d 次，达到冷静期阈值 %d", rc.ConsecutiveLosses, g.limits.ConsecutiveLossThreshold)}
	}
	if float64(rrQualityA) < g.limits.MinRiskReward && float64(rrQualityB) < g.limits.MinRiskReward {
		return Verdict{Reason: fmt.Sprintf("两个情景的盈亏比评分均低于 %.1f", g.limits.MinRiskReward)}
	}
	return Verdict{Allowed: true}
}
