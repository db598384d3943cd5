package decision

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// 中文说明：仲裁选择器。交易轮走确定性的 Select 纯函数；
// 纯聊天轮没有可比性，由注入种子的随机源抛硬币，种子可固定
// 以便测试复现。

const worstStopDistance = math.MaxFloat64

// Select 仲裁规则，按序判定：
//  1. 双方都未通过规则校验，固定选保守方 A；
//  2. 只有一方通过，选通过方；
//  3. 总分差距 ≥ 2，选高分方；
//  4. 总分接近时选止损距离更小的一方，缺失按最差处理；
//     距离打平退回比较总分，再平仍取 A。
func Select(a, b ScenarioScore) Tag {
	if !a.RuleValid && !b.RuleValid {
		return a.Tag
	}
	if a.RuleValid != b.RuleValid {
		if a.RuleValid {
			return a.Tag
		}
		return b.Tag
	}
	diff := a.Total - b.Total
	if diff >= 2 {
		return a.Tag
	}
	if diff <= -2 {
		return b.Tag
	}
	stopA, stopB := stopOrWorst(a), stopOrWorst(b)
	if stopA < stopB {
		return a.Tag
	}
	if stopB < stopA {
		return b.Tag
	}
	if b.Total > a.Total {
		return b.Tag
	}
	return a.Tag
}

func stopOrWorst(s ScenarioScore) float64 {
	if s.StopDistancePct == nil {
		return worstStopDistance
	}
	return *s.StopDistancePct
}

// RiskPercent 按胜出情景的盈亏比阶梯给出仓位风险百分比。
func RiskPercent(riskReward float64) float64 {
	switch {
	case riskReward >= 3:
		return 2.0
	case riskReward >= 2:
		return 1.5
	default:
		return 1.0
	}
}

// Selector 持有聊天轮抛硬币用的随机源。
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector seed 为 0 时用当前纳秒时间播种。
func NewSelector(seed int64) *Selector {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

// PickRandom 聊天轮的胜者抛硬币。
func (s *Selector) PickRandom() Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng.Intn(2) == 0 {
		return TagA
	}
	return TagB
}
