package tradestate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// 中文说明：交易结构状态机。每个 (conversation, symbol, timeframe)
// 三元组独立维护一份状态，由决策循环推进；CONFIRMED_* 到
// INVALIDATED_RESET 只能由价格监控触发。所有状态写入都必须
// 走 Transition 这一个入口，表外迁移直接报错。

type State string

const (
	StateWaiting             State = "WAITING"
	StateBreakoutWatch       State = "BREAKOUT_WATCH"
	StateConfirmedImpulse    State = "CONFIRMED_IMPULSE"
	StateConfirmedCorrection State = "CONFIRMED_CORRECTION"
	StateInvalidatedReset    State = "INVALIDATED_RESET"
)

// DefaultResetCooldown 进入 INVALIDATED_RESET 后的冷却时长。
const DefaultResetCooldown = 5 * time.Second

const directionHold = "HOLD"

func ParseState(s string) (State, bool) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	if st.Valid() {
		return st, true
	}
	return "", false
}

func (s State) Valid() bool {
	switch s {
	case StateWaiting, StateBreakoutWatch, StateConfirmedImpulse, StateConfirmedCorrection, StateInvalidatedReset:
		return true
	default:
		return false
	}
}

// ConfirmedStates 价格监控关注的两个存续结构状态。
var ConfirmedStates = []State{StateConfirmedImpulse, StateConfirmedCorrection}

// Next 纯转移函数。HOLD 无条件回到 WAITING；WAITING 收到方向性
// 结论进入 BREAKOUT_WATCH；BREAKOUT_WATCH 按标签关键词确认结构；
// CONFIRMED_* 在决策循环内自环；INVALIDATED_RESET 下一轮回 WAITING。
func Next(current State, direction, label string) State {
	if strings.EqualFold(strings.TrimSpace(direction), directionHold) {
		return StateWaiting
	}
	switch current {
	case StateWaiting:
		return StateBreakoutWatch
	case StateBreakoutWatch:
		lower := strings.ToLower(label)
		if strings.Contains(lower, "impulse") {
			return StateConfirmedImpulse
		}
		if strings.Contains(lower, "correction") {
			return StateConfirmedCorrection
		}
		return StateBreakoutWatch
	case StateConfirmedImpulse:
		return StateConfirmedImpulse
	case StateConfirmedCorrection:
		return StateConfirmedCorrection
	case StateInvalidatedReset:
		return StateWaiting
	default:
		return StateWaiting
	}
}

// AllowedNextStates 当前状态的合法迁移目标全集，含决策循环
// 产生的目标与价格监控强制的失效目标。
func AllowedNextStates(current State) []State {
	switch current {
	case StateWaiting:
		return []State{StateWaiting, StateBreakoutWatch}
	case StateBreakoutWatch:
		return []State{StateWaiting, StateBreakoutWatch, StateConfirmedImpulse, StateConfirmedCorrection}
	case StateConfirmedImpulse:
		return []State{StateWaiting, StateConfirmedImpulse, StateInvalidatedReset}
	case StateConfirmedCorrection:
		return []State{StateWaiting, StateConfirmedCorrection, StateInvalidatedReset}
	case StateInvalidatedReset:
		return []State{StateWaiting}
	default:
		return nil
	}
}

// Machine 状态机执行器。NowFn 供测试注入时钟。
type Machine struct {
	Cooldown time.Duration
	NowFn    func() time.Time
}

func NewMachine(cooldown time.Duration) *Machine {
	if cooldown <= 0 {
		cooldown = DefaultResetCooldown
	}
	return &Machine{Cooldown: cooldown}
}

func (m *Machine) now() time.Time {
	if m.NowFn != nil {
		return m.NowFn()
	}
	return time.Now()
}

// Transition 唯一的状态写入口。目标不在当前状态的迁移表内时报错，
// 记录保持不变。进入 INVALIDATED_RESET 时盖上冷却截止时间，
// 离开时清除。
func (m *Machine) Transition(rec *Record, target State) error {
	if rec == nil {
		return errors.New("状态记录为空")
	}
	if !rec.State.Valid() {
		return fmt.Errorf("当前状态非法: %q", rec.State)
	}
	if !target.Valid() {
		return fmt.Errorf("目标状态非法: %q", target)
	}
	allowed := false
	for _, s := range AllowedNextStates(rec.State) {
		if s == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("非法状态迁移: %s -> %s", rec.State, target)
	}
	rec.State = target
	if target == StateInvalidatedReset {
		deadline := m.now().Add(m.Cooldown)
		rec.ResetDeadline = &deadline
	} else {
		rec.ResetDeadline = nil
	}
	return nil
}

// Advance 决策循环推进入口：按胜出方向与标签计算下一状态并应用，
// 同时更新最近一次分析的元数据。
func (m *Machine) Advance(rec *Record, direction, label string) (State, error) {
	if rec == nil {
		return "", errors.New("状态记录为空")
	}
	next := Next(rec.State, direction, label)
	if err := m.Transition(rec, next); err != nil {
		return "", err
	}
	rec.LastDirection = strings.ToUpper(strings.TrimSpace(direction))
	rec.LastLabel = label
	rec.LastAnalysisAt = m.now()
	return next, nil
}

// RecoverIfDue 冷却期已到的 INVALIDATED_RESET 恢复为 WAITING，
// 返回是否发生了恢复。没有截止时间的旧记录按已到期处理。
func (m *Machine) RecoverIfDue(rec *Record) bool {
	if rec == nil || rec.State != StateInvalidatedReset {
		return false
	}
	if rec.ResetDeadline != nil && m.now().Before(*rec.ResetDeadline) {
		return false
	}
	return m.Transition(rec, StateWaiting) == nil
}
