package tradestate

import (
	"context"
	"time"
)

// Record 三元组维度的状态快照，随每轮决策 upsert。
// LastInvalidation 保存胜出情景的失效条件原文，供价格监控解析。
type Record struct {
	ConversationID   string
	Symbol           string
	Timeframe        string
	State            State
	LastDirection    string
	LastLabel        string
	LastInvalidation string
	LastAnalysisAt   time.Time
	ResetDeadline    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewRecord 首次使用时的初始记录，状态为 WAITING。
func NewRecord(conversationID, symbol, timeframe string) Record {
	return Record{
		ConversationID: conversationID,
		Symbol:         symbol,
		Timeframe:      timeframe,
		State:          StateWaiting,
	}
}

// Store 状态持久化协作方，同一三元组并发写入为后写覆盖。
type Store interface {
	GetTradingState(ctx context.Context, conversationID, symbol, timeframe string) (Record, bool, error)
	UpsertTradingState(ctx context.Context, rec Record) error
	// ListResetDue 返回冷却截止时间不晚于 now 的 INVALIDATED_RESET 记录。
	ListResetDue(ctx context.Context, now time.Time) ([]Record, error)
	// ListByStates 返回处于给定状态集合中的全部记录。
	ListByStates(ctx context.Context, states ...State) ([]Record, error)
}
