package model

import (
	"gorm.io/datatypes"
)

// 中文说明：gorm 持久化模型。时间一律存 Unix 毫秒，列名显式声明，
// 领域类型与模型的互转在 gormstore 内完成。

type TradingStateModel struct {
	ID               int64  `gorm:"column:id;primaryKey"`
	ConversationID   string `gorm:"column:conversation_id;uniqueIndex:idx_trading_scope,priority:1"`
	Symbol           string `gorm:"column:symbol;uniqueIndex:idx_trading_scope,priority:2"`
	Timeframe        string `gorm:"column:timeframe;uniqueIndex:idx_trading_scope,priority:3"`
	State            string `gorm:"column:state;index"`
	LastDirection    string `gorm:"column:last_direction"`
	LastLabel        string `gorm:"column:last_label"`
	LastInvalidation string `gorm:"column:last_invalidation"`
	LastAnalysisUnix int64  `gorm:"column:last_analysis_at"`
	ResetDeadline    *int64 `gorm:"column:reset_deadline"`
	CreatedAtUnix    int64  `gorm:"column:created_at"`
	UpdatedAtUnix    int64  `gorm:"column:updated_at"`
}

func (TradingStateModel) TableName() string { return "trading_states" }

type DecisionModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	TraceID        string         `gorm:"column:trace_id;uniqueIndex"`
	ConversationID string         `gorm:"column:conversation_id;index"`
	Symbol         string         `gorm:"column:symbol;index"`
	Timeframe      string         `gorm:"column:timeframe"`
	Direction      string         `gorm:"column:direction"`
	EntryTrigger   string         `gorm:"column:entry_trigger;type:TEXT"`
	Invalidation   string         `gorm:"column:invalidation;type:TEXT"`
	RiskPercent    float64        `gorm:"column:risk_percent"`
	WinnerTag      string         `gorm:"column:winner_tag"`
	LosingLabel    string         `gorm:"column:losing_label"`
	ResultingState string         `gorm:"column:resulting_state"`
	ScoreA         datatypes.JSON `gorm:"column:score_a;type:TEXT"`
	ScoreB         datatypes.JSON `gorm:"column:score_b;type:TEXT"`
	Reasoning      string         `gorm:"column:reasoning;type:TEXT"`
	CreatedAtUnix  int64          `gorm:"column:created_at;index"`
}

func (DecisionModel) TableName() string { return "decisions" }

type DocumentModel struct {
	ID            string `gorm:"column:id;primaryKey"`
	Name          string `gorm:"column:name"`
	SourceFile    string `gorm:"column:source_file"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (DocumentModel) TableName() string { return "knowledge_documents" }

type FragmentModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	DocumentID    string         `gorm:"column:document_id;index"`
	Category      string         `gorm:"column:category;index"`
	Section       string         `gorm:"column:section"`
	Page          int            `gorm:"column:page"`
	Content       string         `gorm:"column:content;type:TEXT"`
	Embedding     datatypes.JSON `gorm:"column:embedding;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (FragmentModel) TableName() string { return "knowledge_fragments" }

type RiskContextModel struct {
	UserID            string `gorm:"column:user_id;primaryKey"`
	ActivePositions   int    `gorm:"column:active_positions"`
	ConsecutiveLosses int    `gorm:"column:consecutive_losses"`
	UpdatedAtUnix     int64  `gorm:"column:updated_at"`
}

func (RiskContextModel) TableName() string { return "risk_contexts" }
