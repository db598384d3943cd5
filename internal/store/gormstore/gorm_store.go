package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/m3n89t-max/-chatbot/internal/decision"
	"github.com/m3n89t-max/-chatbot/internal/knowledge"
	"github.com/m3n89t-max/-chatbot/internal/risk"
	storemodel "github.com/m3n89t-max/-chatbot/internal/store/model"
	"github.com/m3n89t-max/-chatbot/internal/tradestate"
)

// 中文说明：gorm + SQLite 主存储。交易状态、决策记录、知识库文档与
// 片段、用户风险快照都在这一个库里，WAL 模式限制连接数控制锁竞争。

type (
	tradingStateModel = storemodel.TradingStateModel
	decisionModel     = storemodel.DecisionModel
	documentModel     = storemodel.DocumentModel
	fragmentModel     = storemodel.FragmentModel
	riskContextModel  = storemodel.RiskContextModel
)

type GormStore struct {
	db *gorm.DB
}

var (
	_ tradestate.Store       = (*GormStore)(nil)
	_ decision.DecisionStore = (*GormStore)(nil)
)

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&tradingStateModel{},
		&decisionModel{},
		&documentModel{},
		&fragmentModel{},
		&riskContextModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：给 HTTP 并发读留一点余量，同时压低锁竞争。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB 暴露底层连接，供原始 SQL 审计存储复用同一个库文件。
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	return s.db.DB()
}

func (s *GormStore) GormDB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// --------------------- tradestate.Store 实现 -------------------------

func (s *GormStore) GetTradingState(ctx context.Context, conversationID, symbol, timeframe string) (tradestate.Record, bool, error) {
	if s == nil || s.db == nil {
		return tradestate.Record{}, false, fmt.Errorf("gorm store 未初始化")
	}
	var m tradingStateModel
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND symbol = ? AND timeframe = ?",
			strings.TrimSpace(conversationID), normalizeSymbol(symbol), strings.TrimSpace(timeframe)).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tradestate.Record{}, false, nil
		}
		return tradestate.Record{}, false, err
	}
	return tradingStateModelToRecord(m), true, nil
}

func (s *GormStore) UpsertTradingState(ctx context.Context, rec tradestate.Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if rec.ConversationID == "" || rec.Symbol == "" || rec.Timeframe == "" {
		return fmt.Errorf("交易状态缺少作用域 conversation=%q symbol=%q timeframe=%q",
			rec.ConversationID, rec.Symbol, rec.Timeframe)
	}
	m := newTradingStateModel(rec)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "conversation_id"}, {Name: "symbol"}, {Name: "timeframe"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "last_direction", "last_label", "last_invalidation",
				"last_analysis_at", "reset_deadline", "updated_at",
			}),
		}).
		Create(&m).Error
}

func (s *GormStore) ListResetDue(ctx context.Context, now time.Time) ([]tradestate.Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var models []tradingStateModel
	err := s.db.WithContext(ctx).
		Where("state = ?", string(tradestate.StateInvalidatedReset)).
		Where("reset_deadline IS NULL OR reset_deadline <= ?", now.UnixMilli()).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]tradestate.Record, 0, len(models))
	for _, m := range models {
		out = append(out, tradingStateModelToRecord(m))
	}
	return out, nil
}

func (s *GormStore) ListByStates(ctx context.Context, states ...tradestate.State) ([]tradestate.Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if len(states) == 0 {
		return nil, nil
	}
	raw := make([]string, 0, len(states))
	for _, st := range states {
		raw = append(raw, string(st))
	}
	var models []tradingStateModel
	if err := s.db.WithContext(ctx).Where("state IN ?", raw).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]tradestate.Record, 0, len(models))
	for _, m := range models {
		out = append(out, tradingStateModelToRecord(m))
	}
	return out, nil
}

// --------------------- decision.DecisionStore 实现 -------------------------

func (s *GormStore) InsertDecision(ctx context.Context, d decision.Decision) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if strings.TrimSpace(d.TraceID) == "" {
		return fmt.Errorf("决策缺少 trace_id")
	}
	m, err := newDecisionModel(d)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) GetRiskContext(ctx context.Context, userID string) (risk.Context, error) {
	if s == nil || s.db == nil {
		return risk.Context{}, fmt.Errorf("gorm store 未初始化")
	}
	userID = strings.TrimSpace(userID)
	var m riskContextModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 没有记账记录等价于零持仓零连亏
			return risk.Context{UserID: userID}, nil
		}
		return risk.Context{}, err
	}
	return risk.Context{
		UserID:            m.UserID,
		ActivePositions:   m.ActivePositions,
		ConsecutiveLosses: m.ConsecutiveLosses,
	}, nil
}

func (s *GormStore) UpsertRiskContext(ctx context.Context, rc risk.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if strings.TrimSpace(rc.UserID) == "" {
		return fmt.Errorf("风险快照缺少 user_id")
	}
	m := riskContextModel{
		UserID:            strings.TrimSpace(rc.UserID),
		ActivePositions:   rc.ActivePositions,
		ConsecutiveLosses: rc.ConsecutiveLosses,
		UpdatedAtUnix:     time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"active_positions", "consecutive_losses", "updated_at"}),
		}).
		Create(&m).Error
}

// --------------------- 决策查询 -------------------------

type DecisionFilter struct {
	ConversationID string
	Symbol         string
	Limit          int
	Offset         int
}

func (s *GormStore) ListDecisions(ctx context.Context, f DecisionFilter) ([]decision.Decision, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	query := s.db.WithContext(ctx).Model(&decisionModel{})
	if c := strings.TrimSpace(f.ConversationID); c != "" {
		query = query.Where("conversation_id = ?", c)
	}
	if sym := normalizeSymbol(f.Symbol); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	var models []decisionModel
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]decision.Decision, 0, len(models))
	for _, m := range models {
		out = append(out, decisionModelToDomain(m))
	}
	return out, nil
}

func (s *GormStore) CountDecisions(ctx context.Context, f DecisionFilter) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("gorm store 未初始化")
	}
	query := s.db.WithContext(ctx).Model(&decisionModel{})
	if c := strings.TrimSpace(f.ConversationID); c != "" {
		query = query.Where("conversation_id = ?", c)
	}
	if sym := normalizeSymbol(f.Symbol); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

func (s *GormStore) GetDecisionByTraceID(ctx context.Context, traceID string) (decision.Decision, bool, error) {
	if s == nil || s.db == nil {
		return decision.Decision{}, false, fmt.Errorf("gorm store 未初始化")
	}
	var m decisionModel
	err := s.db.WithContext(ctx).Where("trace_id = ?", strings.TrimSpace(traceID)).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decision.Decision{}, false, nil
		}
		return decision.Decision{}, false, err
	}
	return decisionModelToDomain(m), true, nil
}

// --------------------- 知识库文档与片段 -------------------------

func (s *GormStore) UpsertDocument(ctx context.Context, doc knowledge.Document) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("文档缺少 ID")
	}
	now := time.Now().UnixMilli()
	m := documentModel{
		ID:            strings.TrimSpace(doc.ID),
		Name:          strings.TrimSpace(doc.Name),
		SourceFile:    strings.TrimSpace(doc.SourceFile),
		CreatedAtUnix: now,
		UpdatedAtUnix: now,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "source_file", "updated_at"}),
		}).
		Create(&m).Error
}

func (s *GormStore) GetDocument(ctx context.Context, id string) (knowledge.Document, bool, error) {
	if s == nil || s.db == nil {
		return knowledge.Document{}, false, fmt.Errorf("gorm store 未初始化")
	}
	var m documentModel
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return knowledge.Document{}, false, nil
		}
		return knowledge.Document{}, false, err
	}
	doc := documentModelToDomain(m)
	var count int64
	if err := s.db.WithContext(ctx).Model(&fragmentModel{}).
		Where("document_id = ?", m.ID).Count(&count).Error; err != nil {
		return knowledge.Document{}, false, err
	}
	doc.FragmentCount = int(count)
	return doc, true, nil
}

func (s *GormStore) ListDocuments(ctx context.Context) ([]knowledge.Document, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var models []documentModel
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	counts, err := s.fragmentCounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]knowledge.Document, 0, len(models))
	for _, m := range models {
		doc := documentModelToDomain(m)
		doc.FragmentCount = counts[m.ID]
		out = append(out, doc)
	}
	return out, nil
}

func (s *GormStore) fragmentCounts(ctx context.Context) (map[string]int, error) {
	type row struct {
		DocumentID string `gorm:"column:document_id"`
		Total      int64  `gorm:"column:total"`
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&fragmentModel{}).
		Select("document_id, COUNT(*) AS total").
		Group("document_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.DocumentID] = int(r.Total)
	}
	return counts, nil
}

// DeleteDocument 删除文档并级联清理其全部片段。
func (s *GormStore) DeleteDocument(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("文档 ID 不能为空")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&fragmentModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&documentModel{}).Error
	})
}

func (s *GormStore) UpsertFragments(ctx context.Context, frags []knowledge.Fragment) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if len(frags) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	models := make([]fragmentModel, 0, len(frags))
	for _, f := range frags {
		if strings.TrimSpace(f.ID) == "" || strings.TrimSpace(f.DocumentID) == "" {
			return fmt.Errorf("片段缺少 ID 或 document_id")
		}
		m, err := newFragmentModel(f, now)
		if err != nil {
			return err
		}
		models = append(models, m)
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"document_id", "category", "section", "page", "content", "embedding",
			}),
		}).
		Create(&models).Error
}

func (s *GormStore) ListFragmentsByDocument(ctx context.Context, documentID string) ([]knowledge.Fragment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var models []fragmentModel
	err := s.db.WithContext(ctx).
		Where("document_id = ?", strings.TrimSpace(documentID)).
		Order("page ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fragmentModelsToDomain(models)
}

// FragmentsWithEmbeddings 取全部带向量的片段，向量检索在内存中算。
func (s *GormStore) FragmentsWithEmbeddings(ctx context.Context) ([]knowledge.Fragment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var models []fragmentModel
	err := s.db.WithContext(ctx).
		Where("embedding IS NOT NULL AND embedding != ''").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fragmentModelsToDomain(models)
}

// SearchFragmentContent 关键词检索：任一 token 命中 content 或 section 即返回。
func (s *GormStore) SearchFragmentContent(ctx context.Context, tokens []string, limit int) ([]knowledge.Fragment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	clean := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if t := strings.TrimSpace(tok); t != "" {
			clean = append(clean, t)
		}
	}
	if len(clean) == 0 {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&fragmentModel{})
	var conds []string
	var args []interface{}
	for _, tok := range clean {
		pattern := "%" + escapeLike(tok) + "%"
		conds = append(conds, "(content LIKE ? ESCAPE '\\' OR section LIKE ? ESCAPE '\\')")
		args = append(args, pattern, pattern)
	}
	query = query.Where(strings.Join(conds, " OR "), args...)
	var models []fragmentModel
	if err := query.Order("document_id ASC, page ASC, id ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return fragmentModelsToDomain(models)
}

// --------------------------- 模型转换 ------------------------------------

func newTradingStateModel(rec tradestate.Record) tradingStateModel {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m := tradingStateModel{
		ConversationID:   strings.TrimSpace(rec.ConversationID),
		Symbol:           normalizeSymbol(rec.Symbol),
		Timeframe:        strings.TrimSpace(rec.Timeframe),
		State:            string(rec.State),
		LastDirection:    strings.TrimSpace(rec.LastDirection),
		LastLabel:        strings.TrimSpace(rec.LastLabel),
		LastInvalidation: strings.TrimSpace(rec.LastInvalidation),
		LastAnalysisUnix: timeToMillis(rec.LastAnalysisAt),
		CreatedAtUnix:    rec.CreatedAt.UnixMilli(),
		UpdatedAtUnix:    rec.UpdatedAt.UnixMilli(),
	}
	if rec.ResetDeadline != nil && !rec.ResetDeadline.IsZero() {
		val := rec.ResetDeadline.UnixMilli()
		m.ResetDeadline = &val
	}
	return m
}

func tradingStateModelToRecord(m tradingStateModel) tradestate.Record {
	rec := tradestate.Record{
		ConversationID:   m.ConversationID,
		Symbol:           m.Symbol,
		Timeframe:        m.Timeframe,
		State:            tradestate.State(m.State),
		LastDirection:    m.LastDirection,
		LastLabel:        m.LastLabel,
		LastInvalidation: m.LastInvalidation,
		LastAnalysisAt:   millisToTime(m.LastAnalysisUnix),
		CreatedAt:        millisToTime(m.CreatedAtUnix),
		UpdatedAt:        millisToTime(m.UpdatedAtUnix),
	}
	if m.ResetDeadline != nil && *m.ResetDeadline > 0 {
		ts := time.UnixMilli(*m.ResetDeadline)
		rec.ResetDeadline = &ts
	}
	return rec
}

func newDecisionModel(d decision.Decision) (decisionModel, error) {
	scoreA, err := json.Marshal(d.ScoreA)
	if err != nil {
		return decisionModel{}, fmt.Errorf("序列化评分 A 失败: %w", err)
	}
	scoreB, err := json.Marshal(d.ScoreB)
	if err != nil {
		return decisionModel{}, fmt.Errorf("序列化评分 B 失败: %w", err)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	return decisionModel{
		TraceID:        strings.TrimSpace(d.TraceID),
		ConversationID: strings.TrimSpace(d.ConversationID),
		Symbol:         normalizeSymbol(d.Symbol),
		Timeframe:      strings.TrimSpace(d.Timeframe),
		Direction:      string(d.Direction),
		EntryTrigger:   d.EntryTrigger,
		Invalidation:   d.Invalidation,
		RiskPercent:    d.RiskPercent,
		WinnerTag:      string(d.WinnerTag),
		LosingLabel:    d.LosingLabel,
		ResultingState: string(d.ResultingState),
		ScoreA:         datatypes.JSON(scoreA),
		ScoreB:         datatypes.JSON(scoreB),
		Reasoning:      d.Reasoning,
		CreatedAtUnix:  d.CreatedAt.UnixMilli(),
	}, nil
}

func decisionModelToDomain(m decisionModel) decision.Decision {
	d := decision.Decision{
		TraceID:        m.TraceID,
		ConversationID: m.ConversationID,
		Symbol:         m.Symbol,
		Timeframe:      m.Timeframe,
		Direction:      decision.Direction(m.Direction),
		EntryTrigger:   m.EntryTrigger,
		Invalidation:   m.Invalidation,
		RiskPercent:    m.RiskPercent,
		WinnerTag:      decision.Tag(m.WinnerTag),
		LosingLabel:    m.LosingLabel,
		ResultingState: tradestate.State(m.ResultingState),
		Reasoning:      m.Reasoning,
		Recorded:       true,
		CreatedAt:      millisToTime(m.CreatedAtUnix),
	}
	if len(m.ScoreA) > 0 {
		_ = json.Unmarshal(m.ScoreA, &d.ScoreA)
	}
	if len(m.ScoreB) > 0 {
		_ = json.Unmarshal(m.ScoreB, &d.ScoreB)
	}
	return d
}

func documentModelToDomain(m documentModel) knowledge.Document {
	return knowledge.Document{
		ID:         m.ID,
		Name:       m.Name,
		SourceFile: m.SourceFile,
		CreatedAt:  millisToTime(m.CreatedAtUnix),
	}
}

func newFragmentModel(f knowledge.Fragment, nowMillis int64) (fragmentModel, error) {
	m := fragmentModel{
		ID:            strings.TrimSpace(f.ID),
		DocumentID:    strings.TrimSpace(f.DocumentID),
		Category:      string(f.Category),
		Section:       strings.TrimSpace(f.Section),
		Page:          f.Page,
		Content:       f.Content,
		CreatedAtUnix: nowMillis,
	}
	if len(f.Embedding) > 0 {
		raw, err := json.Marshal(f.Embedding)
		if err != nil {
			return fragmentModel{}, fmt.Errorf("序列化片段向量失败 id=%s: %w", f.ID, err)
		}
		m.Embedding = datatypes.JSON(raw)
	}
	return m, nil
}

func fragmentModelsToDomain(models []fragmentModel) ([]knowledge.Fragment, error) {
	out := make([]knowledge.Fragment, 0, len(models))
	for _, m := range models {
		f := knowledge.Fragment{
			ID:         m.ID,
			DocumentID: m.DocumentID,
			Category:   knowledge.Category(m.Category),
			Section:    m.Section,
			Page:       m.Page,
			Content:    m.Content,
		}
		if len(m.Embedding) > 0 {
			if err := json.Unmarshal(m.Embedding, &f.Embedding); err != nil {
				return nil, fmt.Errorf("解析片段向量失败 id=%s: %w", m.ID, err)
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// --------------------------- 辅助函数 ------------------------------------

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func ensureDir(path string) error {
	dir := filepathDir(path)
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func filepathDir(path string) string {
	last := strings.LastIndex(path, "/")
	if last == -1 {
		last = strings.LastIndex(path, "\\")
	}
	if last == -1 {
		return ""
	}
	return path[:last]
}
