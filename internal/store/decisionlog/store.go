package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/m3n89t-max/-chatbot/internal/decision"
)

// 中文说明：决策循环审计日志。每轮决策落一行，保留双情景提案、
// 评分与风控结论的完整现场，供排查与前端回放。与主存储分开建表，
// 也可以通过 UseExternalDB 复用同一个 SQLite 连接避免锁冲突。

// CycleLogStore 管理 decision_cycle_logs 表。
type CycleLogStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

// CycleRecord 一轮决策的审计快照。
type CycleRecord struct {
	ID             int64                     `json:"id"`
	TraceID        string                    `json:"trace_id"`
	Timestamp      int64                     `json:"ts"`
	ConversationID string                    `json:"conversation_id"`
	Symbol         string                    `json:"symbol,omitempty"`
	Timeframe      string                    `json:"timeframe,omitempty"`
	Query          string                    `json:"query"`
	ContextText    string                    `json:"context_text"`
	ProviderA      string                    `json:"provider_a"`
	ProviderB      string                    `json:"provider_b"`
	ProposalA      decision.ScenarioProposal `json:"proposal_a"`
	ProposalB      decision.ScenarioProposal `json:"proposal_b"`
	ScoreA         decision.ScenarioScore    `json:"score_a"`
	ScoreB         decision.ScenarioScore    `json:"score_b"`
	WinnerTag      string                    `json:"winner_tag"`
	Direction      string                    `json:"direction"`
	RiskPercent    float64                   `json:"risk_percent"`
	RiskAllowed    bool                      `json:"risk_allowed"`
	RiskReason     string                    `json:"risk_reason,omitempty"`
	ResultingState string                    `json:"resulting_state,omitempty"`
	Recorded       bool                      `json:"recorded"`
	Degraded       bool                      `json:"degraded"`
	ImageCount     int                       `json:"image_count"`
	ElapsedMS      int64                     `json:"elapsed_ms"`
	CreatedAt      int64                     `json:"created_at"`
}

// CycleQuery 审计日志筛选条件。
type CycleQuery struct {
	ConversationID string
	Symbol         string
	Winner         string
	Limit          int
	Offset         int
}

// NewCycleLogStore 初始化独立的 SQLite 审计库。
func NewCycleLogStore(path string) (*CycleLogStore, error) {
	if path == "" {
		return nil, fmt.Errorf("cycle log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureCycleLogSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &CycleLogStore{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB 复用外部（例如 GORM）初始化的 SQLite 连接，避免多连接锁冲突。
func (s *CycleLogStore) UseExternalDB(db *sql.DB) error {
	if s == nil {
		return fmt.Errorf("cycle log store 未初始化")
	}
	if db == nil {
		return fmt.Errorf("external db 不能为空")
	}
	if err := ensureCycleLogSchema(db); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsDB && s.db != nil && s.db != db {
		_ = s.db.Close()
	}
	s.db = db
	s.ownsDB = false
	return nil
}

// Close 关闭底层 DB（外部连接只解除引用）。
func (s *CycleLogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if !s.ownsDB {
		s.db = nil
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureCycleLogSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_cycle_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			trace_id TEXT,
			conversation_id TEXT,
			symbol TEXT,
			timeframe TEXT,
			query TEXT,
			context_text TEXT,
			provider_a TEXT,
			provider_b TEXT,
			proposal_a_json TEXT,
			proposal_b_json TEXT,
			score_a_json TEXT,
			score_b_json TEXT,
			winner_tag TEXT,
			direction TEXT,
			risk_percent REAL,
			risk_allowed INTEGER,
			risk_reason TEXT,
			resulting_state TEXT,
			recorded INTEGER,
			degraded INTEGER,
			image_count INTEGER,
			elapsed_ms INTEGER,
			created_at INTEGER NOT NULL
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_logs_conv_ts_id ON decision_cycle_logs(conversation_id, ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_logs_symbol_ts ON decision_cycle_logs(symbol, ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_logs_trace ON decision_cycle_logs(trace_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return ensureCycleLogColumns(db)
}

func ensureCycleLogColumns(db *sql.DB) error {
	cols := []struct {
		table  string
		column string
		typ    string
	}{
		{"decision_cycle_logs", "risk_reason", "TEXT"},
		{"decision_cycle_logs", "degraded", "INTEGER"},
		{"decision_cycle_logs", "image_count", "INTEGER"},
		{"decision_cycle_logs", "elapsed_ms", "INTEGER"},
	}
	for _, col := range cols {
		if err := addColumnIfMissing(db, col.table, col.column, col.typ); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, typ string) error {
	query := fmt.Sprintf("PRAGMA table_info(%s)", table)
	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()
	exists := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			exists = true
			break
		}
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ)
	_, err = db.Exec(stmt)
	return err
}

// InsertCycle 写入一条审计记录。
func (s *CycleLogStore) InsertCycle(ctx context.Context, rec CycleRecord) (int64, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, fmt.Errorf("cycle log store 未初始化")
	}
	ts := rec.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	now := time.Now().UnixMilli()
	enc := func(v interface{}) string {
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO decision_cycle_logs
			(ts, trace_id, conversation_id, symbol, timeframe, query, context_text,
			 provider_a, provider_b, proposal_a_json, proposal_b_json, score_a_json, score_b_json,
			 winner_tag, direction, risk_percent, risk_allowed, risk_reason, resulting_state,
			 recorded, degraded, image_count, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts,
		rec.TraceID,
		rec.ConversationID,
		strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		rec.Timeframe,
		rec.Query,
		rec.ContextText,
		rec.ProviderA,
		rec.ProviderB,
		enc(rec.ProposalA),
		enc(rec.ProposalB),
		enc(rec.ScoreA),
		enc(rec.ScoreB),
		rec.WinnerTag,
		rec.Direction,
		rec.RiskPercent,
		boolToInt(rec.RiskAllowed),
		rec.RiskReason,
		rec.ResultingState,
		boolToInt(rec.Recorded),
		boolToInt(rec.Degraded),
		rec.ImageCount,
		rec.ElapsedMS,
		now,
	)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

func buildCycleFilter(q CycleQuery) (string, []interface{}) {
	var args []interface{}
	var sb strings.Builder
	sb.WriteString(" WHERE 1=1")
	if c := strings.TrimSpace(q.ConversationID); c != "" {
		sb.WriteString(" AND conversation_id=?")
		args = append(args, c)
	}
	if sym := strings.ToUpper(strings.TrimSpace(q.Symbol)); sym != "" {
		sb.WriteString(" AND symbol=?")
		args = append(args, sym)
	}
	if w := strings.ToUpper(strings.TrimSpace(q.Winner)); w != "" {
		sb.WriteString(" AND winner_tag=?")
		args = append(args, w)
	}
	return sb.String(), args
}

const cycleColumns = `id, trace_id, ts, conversation_id, symbol, timeframe, query, context_text,
	provider_a, provider_b, proposal_a_json, proposal_b_json, score_a_json, score_b_json,
	winner_tag, direction, risk_percent, risk_allowed, risk_reason, resulting_state,
	recorded, degraded, image_count, elapsed_ms, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCycleRecord(scanner rowScanner) (CycleRecord, error) {
	var (
		rec       CycleRecord
		query     sql.NullString
		contextT  sql.NullString
		propA     sql.NullString
		propB     sql.NullString
		scoreA    sql.NullString
		scoreB    sql.NullString
		reason    sql.NullString
		allowed   sql.NullInt64
		recorded  sql.NullInt64
		degraded  sql.NullInt64
		imgCount  sql.NullInt64
		elapsedMS sql.NullInt64
	)
	if err := scanner.Scan(&rec.ID, &rec.TraceID, &rec.Timestamp, &rec.ConversationID, &rec.Symbol,
		&rec.Timeframe, &query, &contextT, &rec.ProviderA, &rec.ProviderB,
		&propA, &propB, &scoreA, &scoreB, &rec.WinnerTag, &rec.Direction, &rec.RiskPercent,
		&allowed, &reason, &rec.ResultingState, &recorded, &degraded, &imgCount, &elapsedMS,
		&rec.CreatedAt); err != nil {
		return rec, err
	}
	rec.Query = query.String
	rec.ContextText = contextT.String
	rec.RiskReason = reason.String
	rec.RiskAllowed = nullIntToBool(allowed)
	rec.Recorded = nullIntToBool(recorded)
	rec.Degraded = nullIntToBool(degraded)
	if imgCount.Valid {
		rec.ImageCount = int(imgCount.Int64)
	}
	if elapsedMS.Valid {
		rec.ElapsedMS = elapsedMS.Int64
	}
	if propA.Valid && propA.String != "" {
		_ = json.Unmarshal([]byte(propA.String), &rec.ProposalA)
	}
	if propB.Valid && propB.String != "" {
		_ = json.Unmarshal([]byte(propB.String), &rec.ProposalB)
	}
	if scoreA.Valid && scoreA.String != "" {
		_ = json.Unmarshal([]byte(scoreA.String), &rec.ScoreA)
	}
	if scoreB.Valid && scoreB.String != "" {
		_ = json.Unmarshal([]byte(scoreB.String), &rec.ScoreB)
	}
	return rec, nil
}

// ListCycles 返回最新的审计记录，支持按会话/标的/胜出方过滤。
func (s *CycleLogStore) ListCycles(ctx context.Context, q CycleQuery) ([]CycleRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("cycle log store 未初始化")
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	filterSQL, args := buildCycleFilter(q)
	var sb strings.Builder
	sb.WriteString("SELECT " + cycleColumns + " FROM decision_cycle_logs")
	sb.WriteString(filterSQL)
	sb.WriteString(" ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?")
	args = append(args, limit, offset)
	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []CycleRecord
	for rows.Next() {
		rec, err := scanCycleRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// CountCycles 统计满足筛选条件的审计记录数。
func (s *CycleLogStore) CountCycles(ctx context.Context, q CycleQuery) (int, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, fmt.Errorf("cycle log store 未初始化")
	}
	filterSQL, args := buildCycleFilter(q)
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decision_cycle_logs`+filterSQL, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// GetCycleByTraceID 按 trace 取回审计记录。
func (s *CycleLogStore) GetCycleByTraceID(ctx context.Context, traceID string) (CycleRecord, bool, error) {
	traceID = strings.TrimSpace(traceID)
	if traceID == "" {
		return CycleRecord{}, false, fmt.Errorf("trace_id 不能为空")
	}
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return CycleRecord{}, false, fmt.Errorf("cycle log store 未初始化")
	}
	row := db.QueryRowContext(ctx,
		"SELECT "+cycleColumns+" FROM decision_cycle_logs WHERE trace_id = ? ORDER BY id DESC LIMIT 1", traceID)
	rec, err := scanCycleRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return CycleRecord{}, false, nil
		}
		return CycleRecord{}, false, err
	}
	return rec, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIntToBool(v sql.NullInt64) bool {
	return v.Valid && v.Int64 != 0
}
