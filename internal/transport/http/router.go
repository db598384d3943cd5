package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/m3n89t-max/-chatbot/internal/decision"
	"github.com/m3n89t-max/-chatbot/internal/knowledge"
	"github.com/m3n89t-max/-chatbot/internal/logger"
	"github.com/m3n89t-max/-chatbot/internal/risk"
	"github.com/m3n89t-max/-chatbot/internal/rubric"
	"github.com/m3n89t-max/-chatbot/internal/store/decisionlog"
	"github.com/m3n89t-max/-chatbot/internal/tradestate"
)

// DecisionRunner 由决策编排器实现。
type DecisionRunner interface {
	RunDecisionCycle(ctx context.Context, req decision.CycleRequest) (*decision.Decision, error)
	GetState(ctx context.Context, conversationID, symbol, timeframe string) (tradestate.Record, error)
}

// CycleAuditReader 审计日志读取端。
type CycleAuditReader interface {
	ListCycles(ctx context.Context, q decisionlog.CycleQuery) ([]decisionlog.CycleRecord, error)
	CountCycles(ctx context.Context, q decisionlog.CycleQuery) (int, error)
	GetCycleByTraceID(ctx context.Context, traceID string) (decisionlog.CycleRecord, bool, error)
}

// RiskContextStore 用户风险快照的读写端，仓位与连亏由外部记账方维护。
type RiskContextStore interface {
	GetRiskContext(ctx context.Context, userID string) (risk.Context, error)
	UpsertRiskContext(ctx context.Context, rc risk.Context) error
}

// RubricSource 规则评分标准的只读快照。
type RubricSource interface {
	Snapshot() rubric.Snapshot
}

// Router 汇聚全部 /api/v1 接口。除 Engine 外的依赖都可为空，
// 对应接口返回 503。
type Router struct {
	Engine    DecisionRunner
	Audit     CycleAuditReader
	Knowledge KnowledgeStore
	Retriever Retriever
	Embedder  knowledge.Embedder
	Risk      RiskContextStore
	Rubric    RubricSource

	// SearchTopK/SearchThreshold 检索接口未显式传参时的默认值。
	SearchTopK      int
	SearchThreshold float64
}

// Register 将路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/decisions", r.handleRunDecision)
	group.GET("/decisions", r.handleListCycles)
	group.GET("/decisions/:trace_id", r.handleCycleByTrace)
	group.GET("/state", r.handleGetState)
	group.GET("/risk/:user_id", r.handleGetRisk)
	group.PUT("/risk/:user_id", r.handlePutRisk)
	group.GET("/rubric", r.handleRubric)

	group.GET("/documents", r.handleListDocuments)
	group.POST("/documents", r.handleIngestDocument)
	group.GET("/documents/:id", r.handleGetDocument)
	group.DELETE("/documents/:id", r.handleDeleteDocument)
	group.GET("/knowledge/search", r.handleKnowledgeSearch)
}

// DecisionRequest 触发一轮决策的请求体。
type DecisionRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	Symbol         string `json:"symbol"`
	Timeframe      string `json:"timeframe"`
	UserID         string `json:"user_id"`
}

func (r *Router) handleRunDecision(c *gin.Context) {
	if r.Engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "决策引擎未启用"})
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query 不能为空"})
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id 不能为空"})
		return
	}
	if strings.TrimSpace(req.Symbol) != "" && strings.TrimSpace(req.Timeframe) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "指定 symbol 时 timeframe 不能为空"})
		return
	}

	d, err := r.Engine.RunDecisionCycle(c.Request.Context(), decision.CycleRequest{
		Query:          req.Query,
		ConversationID: req.ConversationID,
		Symbol:         req.Symbol,
		Timeframe:      req.Timeframe,
		UserID:         req.UserID,
	})
	if err != nil {
		logger.Errorf("[api] 决策执行失败 ip=%s conversation=%s err=%v", c.ClientIP(), req.ConversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": d})
}

func (r *Router) handleGetState(c *gin.Context) {
	if r.Engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "决策引擎未启用"})
		return
	}
	conversationID := strings.TrimSpace(c.Query("conversation_id"))
	symbol := strings.TrimSpace(c.Query("symbol"))
	timeframe := strings.TrimSpace(c.Query("timeframe"))
	if conversationID == "" || symbol == "" || timeframe == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id/symbol/timeframe 不能为空"})
		return
	}
	rec, err := r.Engine.GetState(c.Request.Context(), conversationID, symbol, timeframe)
	if err != nil {
		logger.Errorf("[api] 状态查询失败 ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{
		"conversation_id": rec.ConversationID,
		"symbol":          rec.Symbol,
		"timeframe":       rec.Timeframe,
		"state":           rec.State,
		"last_direction":  rec.LastDirection,
		"last_label":      rec.LastLabel,
	}
	if rec.LastInvalidation != "" {
		resp["last_invalidation"] = rec.LastInvalidation
	}
	if !rec.LastAnalysisAt.IsZero() {
		resp["last_analysis_at"] = rec.LastAnalysisAt.UTC()
	}
	if rec.ResetDeadline != nil {
		resp["reset_deadline"] = rec.ResetDeadline.UTC()
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleListCycles(c *gin.Context) {
	if r.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "审计日志未启用"})
		return
	}
	page, pageSize, offset := parsePagination(c, 100)
	query := decisionlog.CycleQuery{
		ConversationID: c.Query("conversation_id"),
		Symbol:         c.Query("symbol"),
		Winner:         c.Query("winner"),
		Limit:          pageSize,
		Offset:         offset,
	}

	reqCtx := c.Request.Context()
	listCtx, cancelList := context.WithTimeout(reqCtx, 2*time.Second)
	records, err := r.Audit.ListCycles(listCtx, query)
	cancelList()
	if err != nil {
		logger.Errorf("[api] 审计列表查询失败 ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total := -1
	countCtx, cancelCount := context.WithTimeout(reqCtx, 800*time.Millisecond)
	count, err := r.Audit.CountCycles(countCtx, query)
	cancelCount()
	if err != nil {
		logger.Warnf("[api] 审计计数失败 ip=%s err=%v", c.ClientIP(), err)
	} else {
		total = count
	}

	c.JSON(http.StatusOK, gin.H{
		"cycles":      records,
		"total_count": total,
		"page":        page,
		"page_size":   pageSize,
	})
}

func (r *Router) handleCycleByTrace(c *gin.Context) {
	if r.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "审计日志未启用"})
		return
	}
	traceID := strings.TrimSpace(c.Param("trace_id"))
	if traceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trace_id 不能为空"})
		return
	}
	rec, ok, err := r.Audit.GetCycleByTraceID(c.Request.Context(), traceID)
	if err != nil {
		logger.Errorf("[api] 审计详情查询失败 ip=%s trace=%s err=%v", c.ClientIP(), traceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "未找到对应的决策记录"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycle": rec})
}

func (r *Router) handleGetRisk(c *gin.Context) {
	if r.Risk == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "风险存储未启用"})
		return
	}
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id 不能为空"})
		return
	}
	rc, err := r.Risk.GetRiskContext(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("[api] 风险快照查询失败 ip=%s user=%s err=%v", c.ClientIP(), userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":            rc.UserID,
		"active_positions":   rc.ActivePositions,
		"consecutive_losses": rc.ConsecutiveLosses,
	})
}

// RiskUpdateRequest 外部记账方回写仓位与连亏计数。
type RiskUpdateRequest struct {
	ActivePositions   int `json:"active_positions"`
	ConsecutiveLosses int `json:"consecutive_losses"`
}

func (r *Router) handlePutRisk(c *gin.Context) {
	if r.Risk == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "风险存储未启用"})
		return
	}
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id 不能为空"})
		return
	}
	var req RiskUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	if req.ActivePositions < 0 || req.ConsecutiveLosses < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "仓位与连亏计数不能为负"})
		return
	}
	rc := risk.Context{
		UserID:            userID,
		ActivePositions:   req.ActivePositions,
		ConsecutiveLosses: req.ConsecutiveLosses,
	}
	if err := r.Risk.UpsertRiskContext(c.Request.Context(), rc); err != nil {
		logger.Errorf("[api] 风险快照写入失败 ip=%s user=%s err=%v", c.ClientIP(), userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] 风险快照更新 user=%s positions=%d losses=%d", userID, req.ActivePositions, req.ConsecutiveLosses)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleRubric(c *gin.Context) {
	if r.Rubric == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "评分标准未启用"})
		return
	}
	snap := r.Rubric.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":     snap.Version,
		"loaded_at":   snap.LoadedAt.UTC(),
		"instruction": snap.Instruction,
		"axes":        snap.Axes,
	})
}

// parsePagination 解析 page/pageSize/limit/offset 组合，上限 500。
func parsePagination(c *gin.Context, defaultSize int) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(strings.TrimSpace(c.Query("page")))
	if page < 0 {
		page = 0
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "0"))
	if pageSize <= 0 {
		pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "0"))
	}
	if pageSize <= 0 {
		pageSize, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSize)))
	}
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if pageSize > 500 {
		pageSize = 500
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	if page > 0 {
		offset = (page - 1) * pageSize
	} else {
		page = offset/pageSize + 1
	}
	return page, pageSize, offset
}
