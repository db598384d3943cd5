package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/m3n89t-max/-chatbot/internal/knowledge"
	"github.com/m3n89t-max/-chatbot/internal/logger"
)

// KnowledgeStore 文档与片段的持久化端，删除文档时级联删除片段。
type KnowledgeStore interface {
	UpsertDocument(ctx context.Context, doc knowledge.Document) error
	GetDocument(ctx context.Context, id string) (knowledge.Document, bool, error)
	ListDocuments(ctx context.Context) ([]knowledge.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	UpsertFragments(ctx context.Context, frags []knowledge.Fragment) error
	ListFragmentsByDocument(ctx context.Context, documentID string) ([]knowledge.Fragment, error)
}

// Retriever 知识检索端，四种模式与决策引擎用的是同一个实现。
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, threshold float64, opts knowledge.QueryOptions) (knowledge.RetrievalResult, error)
	RetrievePriority(ctx context.Context, query string, topK int, threshold float64) (knowledge.RetrievalResult, error)
	RetrieveByDocument(ctx context.Context, query string, topK int, threshold float64, documentID string) (knowledge.RetrievalResult, error)
	RetrieveHybrid(ctx context.Context, query string, topK int, threshold float64) (knowledge.RetrievalResult, error)
}

func (r *Router) handleListDocuments(c *gin.Context) {
	if r.Knowledge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "知识库未启用"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	docs, err := r.Knowledge.ListDocuments(ctx)
	if err != nil {
		logger.Errorf("[api] 文档列表查询失败 ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	items := make([]gin.H, 0, len(docs))
	for _, d := range docs {
		items = append(items, gin.H{
			"id":             d.ID,
			"name":           d.Name,
			"source_file":    d.SourceFile,
			"fragment_count": d.FragmentCount,
			"created_at":     d.CreatedAt.UTC(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"documents": items, "total_count": len(items)})
}

func (r *Router) handleGetDocument(c *gin.Context) {
	if r.Knowledge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "知识库未启用"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	doc, ok, err := r.Knowledge.GetDocument(c.Request.Context(), id)
	if err != nil {
		logger.Errorf("[api] 文档查询失败 ip=%s doc=%s err=%v", c.ClientIP(), id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
		return
	}
	frags, err := r.Knowledge.ListFragmentsByDocument(c.Request.Context(), id)
	if err != nil {
		logger.Errorf("[api] 片段列表查询失败 ip=%s doc=%s err=%v", c.ClientIP(), id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	items := make([]gin.H, 0, len(frags))
	for _, f := range frags {
		view := fragmentView(f)
		items = append(items, view)
	}
	c.JSON(http.StatusOK, gin.H{
		"document": gin.H{
			"id":             doc.ID,
			"name":           doc.Name,
			"source_file":    doc.SourceFile,
			"fragment_count": doc.FragmentCount,
			"created_at":     doc.CreatedAt.UTC(),
		},
		"fragments": items,
	})
}

// IngestFragment 入库片段。缺向量且配置了向量化客户端时由服务端补算。
type IngestFragment struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Section   string    `json:"section"`
	Page      int       `json:"page"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// IngestRequest 文档入库请求体。
type IngestRequest struct {
	Document struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		SourceFile string `json:"source_file"`
	} `json:"document"`
	Fragments []IngestFragment `json:"fragments"`
}

func (r *Router) handleIngestDocument(c *gin.Context) {
	if r.Knowledge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "知识库未启用"})
		return
	}
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Document.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document.name 不能为空"})
		return
	}
	if len(req.Fragments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fragments 不能为空"})
		return
	}

	docID := strings.TrimSpace(req.Document.ID)
	if docID == "" {
		docID = uuid.NewString()
	}
	frags := make([]knowledge.Fragment, 0, len(req.Fragments))
	embedded := 0
	for i, in := range req.Fragments {
		if strings.TrimSpace(in.Content) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fragments[" + strconv.Itoa(i) + "].content 不能为空"})
			return
		}
		cat, ok := knowledge.ParseCategory(in.Category)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fragments[" + strconv.Itoa(i) + "].category 未知: " + in.Category})
			return
		}
		f := knowledge.Fragment{
			ID:         strings.TrimSpace(in.ID),
			DocumentID: docID,
			Category:   cat,
			Section:    in.Section,
			Page:       in.Page,
			Content:    in.Content,
			Embedding:  in.Embedding,
		}
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if len(f.Embedding) == 0 && r.Embedder != nil {
			emb, err := r.Embedder.Embed(c.Request.Context(), f.Content)
			if err != nil {
				logger.Errorf("[api] 片段向量化失败 ip=%s doc=%s idx=%d err=%v", c.ClientIP(), docID, i, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "片段向量化失败: " + err.Error()})
				return
			}
			f.Embedding = emb
			embedded++
		}
		frags = append(frags, f)
	}

	doc := knowledge.Document{
		ID:         docID,
		Name:       req.Document.Name,
		SourceFile: req.Document.SourceFile,
	}
	if err := r.Knowledge.UpsertDocument(c.Request.Context(), doc); err != nil {
		logger.Errorf("[api] 文档写入失败 ip=%s doc=%s err=%v", c.ClientIP(), docID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := r.Knowledge.UpsertFragments(c.Request.Context(), frags); err != nil {
		logger.Errorf("[api] 片段写入失败 ip=%s doc=%s err=%v", c.ClientIP(), docID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] 知识入库 doc=%s fragments=%d embedded=%d", docID, len(frags), embedded)
	c.JSON(http.StatusOK, gin.H{"document_id": docID, "fragment_count": len(frags)})
}

func (r *Router) handleDeleteDocument(c *gin.Context) {
	if r.Knowledge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "知识库未启用"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if err := r.Knowledge.DeleteDocument(c.Request.Context(), id); err != nil {
		logger.Errorf("[api] 文档删除失败 ip=%s doc=%s err=%v", c.ClientIP(), id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] 文档删除 doc=%s", id)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleKnowledgeSearch(c *gin.Context) {
	if r.Retriever == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "检索未启用"})
		return
	}
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query 不能为空"})
		return
	}

	topK := r.SearchTopK
	if v, err := strconv.Atoi(c.Query("top_k")); err == nil && v > 0 {
		topK = v
	}
	if topK <= 0 {
		topK = 5
	}
	if topK > 50 {
		topK = 50
	}
	threshold := r.SearchThreshold
	if v, err := strconv.ParseFloat(c.Query("threshold"), 64); err == nil && v > 0 {
		threshold = v
	}

	var category knowledge.Category
	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		cat, ok := knowledge.ParseCategory(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "category 未知: " + raw})
			return
		}
		category = cat
	}
	documentID := strings.TrimSpace(c.Query("document_id"))

	ctx := c.Request.Context()
	mode := strings.ToLower(strings.TrimSpace(c.Query("mode")))
	var (
		result knowledge.RetrievalResult
		err    error
	)
	switch mode {
	case "", "plain", "vector":
		result, err = r.Retriever.Retrieve(ctx, query, topK, threshold, knowledge.QueryOptions{
			Category:          category,
			PreferredDocument: documentID,
		})
	case "priority":
		result, err = r.Retriever.RetrievePriority(ctx, query, topK, threshold)
	case "document":
		if documentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "document 模式需要 document_id"})
			return
		}
		result, err = r.Retriever.RetrieveByDocument(ctx, query, topK, threshold, documentID)
	case "hybrid":
		result, err = r.Retriever.RetrieveHybrid(ctx, query, topK, threshold)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode 未知: " + mode})
		return
	}
	if err != nil {
		logger.Errorf("[api] 知识检索失败 ip=%s mode=%s err=%v", c.ClientIP(), mode, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, 0, len(result.Fragments))
	for _, sf := range result.Fragments {
		view := fragmentView(sf.Fragment)
		view["score"] = sf.Score
		items = append(items, view)
	}
	c.JSON(http.StatusOK, gin.H{"fragments": items, "count": len(items)})
}

// fragmentView 片段的对外视图，原始向量不回传。
func fragmentView(f knowledge.Fragment) gin.H {
	return gin.H{
		"id":            f.ID,
		"document_id":   f.DocumentID,
		"category":      f.Category,
		"section":       f.Section,
		"page":          f.Page,
		"content":       f.Content,
		"has_embedding": len(f.Embedding) > 0,
	}
}
