package knowledge

import (
	"context"
	"strings"
	"time"
)

// 中文说明：知识库领域类型。片段由文档切分而来，带分类、章节、
// 页码与向量；检索结果只在内存中流转，不落库。

type Category string

const (
	CategoryRule       Category = "rule"
	CategoryException  Category = "exception"
	CategoryDefinition Category = "definition"
)

func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryRule:
		return CategoryRule, true
	case CategoryException:
		return CategoryException, true
	case CategoryDefinition:
		return CategoryDefinition, true
	default:
		return "", false
	}
}

// Fragment 知识片段，入库后不可变，随所属文档级联删除。
type Fragment struct {
	ID         string
	DocumentID string
	Category   Category
	Section    string
	Page       int
	Content    string
	Embedding  []float32
}

// Document 知识文档元信息，片段计数由存储层统计。
type Document struct {
	ID            string
	Name          string
	SourceFile    string
	FragmentCount int
	CreatedAt     time.Time
}

// ScoredFragment 带相似度得分的片段，得分区间 [0,1]。
type ScoredFragment struct {
	Fragment Fragment
	Score    float64
}

// RetrievalResult 检索结果，切片顺序即相关性顺序。
type RetrievalResult struct {
	Fragments []ScoredFragment
}

func (r RetrievalResult) Empty() bool {
	return len(r.Fragments) == 0
}

// Embedder 查询向量化协作方，失败对本轮检索是致命的。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore 向量召回与关键词匹配协作方。
type VectorStore interface {
	Nearest(ctx context.Context, embedding []float32, threshold float64, limit int) ([]ScoredFragment, error)
	TextMatch(ctx context.Context, query string, limit int) ([]Fragment, error)
}
