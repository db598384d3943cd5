package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/m3n89t-max/-chatbot/internal/knowledge"
	"github.com/m3n89t-max/-chatbot/internal/pkg/text"
)

// 中文说明：基于 SQLite 片段表的向量检索适配器。片段总量在千级，
// 向量召回直接全量加载后在内存算余弦相似度；关键词召回走存储层
// 的 LIKE 查询。

// FragmentSource 片段数据来源，由 gormstore 实现。
type FragmentSource interface {
	FragmentsWithEmbeddings(ctx context.Context) ([]knowledge.Fragment, error)
	SearchFragmentContent(ctx context.Context, tokens []string, limit int) ([]knowledge.Fragment, error)
}

type GormVectorStore struct {
	source FragmentSource
}

var _ knowledge.VectorStore = (*GormVectorStore)(nil)

func NewGormVectorStore(source FragmentSource) (*GormVectorStore, error) {
	if source == nil {
		return nil, fmt.Errorf("vector store: 片段来源不能为空")
	}
	return &GormVectorStore{source: source}, nil
}

// Nearest 返回相似度不低于 threshold 的片段，按相似度降序截断到 limit。
func (s *GormVectorStore) Nearest(ctx context.Context, embedding []float32, threshold float64, limit int) ([]knowledge.ScoredFragment, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("查询向量为空")
	}
	if limit <= 0 {
		return nil, nil
	}
	frags, err := s.source.FragmentsWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载片段向量失败: %w", err)
	}
	scored := make([]knowledge.ScoredFragment, 0, len(frags))
	for _, f := range frags {
		if len(f.Embedding) != len(embedding) {
			continue
		}
		score := cosineSimilarity(embedding, f.Embedding)
		if score < threshold {
			continue
		}
		scored = append(scored, knowledge.ScoredFragment{Fragment: f, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Fragment.ID < scored[j].Fragment.ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// TextMatch 关键词召回。查询先切词，CJK 长串切二元词组后做 LIKE 匹配。
func (s *GormVectorStore) TextMatch(ctx context.Context, query string, limit int) ([]knowledge.Fragment, error) {
	if limit <= 0 {
		return nil, nil
	}
	tokens := text.KeywordTokens(query, 8)
	if len(tokens) == 0 {
		return nil, nil
	}
	frags, err := s.source.SearchFragmentContent(ctx, tokens, limit)
	if err != nil {
		return nil, fmt.Errorf("关键词检索失败: %w", err)
	}
	return frags, nil
}

func cosineSimilarity(a []float32, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
