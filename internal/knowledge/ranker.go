package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// 中文说明：检索排序器。负责向量召回之上的全部排序策略：
// 类别过滤、优先级配额（规则优先）、文档亲和、向量+关键词混合。
// 召回统一超量拉取 topK*2，给过滤留出余量。

const defaultKeywordScore = 0.5

type Ranker struct {
	embedder     Embedder
	store        VectorStore
	keywordScore float64
}

// NewRanker keywordScore 是关键词独有命中的兜底得分，传 0 取默认 0.5。
func NewRanker(embedder Embedder, store VectorStore, keywordScore float64) *Ranker {
	if keywordScore <= 0 || keywordScore > 1 {
		keywordScore = defaultKeywordScore
	}
	return &Ranker{embedder: embedder, store: store, keywordScore: keywordScore}
}

// QueryOptions 单次检索的可选项。
type QueryOptions struct {
	// Category 非空时只保留该类别，过滤发生在截断之前。
	Category Category
	// PreferredDocument 非空时该文档的片段整体前移，两段各自保持原有相关性顺序。
	PreferredDocument string
}

func (r *Ranker) Retrieve(ctx context.Context, query string, topK int, threshold float64, opts QueryOptions) (RetrievalResult, error) {
	emb, err := r.embedQuery(ctx, query)
	if err != nil {
		return RetrievalResult{}, err
	}
	return r.retrieve(ctx, emb, topK, threshold, opts)
}

// RetrievePriority 按固定配额组合三类片段：topK/2 条规则、topK/4 条例外、
// topK/4 条定义，规则在前拼接后截断到 topK。上下文空间紧张时规则必须占主导。
func (r *Ranker) RetrievePriority(ctx context.Context, query string, topK int, threshold float64) (RetrievalResult, error) {
	emb, err := r.embedQuery(ctx, query)
	if err != nil {
		return RetrievalResult{}, err
	}
	if topK <= 0 {
		return RetrievalResult{}, fmt.Errorf("检索 topK 非法: %d", topK)
	}
	quotas := []struct {
		category Category
		limit    int
	}{
		{CategoryRule, topK / 2},
		{CategoryException, topK / 4},
		{CategoryDefinition, topK / 4},
	}
	merged := make([]ScoredFragment, 0, topK)
	for _, q := range quotas {
		if q.limit <= 0 {
			continue
		}
		res, err := r.retrieve(ctx, emb, q.limit, threshold, QueryOptions{Category: q.category})
		if err != nil {
			return RetrievalResult{}, err
		}
		merged = append(merged, res.Fragments...)
	}
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return RetrievalResult{Fragments: merged}, nil
}

// RetrieveByDocument 用户正在读某份文档时偏向该文档的片段。
func (r *Ranker) RetrieveByDocument(ctx context.Context, query string, topK int, threshold float64, documentID string) (RetrievalResult, error) {
	return r.Retrieve(ctx, query, topK, threshold, QueryOptions{PreferredDocument: documentID})
}

// RetrieveHybrid 向量召回与关键词匹配取并集，按片段 ID 去重，
// 两边都命中时保留向量得分，仅关键词命中记兜底得分，最终按得分降序。
func (r *Ranker) RetrieveHybrid(ctx context.Context, query string, topK int, threshold float64) (RetrievalResult, error) {
	emb, err := r.embedQuery(ctx, query)
	if err != nil {
		return RetrievalResult{}, err
	}
	if topK <= 0 {
		return RetrievalResult{}, fmt.Errorf("检索 topK 非法: %d", topK)
	}
	vec, err := r.store.Nearest(ctx, emb, threshold, topK*2)
	if err != nil {
		return RetrievalResult{}, fmt.Errorf("向量检索失败: %w", err)
	}
	kw, err := r.store.TextMatch(ctx, query, topK*2)
	if err != nil {
		return RetrievalResult{}, fmt.Errorf("关键词检索失败: %w", err)
	}
	seen := make(map[string]struct{}, len(vec))
	merged := make([]ScoredFragment, 0, len(vec)+len(kw))
	for _, sf := range vec {
		if _, ok := seen[sf.Fragment.ID]; ok {
			continue
		}
		seen[sf.Fragment.ID] = struct{}{}
		merged = append(merged, sf)
	}
	for _, f := range kw {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		merged = append(merged, ScoredFragment{Fragment: f, Score: r.keywordScore})
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return RetrievalResult{Fragments: merged}, nil
}

func (r *Ranker) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("检索查询为空")
	}
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}
	if len(emb) == 0 {
		return nil, errors.New("查询向量化返回空向量")
	}
	return emb, nil
}

func (r *Ranker) retrieve(ctx context.Context, emb []float32, topK int, threshold float64, opts QueryOptions) (RetrievalResult, error) {
	if topK <= 0 {
		return RetrievalResult{}, fmt.Errorf("检索 topK 非法: %d", topK)
	}
	pool, err := r.store.Nearest(ctx, emb, threshold, topK*2)
	if err != nil {
		return RetrievalResult{}, fmt.Errorf("向量检索失败: %w", err)
	}
	if opts.Category != "" {
		pool = filterCategory(pool, opts.Category)
	}
	if opts.PreferredDocument != "" {
		pool = partitionByDocument(pool, opts.PreferredDocument)
	}
	if len(pool) > topK {
		pool = pool[:topK]
	}
	return RetrievalResult{Fragments: pool}, nil
}

func filterCategory(pool []ScoredFragment, category Category) []ScoredFragment {
	out := pool[:0:0]
	for _, sf := range pool {
		if sf.Fragment.Category == category {
			out = append(out, sf)
		}
	}
	return out
}

func partitionByDocument(pool []ScoredFragment, documentID string) []ScoredFragment {
	preferred := make([]ScoredFragment, 0, len(pool))
	others := make([]ScoredFragment, 0, len(pool))
	for _, sf := range pool {
		if sf.Fragment.DocumentID == documentID {
			preferred = append(preferred, sf)
		} else {
			others = append(others, sf)
		}
	}
	return append(preferred, others...)
}
