package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockVectorStore struct {
	mock.Mock
}

func (m *mockVectorStore) Nearest(ctx context.Context, embedding []float32, threshold float64, limit int) ([]ScoredFragment, error) {
	args := m.Called(ctx, embedding, threshold, limit)
	if v := args.Get(0); v != nil {
		return v.([]ScoredFragment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVectorStore) TextMatch(ctx context.Context, query string, limit int) ([]Fragment, error) {
	args := m.Called(ctx, query, limit)
	if v := args.Get(0); v != nil {
		return v.([]Fragment), args.Error(1)
	}
	return nil, args.Error(1)
}

func scored(id string, category Category, documentID string, score float64) ScoredFragment {
	return ScoredFragment{
		Fragment: Fragment{ID: id, DocumentID: documentID, Category: category, Section: "S-" + id, Page: 1, Content: "content " + id},
		Score:    score,
	}
}

func resultIDs(res RetrievalResult) []string {
	ids := make([]string, 0, len(res.Fragments))
	for _, sf := range res.Fragments {
		ids = append(ids, sf.Fragment.ID)
	}
	return ids
}

func TestRetrieveCategoryFilterRunsBeforeTruncation(t *testing.T) {
	emb := []float32{0.1, 0.2}
	embedder := &mockEmbedder{}
	embedder.On("Embed", mock.Anything, "wave rules").Return(emb, nil)

	// Over-fetched pool of 4 (topK*2) where the rule fragments sit at the tail.
	store := &mockVectorStore{}
	store.On("Nearest", mock.Anything, emb, 0.35, 4).Return([]ScoredFragment{
		scored("d1", CategoryDefinition, "doc1", 0.95),
		scored("e1", CategoryException, "doc1", 0.90),
		scored("r1", CategoryRule, "doc1", 0.85),
		scored("r2", CategoryRule, "doc1", 0.80),
	}, nil)

	r := NewRanker(embedder, store, 0)
	res, err := r.Retrieve(context.Background(), "wave rules", 2, 0.35, QueryOptions{Category: CategoryRule})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, resultIDs(res))
	store.AssertExpectations(t)
}

func TestRetrievePriorityQuotasAndOrder(t *testing.T) {
	emb := []float32{0.5}
	embedder := &mockEmbedder{}
	embedder.On("Embed", mock.Anything, mock.Anything).Return(emb, nil)

	rulePool := []ScoredFragment{
		scored("r1", CategoryRule, "doc1", 0.9),
		scored("r2", CategoryRule, "doc1", 0.8),
		scored("r3", CategoryRule, "doc1", 0.7),
		scored("r4", CategoryRule, "doc1", 0.6),
		scored("r5", CategoryRule, "doc1", 0.5),
		scored("d9", CategoryDefinition, "doc1", 0.4),
	}
	excPool := []ScoredFragment{
		scored("e1", CategoryException, "doc1", 0.9),
		scored("e2", CategoryException, "doc1", 0.8),
		scored("e3", CategoryException, "doc1", 0.7),
	}
	defPool := []ScoredFragment{
		scored("x1", CategoryDefinition, "doc1", 0.9),
		scored("x2", CategoryDefinition, "doc1", 0.8),
	}

	// topK=8 -> quotas 4/2/2, each sub-query over-fetches its quota*2.
	store := &mockVectorStore{}
	store.On("Nearest", mock.Anything, emb, 0.3, 8).Return(rulePool, nil).Once()
	store.On("Nearest", mock.Anything, emb, 0.3, 4).Return(excPool, nil).Once()
	store.On("Nearest", mock.Anything, emb, 0.3, 4).Return(defPool, nil).Once()

	r := NewRanker(embedder, store, 0)
	res, err := r.RetrievePriority(context.Background(), "impulse rules", 8, 0.3)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "e1", "e2", "x1", "x2"}, resultIDs(res))
	store.AssertExpectations(t)
}

func TestRetrievePriorityTinyTopKSkipsEmptyQuotas(t *testing.T) {
	emb := []float32{0.5}
	embedder := &mockEmbedder{}
	embedder.On("Embed", mock.Anything, mock.Anything).Return(emb, nil)

	// topK=2 -> quotas 1/0/0, only the rule sub-query runs.
	store := &mockVectorStore{}
	store.On("Nearest", mock.Anything, emb, 0.3, 2).Return([]ScoredFragment{
		scored("r1", CategoryRule, "doc1", 0.9),
	}, nil).Once()

	r := NewRanker(embedder, store, 0)
	res, err := r.RetrievePriority(context.Background(), "q", 2, 0.3)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, resultIDs(res))
	store.AssertExpectations(t)
}

func TestRetrieveByDocumentPartitionKeepsInternalOrder(t *testing.T) {
	emb := []float32{0.5}
	embedder := &mockEmbedder{}
	embedder.On("Embed", mock.Anything, mock.Anything).Return(emb, nil)

	store := &mockVectorStore{}
	store.On("Nearest", mock.Anything, emb, 0.3, 8).Return([]ScoredFragment{
		scored("a1", CategoryRule, "other", 0.95),
		scored("p1", CategoryRule, "preferred", 0.90),
		scored("a2", CategoryRule, "other", 0.85),
		scored("p2", CategoryRule, "preferred", 0.80),
	}, nil)

	r := NewRanker(embedder, store, 0)
	res, err := r.RetrieveByDocument(context.Background(), "q", 4, 0.3, "preferred")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "a1", "a2"}, resultIDs(res))
}

func TestRetrieveHybridDedupesAndKeepsVectorScore(t *testing.T) {
	emb := []float32{0.5}
	embedder := &mockEmbedder{}
	embedder.On("Embed", mock.Anything, mock.Anything).Return(emb, nil)

	store := &mockVectorStore{}
	store.On("Nearest", mock.Anything, emb, 0.3, 8).Return([]ScoredFragment{
		scored("x", CategoryRule, "doc1", 0.9),
		scored("y", CategoryRule, "doc1", 0.8),
	}, nil)
	store.On("TextMatch", mock.Anything, "triangle", 8).Return([]Fragment{
		{ID: "y", DocumentID: "doc1", Category: CategoryRule, Content: "y"},
		{ID: "z", DocumentID: "doc1", Category: CategoryDefinition, Content: "z"},
	}, nil)

	r := NewRanker(embedder, store, 0)
	res, err := r.RetrieveHybrid(context.Background(), "triangle", 4, 0.3)
	require.NoError(t, err)

	require.Equal(t, []string{"x", "y", "z"}, resultIDs(res))
	assert.InDelta(t, 0.9, res.Fragments[0].Score, 1e-9)
	assert.InDelta(t, 0.8, res.Fragments[1].Score, 1e-9, "fragment found by both sides keeps its vector score")
	assert.InDelta(t, 0.5, res.Fragments[2].Score, 1e-9, "keyword-only fragment gets the fallback score")
}

func TestRetrieveFailuresAreFatal(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		r := NewRanker(&mockEmbedder{}, &mockVectorStore{}, 0)
		_, err := r.Retrieve(context.Background(), "   ", 4, 0.3, QueryOptions{})
		require.Error(t, err)
	})

	t.Run("embedder error", func(t *testing.T) {
		embedder := &mockEmbedder{}
		embedder.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("api down"))
		r := NewRanker(embedder, &mockVectorStore{}, 0)
		_, err := r.Retrieve(context.Background(), "q", 4, 0.3, QueryOptions{})
		require.Error(t, err)
	})

	t.Run("store error", func(t *testing.T) {
		embedder := &mockEmbedder{}
		embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
		store := &mockVectorStore{}
		store.On("Nearest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db locked"))
		r := NewRanker(embedder, store, 0)
		_, err := r.Retrieve(context.Background(), "q", 4, 0.3, QueryOptions{})
		require.Error(t, err)
	})
}

func TestFormatContext(t *testing.T) {
	t.Run("renders header and relevance per fragment", func(t *testing.T) {
		res := RetrievalResult{Fragments: []ScoredFragment{
			{Fragment: Fragment{ID: "f1", Section: "3.2 浪形结构", Page: 12, Category: CategoryRule, Content: "推动浪由五浪构成。"}, Score: 0.87},
			{Fragment: Fragment{ID: "f2", Section: "附录A", Page: 201, Category: CategoryDefinition, Content: "术语定义。"}, Score: 0.5},
		}}
		out := FormatContext(res)
		assert.Contains(t, out, "【3.2 浪形结构】(第12页, rule) 相关度 87%")
		assert.Contains(t, out, "推动浪由五浪构成。")
		assert.Contains(t, out, "【附录A】(第201页, definition) 相关度 50%")
	})

	t.Run("empty result returns placeholder", func(t *testing.T) {
		assert.Equal(t, EmptyContextPlaceholder, FormatContext(RetrievalResult{}))
	})
}
