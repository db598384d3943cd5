package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/m3n89t-max/-chatbot/internal/knowledge"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FragmentsWithEmbeddings(ctx context.Context) ([]knowledge.Fragment, error) {
	args := m.Called(ctx)
	return args.Get(0).([]knowledge.Fragment), args.Error(1)
}

func (m *mockSource) SearchFragmentContent(ctx context.Context, tokens []string, limit int) ([]knowledge.Fragment, error) {
	args := m.Called(ctx, tokens, limit)
	return args.Get(0).([]knowledge.Fragment), args.Error(1)
}

func frag(id string, embedding []float32) knowledge.Fragment {
	return knowledge.Fragment{
		ID:         id,
		DocumentID: "doc-1",
		Category:   knowledge.CategoryRule,
		Section:    "3.2 浪形结构",
		Page:       12,
		Content:    "第三浪不可以是最短的一浪",
		Embedding:  embedding,
	}
}

func TestNearestOrdersByCosine(t *testing.T) {
	source := new(mockSource)
	source.On("FragmentsWithEmbeddings", mock.Anything).Return([]knowledge.Fragment{
		frag("f-exact", []float32{1, 0, 0}),
		frag("f-close", []float32{0.9, 0.1, 0}),
		frag("f-orthogonal", []float32{0, 1, 0}),
		frag("f-dim-mismatch", []float32{1, 0}),
	}, nil)

	store, err := NewGormVectorStore(source)
	require.NoError(t, err)

	got, err := store.Nearest(context.Background(), []float32{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "低于阈值与维度不符的都该被剔除")
	assert.Equal(t, "f-exact", got[0].Fragment.ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, "f-close", got[1].Fragment.ID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestNearestTruncatesToLimit(t *testing.T) {
	source := new(mockSource)
	source.On("FragmentsWithEmbeddings", mock.Anything).Return([]knowledge.Fragment{
		frag("f-1", []float32{1, 0}),
		frag("f-2", []float32{0.9, 0.1}),
		frag("f-3", []float32{0.8, 0.2}),
	}, nil)

	store, err := NewGormVectorStore(source)
	require.NoError(t, err)

	got, err := store.Nearest(context.Background(), []float32{1, 0}, 0, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestNearestRejectsEmptyQueryVector(t *testing.T) {
	store, err := NewGormVectorStore(new(mockSource))
	require.NoError(t, err)
	_, err = store.Nearest(context.Background(), nil, 0.5, 10)
	require.Error(t, err)
}

func TestTextMatchTokenizesQuery(t *testing.T) {
	source := new(mockSource)
	expected := []knowledge.Fragment{frag("f-1", nil)}
	source.On("SearchFragmentContent", mock.Anything, mock.MatchedBy(func(tokens []string) bool {
		for _, tok := range tokens {
			if tok == "三浪" {
				return true
			}
		}
		return false
	}), 5).Return(expected, nil)

	store, err := NewGormVectorStore(source)
	require.NoError(t, err)

	got, err := store.TextMatch(context.Background(), "第三浪可以延长吗", 5)
	require.NoError(t, err)
	assert.Equal(t, expected, got)
	source.AssertExpectations(t)
}

func TestTextMatchEmptyQueryReturnsNothing(t *testing.T) {
	source := new(mockSource)
	store, err := NewGormVectorStore(source)
	require.NoError(t, err)

	got, err := store.TextMatch(context.Background(), "  ", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	source.AssertNotCalled(t, "SearchFragmentContent", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewGormVectorStoreRejectsNilSource(t *testing.T) {
	_, err := NewGormVectorStore(nil)
	require.Error(t, err)
}
