package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/m3n89t-max/-chatbot/internal/knowledge"
)

func sampleResult() knowledge.RetrievalResult {
	return knowledge.RetrievalResult{Fragments: []knowledge.ScoredFragment{
		{
			Fragment: knowledge.Fragment{
				ID:         "frag-1",
				DocumentID: "doc-1",
				Category:   knowledge.CategoryRule,
				Content:    "第3浪不能是最短的驱动浪",
				Embedding:  []float32{0.1, 0.2},
			},
			Score: 0.91,
		},
	}}
}

func TestKnowledgeSearchModes(t *testing.T) {
	t.Run("默认走向量检索并带上过滤项", func(t *testing.T) {
		ret := new(mockRetriever)
		ret.On("Retrieve", mock.Anything, "第3浪", 5, 0.35, knowledge.QueryOptions{
			Category:          knowledge.CategoryRule,
			PreferredDocument: "doc-1",
		}).Return(sampleResult(), nil)

		h := newTestHandler(t, &Router{
			Engine:          new(mockRunner),
			Retriever:       ret,
			SearchTopK:      5,
			SearchThreshold: 0.35,
		})
		w := doRequest(h, http.MethodGet, "/api/v1/knowledge/search?query=第3浪&category=rule&document_id=doc-1", "")

		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Equal(t, int64(1), gjson.Get(body, "count").Int())
		assert.Equal(t, "frag-1", gjson.Get(body, "fragments.0.id").String())
		assert.Equal(t, 0.91, gjson.Get(body, "fragments.0.score").Float())
		// 原始向量不该出现在响应里
		assert.False(t, gjson.Get(body, "fragments.0.embedding").Exists())
		assert.True(t, gjson.Get(body, "fragments.0.has_embedding").Bool())
		ret.AssertExpectations(t)
	})

	t.Run("priority 模式分发到优先检索", func(t *testing.T) {
		ret := new(mockRetriever)
		ret.On("RetrievePriority", mock.Anything, "第3浪", 8, 0.35).Return(sampleResult(), nil)

		h := newTestHandler(t, &Router{Engine: new(mockRunner), Retriever: ret, SearchTopK: 5, SearchThreshold: 0.35})
		w := doRequest(h, http.MethodGet, "/api/v1/knowledge/search?query=第3浪&mode=priority&top_k=8", "")

		require.Equal(t, http.StatusOK, w.Code)
		ret.AssertExpectations(t)
	})

	t.Run("hybrid 模式分发到混合检索", func(t *testing.T) {
		ret := new(mockRetriever)
		ret.On("RetrieveHybrid", mock.Anything, "第3浪", 5, 0.35).Return(sampleResult(), nil)

		h := newTestHandler(t, &Router{Engine: new(mockRunner), Retriever: ret, SearchTopK: 5, SearchThreshold: 0.35})
		w := doRequest(h, http.MethodGet, "/api/v1/knowledge/search?query=第3浪&mode=hybrid", "")

		require.Equal(t, http.StatusOK, w.Code)
		ret.AssertExpectations(t)
	})

	t.Run("document 模式缺 document_id 返回 400", func(t *testing.T) {
		ret := new(mockRetriever)
		h := newTestHandler(t, &Router{Engine: new(mockRunner), Retriever: ret})
		w := doRequest(h, http.MethodGet, "/api/v1/knowledge/search?query=第3浪&mode=document", "")
		require.Equal(t, http.StatusBadRequest, w.Code)
		ret.AssertNotCalled(t, "RetrieveByDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("未知 mode 返回 400", func(t *testing.T) {
		h := newTestHandler(t, &Router{Engine: new(mockRunner), Retriever: new(mockRetriever)})
		w := doRequest(h, http.MethodGet, "/api/v1/knowledge/search?query=第3浪&mode=magic", "")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("未知 category 返回 400", func(t *testing.T) {
		h := newTestHandler(t, &Router{Engine: new(mockRunner), Retriever: new(mockRetriever)})
		w := doRequest(h, http.MethodGet, "/api/v1/knowledge/search?query=第3浪&category=folklore", "")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("query 为空返回 400", func(t *testing.T) {
		h := newTestHandler(t, &Router{Engine: new(mockRunner), Retriever: new(mockRetriever)})
		w := doRequest(h, http.MethodGet, "/api/v1/knowledge/search?query=", "")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIngestDocument(t *testing.T) {
	t.Run("缺向量的片段由服务端补算", func(t *testing.T) {
		store := new(mockKnowledge)
		embedder := new(mockEmbedder)
		embedder.On("Embed", mock.Anything, "第5浪的终点常有背离").Return([]float32{0.3, 0.4}, nil)
		store.On("UpsertDocument", mock.Anything, mock.MatchedBy(func(d knowledge.Document) bool {
			return d.ID == "doc-1" && d.Name == "波浪原理手册"
		})).Return(nil)
		store.On("UpsertFragments", mock.Anything, mock.MatchedBy(func(frags []knowledge.Fragment) bool {
			if len(frags) != 2 {
				return false
			}
			// 自带向量的片段不重算，缺向量的用补算结果
			return len(frags[0].Embedding) == 2 && frags[0].Embedding[0] == 0.1 &&
				len(frags[1].Embedding) == 2 && frags[1].Embedding[0] == 0.3 &&
				frags[1].ID != ""
		})).Return(nil)

		h := newTestHandler(t, &Router{Engine: new(mockRunner), Knowledge: store, Embedder: embedder})
		w := doRequest(h, http.MethodPost, "/api/v1/documents", `{
			"document": {"id": "doc-1", "name": "波浪原理手册"},
			"fragments": [
				{"id": "frag-1", "category": "rule", "content": "第3浪不能最短", "embedding": [0.1, 0.2]},
				{"category": "definition", "content": "第5浪的终点常有背离"}
			]
		}`)

		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Equal(t, "doc-1", gjson.Get(body, "document_id").String())
		assert.Equal(t, int64(2), gjson.Get(body, "fragment_count").Int())
		embedder.AssertNumberOfCalls(t, "Embed", 1)
		store.AssertExpectations(t)
	})

	t.Run("未知类别返回 400", func(t *testing.T) {
		store := new(mockKnowledge)
		h := newTestHandler(t, &Router{Engine: new(mockRunner), Knowledge: store})
		w := doRequest(h, http.MethodPost, "/api/v1/documents", `{
			"document": {"name": "手册"},
			"fragments": [{"category": "myth", "content": "x"}]
		}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		store.AssertNotCalled(t, "UpsertDocument", mock.Anything, mock.Anything)
	})

	t.Run("缺文档名返回 400", func(t *testing.T) {
		h := newTestHandler(t, &Router{Engine: new(mockRunner), Knowledge: new(mockKnowledge)})
		w := doRequest(h, http.MethodPost, "/api/v1/documents", `{"fragments":[{"category":"rule","content":"x"}]}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("向量化失败返回 500", func(t *testing.T) {
		store := new(mockKnowledge)
		embedder := new(mockEmbedder)
		embedder.On("Embed", mock.Anything, mock.Anything).Return(nil, assert.AnError)

		h := newTestHandler(t, &Router{Engine: new(mockRunner), Knowledge: store, Embedder: embedder})
		w := doRequest(h, http.MethodPost, "/api/v1/documents", `{
			"document": {"name": "手册"},
			"fragments": [{"category": "rule", "content": "x"}]
		}`)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		store.AssertNotCalled(t, "UpsertFragments", mock.Anything, mock.Anything)
	})
}

func TestDocumentLifecycleEndpoints(t *testing.T) {
	t.Run("详情带片段列表", func(t *testing.T) {
		store := new(mockKnowledge)
		store.On("GetDocument", mock.Anything, "doc-1").
			Return(knowledge.Document{ID: "doc-1", Name: "手册", FragmentCount: 1}, true, nil)
		store.On("ListFragmentsByDocument", mock.Anything, "doc-1").
			Return([]knowledge.Fragment{{ID: "frag-1", DocumentID: "doc-1", Category: knowledge.CategoryRule, Content: "x"}}, nil)

		h := newTestHandler(t, &Router{Engine: new(mockRunner), Knowledge: store})
		w := doRequest(h, http.MethodGet, "/api/v1/documents/doc-1", "")

		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Equal(t, "手册", gjson.Get(body, "document.name").String())
		assert.Equal(t, "frag-1", gjson.Get(body, "fragments.0.id").String())
	})

	t.Run("不存在返回 404", func(t *testing.T) {
		store := new(mockKnowledge)
		store.On("GetDocument", mock.Anything, "ghost").Return(knowledge.Document{}, false, nil)

		h := newTestHandler(t, &Router{Engine: new(mockRunner), Knowledge: store})
		w := doRequest(h, http.MethodGet, "/api/v1/documents/ghost", "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("删除透传到存储层", func(t *testing.T) {
		store := new(mockKnowledge)
		store.On("DeleteDocument", mock.Anything, "doc-1").Return(nil)

		h := newTestHandler(t, &Router{Engine: new(mockRunner), Knowledge: store})
		w := doRequest(h, http.MethodDelete, "/api/v1/documents/doc-1", "")

		require.Equal(t, http.StatusOK, w.Code)
		store.AssertExpectations(t)
	})
}
