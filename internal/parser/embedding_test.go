package parser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"talent-match/internal/config"
	"talent-match/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingItem struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// newEmbeddingServer 按输入顺序的逆序返回向量，第 i 条文本的向量为 [i, i, i]
func newEmbeddingServer(t *testing.T, dims int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions *int     `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Nil(t, req.Dimensions, "默认不应发送 dimensions 参数")

		items := make([]embeddingItem, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float64, dims)
			for j := range vec {
				vec[j] = float64(i)
			}
			items = append(items, embeddingItem{Object: "embedding", Index: i, Embedding: vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   items,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func newTestEmbedder(t *testing.T, baseURL string, dims int) *OpenAIEmbedder {
	t.Helper()
	e, err := NewOpenAIEmbedder(config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Model:      "all-MiniLM-L6-v2",
		Dimensions: dims,
		Timeout:    "5s",
	})
	require.NoError(t, err)
	return e
}

func TestOpenAIEmbedderPreservesOrder(t *testing.T) {
	var calls int32
	server := newEmbeddingServer(t, 3, &calls)
	defer server.Close()

	embedder := newTestEmbedder(t, server.URL, 3)
	vectors, err := embedder.EmbedStrings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, []float64{float64(i), float64(i), float64(i)}, v, "第 %d 条向量顺序错误", i)
	}

	single, err := embedder.EmbedText(context.Background(), "  go engineer ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, single)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIEmbedderDimensionMismatch(t *testing.T) {
	var calls int32
	server := newEmbeddingServer(t, 4, &calls)
	defer server.Close()

	embedder := newTestEmbedder(t, server.URL, 3)
	_, err := embedder.EmbedText(context.Background(), "query")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbedding)
}

func TestOpenAIEmbedderServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	embedder := newTestEmbedder(t, server.URL, 3)
	_, err := embedder.EmbedText(context.Background(), "query")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbedding)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "不应自动重试")
}

func TestOpenAIEmbedderEmptyText(t *testing.T) {
	embedder := newTestEmbedder(t, "http://127.0.0.1:1", 3)
	_, err := embedder.EmbedText(context.Background(), "   ")
	assert.ErrorIs(t, err, types.ErrEmbedding)

	vectors, err := embedder.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestNewOpenAIEmbedderValidation(t *testing.T) {
	_, err := NewOpenAIEmbedder(config.EmbeddingConfig{Dimensions: 384})
	assert.Error(t, err, "缺少API密钥时应返回错误")

	_, err = NewOpenAIEmbedder(config.EmbeddingConfig{APIKey: "k"})
	assert.Error(t, err, "维度为0时应返回错误")
}

func TestBuildCandidateEmbeddingText(t *testing.T) {
	profile := &types.CandidateProfile{
		Name:    "Jane Doe",
		Summary: "Backend engineer.",
		Skills:  []string{"Go", "Redis"},
	}
	text := BuildCandidateEmbeddingText(profile, "Resume body that is long", 6)
	assert.Equal(t, "Jane Doe\nBackend engineer.\nSkills: Go, Redis\nResume", text)
}

type fakeEmbedder struct {
	calls int32
	dims  int
	err   error
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dims), nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]float32
	ttls    map[string]time.Duration
	failGet bool
	failSet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]float32{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, false, errors.New("redis down")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) SetEmbedding(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("redis down")
	}
	m.data[key] = vector
	m.ttls[key] = ttl
	return nil
}

func TestCachedEmbedderHitAndMiss(t *testing.T) {
	inner := &fakeEmbedder{dims: 3}
	cache := newMemoryCache()
	embedder := NewCachedEmbedder(inner, cache, "mini", time.Hour, nil)

	_, err := embedder.EmbedText(context.Background(), "golang engineer")
	require.NoError(t, err)
	_, err = embedder.EmbedText(context.Background(), " golang engineer ")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls), "第二次应命中缓存")
	assert.Equal(t, time.Hour, cache.ttls[QueryCacheKey("mini", "golang engineer")])
	assert.Equal(t, 3, embedder.Dimensions())
}

func TestCachedEmbedderBypassesFailingCache(t *testing.T) {
	inner := &fakeEmbedder{dims: 3}
	cache := newMemoryCache()
	cache.failGet = true
	cache.failSet = true
	embedder := NewCachedEmbedder(inner, cache, "mini", time.Hour, nil)

	for i := 0; i < 2; i++ {
		v, err := embedder.EmbedText(context.Background(), "query")
		require.NoError(t, err, "缓存故障不应影响结果")
		assert.Len(t, v, 3)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
}

func TestCachedEmbedderPropagatesInnerError(t *testing.T) {
	inner := &fakeEmbedder{dims: 3, err: types.ErrEmbedding}
	embedder := NewCachedEmbedder(inner, newMemoryCache(), "mini", time.Hour, nil)
	_, err := embedder.EmbedText(context.Background(), "query")
	assert.ErrorIs(t, err, types.ErrEmbedding)
}

func TestNewCachedEmbedderWithoutCache(t *testing.T) {
	inner := &fakeEmbedder{dims: 3}
	assert.Same(t, inner, NewCachedEmbedder(inner, nil, "mini", time.Hour, nil).(*fakeEmbedder))
	assert.Same(t, inner, NewCachedEmbedder(inner, newMemoryCache(), "mini", 0, nil).(*fakeEmbedder))
	assert.Equal(t, "app:embedding:query:mini:", QueryCacheKey("mini", "x")[:len("app:embedding:query:mini:")])
}
