package storage

import (
	"encoding/json"
	"strings"
	"testing"

	"talent-match/internal/config"
	"talent-match/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) (*fakeQdrant, VectorIndex) {
	t.Helper()
	fake, srv := newFakeQdrant(t, "test_pool")
	idx := NewVectorIndex(t.Context(), testQdrantConfig(srv.URL), nil)
	require.True(t, idx.Enabled(), "可连接时应返回启用状态的索引")
	return fake, idx
}

func TestNewVectorIndexDisabledWithoutEndpoint(t *testing.T) {
	idx := NewVectorIndex(t.Context(), &config.QdrantConfig{Dimension: 384}, nil)

	assert.False(t, idx.Enabled())
	assert.IsType(t, &DisabledIndex{}, idx)
	assert.Equal(t, IndexStats{Enabled: false, TotalVectors: 0, Dimension: 384}, idx.Stats(t.Context()))
}

func TestNewVectorIndexDisabledWhenUnreachable(t *testing.T) {
	cfg := testQdrantConfig("http://127.0.0.1:1")
	cfg.Timeout = "200ms"

	idx := NewVectorIndex(t.Context(), cfg, nil)
	assert.False(t, idx.Enabled(), "启动时无法连接应降级为禁用")
}

func TestDisabledIndexIsInert(t *testing.T) {
	idx := NewDisabledIndex(384)

	assert.False(t, idx.Upsert(t.Context(), "candidate_1", make([]float32, 384), VectorMetadata{TenantID: "acme"}))
	matches, err := idx.Query(t.Context(), make([]float32, 384), 10, VectorFilter{TenantID: "acme"})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NotNil(t, matches, "禁用状态应返回空切片而不是 nil")
	assert.NoError(t, idx.Delete(t.Context(), "candidate_1"))
}

func TestEnabledIndexTenantIsolation(t *testing.T) {
	_, idx := newTestIndex(t)
	ctx := t.Context()

	require.True(t, idx.Upsert(ctx, "candidate_1", []float32{1, 0, 0, 0}, VectorMetadata{TenantID: "acme", JobID: 7, Name: "Alice", Skills: []string{"Go"}}))
	require.True(t, idx.Upsert(ctx, "candidate_2", []float32{1, 0, 0, 0}, VectorMetadata{TenantID: "globex", JobID: 9, Name: "Bob"}))

	matches, err := idx.Query(ctx, []float32{1, 0, 0, 0}, 10, VectorFilter{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, matches, 1, "只能查到本租户的向量")
	assert.Equal(t, "candidate_1", matches[0].ID)
	assert.Equal(t, VectorMetadata{TenantID: "acme", JobID: 7, Name: "Alice", Skills: []string{"Go"}}, matches[0].Metadata)
}

func TestEnabledIndexRequiresTenant(t *testing.T) {
	fake, idx := newTestIndex(t)

	_, err := idx.Query(t.Context(), []float32{1, 0, 0, 0}, 10, VectorFilter{})
	require.ErrorIs(t, err, types.ErrTenantMismatch)
	assert.Zero(t, fake.searchCalls, "缺少租户时不应发出检索请求")
}

func TestEnabledIndexUpsertIsIdempotent(t *testing.T) {
	fake, idx := newTestIndex(t)
	ctx := t.Context()
	meta := VectorMetadata{TenantID: "acme", JobID: 1, Name: "Alice"}

	require.True(t, idx.Upsert(ctx, "candidate_1", []float32{1, 0, 0, 0}, meta))
	require.True(t, idx.Upsert(ctx, "candidate_1", []float32{0, 1, 0, 0}, meta))

	assert.Len(t, fake.points, 1, "重复写入同一ID不应产生新点")
	assert.Equal(t, int64(1), idx.Stats(ctx).TotalVectors)

	matches, err := idx.Query(ctx, []float32{0, 1, 0, 0}, 10, VectorFilter{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6, "第二次写入应覆盖旧向量")
}

func TestEnabledIndexQueryOrderAndTopK(t *testing.T) {
	_, idx := newTestIndex(t)
	ctx := t.Context()
	meta := VectorMetadata{TenantID: "acme"}

	idx.Upsert(ctx, "candidate_1", []float32{1, 0, 0, 0}, meta)
	idx.Upsert(ctx, "candidate_2", []float32{1, 1, 0, 0}, meta)
	idx.Upsert(ctx, "candidate_3", []float32{0, 1, 0, 0}, meta)

	matches, err := idx.Query(ctx, []float32{1, 0.1, 0, 0}, 2, VectorFilter{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "candidate_1", matches[0].ID)
	assert.Equal(t, "candidate_2", matches[1].ID)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score, "结果应按相似度降序")
}

func TestEnabledIndexDelete(t *testing.T) {
	_, idx := newTestIndex(t)
	ctx := t.Context()

	idx.Upsert(ctx, "candidate_1", []float32{1, 0, 0, 0}, VectorMetadata{TenantID: "acme"})
	require.NoError(t, idx.Delete(ctx, "candidate_1"))

	matches, err := idx.Query(ctx, []float32{1, 0, 0, 0}, 10, VectorFilter{TenantID: "acme"})
	require.NoError(t, err)
	assert.Empty(t, matches, "删除后不应再被检索到")

	assert.NoError(t, idx.Delete(ctx, "candidate_404"), "删除不存在的ID不应报错")
}

func TestEnabledIndexUpsertFailureReturnsFalse(t *testing.T) {
	_, idx := newTestIndex(t)
	assert.False(t, idx.Upsert(t.Context(), "candidate_1", []float32{1, 0}, VectorMetadata{TenantID: "acme"}), "维度错误时应返回 false")
}

func TestEnabledIndexQueryFailure(t *testing.T) {
	fake, idx := newTestIndex(t)
	fake.failSearch = true

	_, err := idx.Query(t.Context(), []float32{1, 0, 0, 0}, 10, VectorFilter{TenantID: "acme"})
	require.Error(t, err)
}

func TestMetadataFromPayloadJobID(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want uint64
	}{
		{"float64", float64(42), 42},
		{"int", 42, 42},
		{"int64", int64(42), 42},
		{"uint64", uint64(42), 42},
		{"json.Number", json.Number("42"), 42},
		{"字符串", "42", 42},
		{"负数", float64(-1), 0},
		{"缺失", nil, 0},
		{"非法", "abc", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta := metadataFromPayload(map[string]any{PayloadTenantID: "acme", "job_id": tc.raw})
			assert.Equal(t, tc.want, meta.JobID)
			assert.Equal(t, "acme", meta.TenantID)
		})
	}
}

func TestMetadataFromPayloadUseNumberDecoding(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`{"tenant_id":"acme","job_id":7,"name":"Gus","skills":["Go"]}`))
	dec.UseNumber()
	var payload map[string]any
	require.NoError(t, dec.Decode(&payload))

	meta := metadataFromPayload(payload)
	assert.Equal(t, uint64(7), meta.JobID, "UseNumber 解码的 job_id 不应变为 0")
	assert.Equal(t, []string{"Go"}, meta.Skills)
}
