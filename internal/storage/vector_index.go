package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"talent-match/internal/config"
	"talent-match/internal/logger"
	"talent-match/internal/types"

	"github.com/rs/zerolog"
)

// VectorMetadata 随向量一起存储的候选人元数据
type VectorMetadata struct {
	TenantID string   `json:"tenant_id"`
	JobID    uint64   `json:"job_id"`
	Name     string   `json:"name"`
	Skills   []string `json:"skills"`
}

// VectorFilter 检索过滤条件，TenantID 必填
type VectorFilter struct {
	TenantID string
}

// VectorMatch 一条检索命中
type VectorMatch struct {
	ID       string
	Score    float32
	Metadata VectorMetadata
}

// IndexStats 索引统计信息
type IndexStats struct {
	Enabled      bool  `json:"enabled"`
	TotalVectors int64 `json:"total_vectors"`
	Dimension    int   `json:"dimension"`
}

// VectorIndex 按租户隔离的向量索引
type VectorIndex interface {
	// Upsert 写入或覆盖向量，失败时返回 false，不返回错误
	Upsert(ctx context.Context, id string, vector []float32, meta VectorMetadata) bool
	// Query 返回按相似度降序排列的命中
	Query(ctx context.Context, vector []float32, topK int, filter VectorFilter) ([]VectorMatch, error)
	// Delete 删除向量，不存在时不报错
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) IndexStats
	Enabled() bool
}

// NewVectorIndex 根据配置创建向量索引。
// 未配置 Qdrant 或启动时无法连接则返回 DisabledIndex。
func NewVectorIndex(ctx context.Context, cfg *config.QdrantConfig, l *zerolog.Logger, opts ...QdrantOption) VectorIndex {
	l = logger.OrNop(l)
	if cfg == nil || cfg.Endpoint == "" {
		l.Warn().Msg("未配置 Qdrant，向量检索已禁用")
		return NewDisabledIndex(dimensionOf(cfg))
	}

	q, err := NewQdrant(ctx, cfg, l, opts...)
	if err != nil {
		l.Error().Err(err).Str("endpoint", cfg.Endpoint).Msg("连接 Qdrant 失败，向量检索已禁用")
		return NewDisabledIndex(dimensionOf(cfg))
	}
	return NewEnabledIndex(q, l)
}

func dimensionOf(cfg *config.QdrantConfig) int {
	if cfg == nil || cfg.Dimension <= 0 {
		return 384
	}
	return cfg.Dimension
}

// EnabledIndex 由 Qdrant 支撑的向量索引
type EnabledIndex struct {
	qdrant *Qdrant
	logger *zerolog.Logger
}

// NewEnabledIndex 包装一个已初始化的 Qdrant 客户端
func NewEnabledIndex(q *Qdrant, l *zerolog.Logger) *EnabledIndex {
	return &EnabledIndex{qdrant: q, logger: logger.OrNop(l)}
}

// Upsert 实现 VectorIndex 接口
func (e *EnabledIndex) Upsert(ctx context.Context, id string, vector []float32, meta VectorMetadata) bool {
	skills := meta.Skills
	if skills == nil {
		skills = []string{}
	}
	payload := map[string]any{
		"vector_id":     id,
		PayloadTenantID: meta.TenantID,
		"job_id":        meta.JobID,
		"name":          meta.Name,
		"skills":        skills,
	}
	if _, err := e.qdrant.UpsertPoint(ctx, id, vector, payload); err != nil {
		e.logger.Error().Err(err).Str("vector_id", id).Msg("写入向量失败")
		return false
	}
	return true
}

// Query 实现 VectorIndex 接口
func (e *EnabledIndex) Query(ctx context.Context, vector []float32, topK int, filter VectorFilter) ([]VectorMatch, error) {
	if filter.TenantID == "" {
		return nil, fmt.Errorf("%w: 检索必须指定租户", types.ErrTenantMismatch)
	}
	if topK <= 0 {
		return []VectorMatch{}, nil
	}

	results, err := e.qdrant.Search(ctx, vector, topK, filter.TenantID)
	if err != nil {
		return nil, err
	}

	matches := make([]VectorMatch, 0, len(results))
	for _, r := range results {
		meta := metadataFromPayload(r.Payload)
		// 服务端已按租户过滤，这里再校验一次 payload
		if meta.TenantID != filter.TenantID {
			e.logger.Warn().Str("point_id", r.PointID).Str("tenant_id", meta.TenantID).Msg("检索结果租户不匹配，已丢弃")
			continue
		}
		id, _ := r.Payload["vector_id"].(string)
		if id == "" {
			id = r.PointID
		}
		matches = append(matches, VectorMatch{ID: id, Score: r.Score, Metadata: meta})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}

// Delete 实现 VectorIndex 接口
func (e *EnabledIndex) Delete(ctx context.Context, id string) error {
	return e.qdrant.DeletePoints(ctx, []string{PointID(id)})
}

// Stats 实现 VectorIndex 接口，计数失败时 TotalVectors 为 0
func (e *EnabledIndex) Stats(ctx context.Context) IndexStats {
	count, err := e.qdrant.CountPoints(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("获取向量数量失败")
	}
	return IndexStats{Enabled: true, TotalVectors: count, Dimension: e.qdrant.Dimension()}
}

// Enabled 实现 VectorIndex 接口
func (e *EnabledIndex) Enabled() bool { return true }

func metadataFromPayload(p map[string]any) VectorMetadata {
	var meta VectorMetadata
	meta.TenantID, _ = p[PayloadTenantID].(string)
	meta.Name, _ = p["name"].(string)
	meta.JobID = payloadUint(p["job_id"])
	if raw, ok := p["skills"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				meta.Skills = append(meta.Skills, str)
			}
		}
	}
	return meta
}

// DisabledIndex 向量检索不可用时的空实现
type DisabledIndex struct {
	dimension int
}

// NewDisabledIndex 创建禁用状态的索引
func NewDisabledIndex(dimension int) *DisabledIndex {
	return &DisabledIndex{dimension: dimension}
}

// Upsert 总是返回 false
func (DisabledIndex) Upsert(context.Context, string, []float32, VectorMetadata) bool { return false }

// Query 总是返回空结果
func (DisabledIndex) Query(context.Context, []float32, int, VectorFilter) ([]VectorMatch, error) {
	return []VectorMatch{}, nil
}

// Delete 空操作
func (DisabledIndex) Delete(context.Context, string) error { return nil }

// Stats 返回禁用状态
func (d DisabledIndex) Stats(context.Context) IndexStats {
	return IndexStats{Enabled: false, TotalVectors: 0, Dimension: d.dimension}
}

// Enabled 总是返回 false
func (DisabledIndex) Enabled() bool { return false }

// payloadUint 兼容 float64、整数、json.Number 与数字字符串，其他类型或负数返回 0
func payloadUint(v any) uint64 {
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return uint64(n)
		}
	case int:
		if n > 0 {
			return uint64(n)
		}
	case int64:
		if n > 0 {
			return uint64(n)
		}
	case uint64:
		return n
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u
		}
		if f, err := n.Float64(); err == nil && f > 0 {
			return uint64(f)
		}
	case string:
		if u, err := strconv.ParseUint(n, 10, 64); err == nil {
			return u
		}
	}
	return 0
}
