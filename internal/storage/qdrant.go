package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"talent-match/internal/config"
	"talent-match/internal/logger"
	"talent-match/internal/tracing"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// 定义Qdrant的专用tracer
var qdrantTracer = otel.Tracer("talent-match/storage/qdrant")

// QdrantPointIDNamespace 生成确定性 point ID 的命名空间。
// 同一个向量ID总是映射到同一个 point ID，重复写入即覆盖。
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("fd6c72c2-5a33-4b53-8e7c-8298f3f5a7e1"))

// PayloadTenantID 租户过滤所用的 payload 字段
const PayloadTenantID = "tenant_id"

// Qdrant 基于 REST API 的向量数据库客户端
type Qdrant struct {
	endpoint       string
	collectionName string
	apiKey         string
	vectorSize     int
	distanceMetric string
	httpClient     *http.Client
	logger         *zerolog.Logger
}

// SearchResult 表示一个搜索结果项
type SearchResult struct {
	PointID string         // Qdrant point ID
	Score   float32        // 相似度分数
	Payload map[string]any // 载荷数据
}

// QdrantOption 定义Qdrant构造函数选项
type QdrantOption func(*Qdrant)

// WithHttpTimeout 设置HTTP客户端超时
func WithHttpTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// WithHTTPClient 替换底层HTTP客户端
func WithHTTPClient(c *http.Client) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = c
	}
}

// NewQdrant 创建Qdrant客户端，确保集合与租户索引存在
func NewQdrant(ctx context.Context, cfg *config.QdrantConfig, l *zerolog.Logger, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("qdrant endpoint 未配置")
	}

	collectionName := cfg.Collection
	if collectionName == "" {
		collectionName = "talent_pool"
	}
	vectorSize := cfg.Dimension
	if vectorSize <= 0 {
		vectorSize = 384
	}
	distance := cfg.DistanceMetric
	if distance == "" {
		distance = "Cosine"
	}

	q := &Qdrant{
		endpoint:       strings.TrimRight(cfg.Endpoint, "/"),
		collectionName: collectionName,
		apiKey:         cfg.APIKey,
		vectorSize:     vectorSize,
		distanceMetric: distance,
		httpClient:     &http.Client{Timeout: config.GetDuration(cfg.Timeout, 30*time.Second)},
		logger:         logger.OrNop(l),
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.ensureCollectionExists(ctx); err != nil {
		return nil, fmt.Errorf("确保集合 '%s' 存在失败: %w", collectionName, err)
	}
	if err := q.ensurePayloadIndex(ctx, PayloadTenantID); err != nil {
		return nil, fmt.Errorf("创建 %s 索引失败: %w", PayloadTenantID, err)
	}

	q.logger.Info().Str("endpoint", q.endpoint).Str("collection", collectionName).Int("dimension", vectorSize).Msg("成功连接到Qdrant服务器")
	return q, nil
}

// Dimension 返回集合的向量维度
func (q *Qdrant) Dimension() int {
	return q.vectorSize
}

// PointID 把业务向量ID映射为确定性的 UUIDv5 point ID
func PointID(vectorID string) string {
	return uuid.NewV5(QdrantPointIDNamespace, vectorID).String()
}

// ensureCollectionExists 确保向量集合存在
func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.EnsureCollectionExists",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
	)

	var collectionInfo struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	status, err := q.doRequest(ctx, http.MethodGet, "/collections/"+q.collectionName, nil, &collectionInfo)
	if status == http.StatusNotFound {
		span.AddEvent("collection_not_found")
		q.logger.Info().Str("collection", q.collectionName).Msg("集合不存在，将创建新集合")
		return q.createCollection(ctx)
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	existingSize := collectionInfo.Result.Config.Params.Vectors.Size
	existingDistance := collectionInfo.Result.Config.Params.Vectors.Distance
	if existingSize != q.vectorSize || !strings.EqualFold(existingDistance, q.distanceMetric) {
		q.logger.Warn().
			Int("existing_size", existingSize).
			Str("existing_distance", existingDistance).
			Int("expected_size", q.vectorSize).
			Str("expected_distance", q.distanceMetric).
			Msg("现有集合配置与当前配置不匹配")
		span.AddEvent("collection_config_mismatch")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// createCollection 创建新的向量集合
func (q *Qdrant) createCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.vectorSize,
			"distance": q.distanceMetric,
		},
	}
	if _, err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collectionName, body, nil); err != nil {
		return fmt.Errorf("创建集合失败: %w", err)
	}
	q.logger.Info().Str("collection", q.collectionName).Int("dimension", q.vectorSize).Msg("已成功创建Qdrant集合")
	return nil
}

// ensurePayloadIndex 为 payload 字段建立 keyword 索引，已存在时 Qdrant 直接返回成功
func (q *Qdrant) ensurePayloadIndex(ctx context.Context, field string) error {
	body := map[string]any{
		"field_name":   field,
		"field_schema": "keyword",
	}
	_, err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/index?wait=true", q.collectionName), body, nil)
	return err
}

// UpsertPoint 写入或覆盖一个向量点，返回 point ID
func (q *Qdrant) UpsertPoint(ctx context.Context, vectorID string, vector []float32, payload map[string]any) (string, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.UpsertPoint",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.collection", q.collectionName),
		attribute.String("vector.id", vectorID),
	)

	if len(vector) != q.vectorSize {
		err := fmt.Errorf("向量维度(%d)与配置维度(%d)不匹配", len(vector), q.vectorSize)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return "", err
	}

	pointID := PointID(vectorID)
	body := map[string]any{
		"points": []map[string]any{
			{
				"id":      pointID,
				"vector":  vector,
				"payload": payload,
			},
		},
	}
	if _, err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName), body, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return "", err
	}

	span.SetStatus(codes.Ok, "")
	return pointID, nil
}

// Search 在租户范围内检索相似向量，结果按分数降序
func (q *Qdrant) Search(ctx context.Context, vector []float32, limit int, tenantID string) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Search",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.collection", q.collectionName),
		attribute.Int("search.limit", limit),
		attribute.String("search.tenant_id", tenantID),
	)

	if len(vector) != q.vectorSize {
		err := fmt.Errorf("查询向量维度(%d)与配置维度(%d)不匹配", len(vector), q.vectorSize)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	searchReq := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   PayloadTenantID,
					"match": map[string]any{"value": tenantID},
				},
			},
		},
	}

	var result struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collectionName), searchReq, &result); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	searchResults := make([]SearchResult, 0, len(result.Result))
	for _, point := range result.Result {
		searchResults = append(searchResults, SearchResult{
			PointID: fmt.Sprint(point.ID),
			Score:   point.Score,
			Payload: point.Payload,
		})
	}

	span.SetAttributes(attribute.Int("search.results.count", len(searchResults)))
	span.SetStatus(codes.Ok, "")
	return searchResults, nil
}

// DeletePoints 删除指定ID的向量点，不存在的ID不会报错
func (q *Qdrant) DeletePoints(ctx context.Context, pointIDs []string) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.DeletePoints",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.collection", q.collectionName),
		attribute.Int("points.count", len(pointIDs)),
	)

	if len(pointIDs) == 0 {
		return nil
	}

	body := map[string]any{"points": pointIDs}
	if _, err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collectionName), body, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// CountPoints 获取集合中的点数量
func (q *Qdrant) CountPoints(ctx context.Context) (int64, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CountPoints",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var result struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if _, err := q.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", q.collectionName), map[string]any{"exact": true}, &result); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, err
	}

	span.SetAttributes(attribute.Int64("qdrant.points.count", result.Result.Count))
	return result.Result.Count, nil
}

// doRequest 发送请求并解析 JSON 响应，返回 HTTP 状态码（请求未发出时为 0）
func (q *Qdrant) doRequest(ctx context.Context, method, path string, body any, result any) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
	)

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return 0, err
		}
		reader = bytes.NewReader(jsonBody)
		span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, reader)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	// 注入trace context
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return 0, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return resp.StatusCode, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("qdrant API error: status=%d, body=%s", resp.StatusCode, tracing.TruncateString(string(respBody), 512))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return resp.StatusCode, err
	}

	if result != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return resp.StatusCode, err
		}
	}

	span.SetStatus(codes.Ok, "")
	return resp.StatusCode, nil
}
