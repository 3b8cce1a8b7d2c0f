package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"talent-match/internal/constants"
	"talent-match/internal/logger"

	"github.com/rs/zerolog"
)

// EmbeddingCache 查询向量缓存
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

// CachedEmbedder 为查询向量增加缓存层。缓存读写失败只记录日志，不影响结果。
type CachedEmbedder struct {
	inner  TextEmbedder
	cache  EmbeddingCache
	model  string
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewCachedEmbedder 创建带缓存的向量生成器，cache 为 nil 或 ttl<=0 时直接返回 inner
func NewCachedEmbedder(inner TextEmbedder, cache EmbeddingCache, model string, ttl time.Duration, l *zerolog.Logger) TextEmbedder {
	if cache == nil || ttl <= 0 {
		return inner
	}
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		model:  model,
		ttl:    ttl,
		logger: logger.OrNop(l),
	}
}

// Dimensions 返回底层向量维度
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// EmbedText 优先读取缓存，未命中时调用底层生成器并回写
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := QueryCacheKey(c.model, text)

	vector, ok, err := c.cache.GetEmbedding(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("读取向量缓存失败，直接调用模型")
	} else if ok && len(vector) == c.inner.Dimensions() {
		c.logger.Debug().Str("key", key).Msg("命中向量缓存")
		return vector, nil
	}

	vector, err = c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetEmbedding(ctx, key, vector, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("写入向量缓存失败")
	}
	return vector, nil
}

// QueryCacheKey 计算查询向量缓存键，文本先去掉首尾空白
func QueryCacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return fmt.Sprintf(constants.KeyQueryEmbedding, model, hex.EncodeToString(sum[:]))
}
