package processor

import (
	"time"

	"talent-match/internal/config"
	"talent-match/internal/constants"
	"talent-match/internal/storage"

	"github.com/rs/zerolog"
)

// Components 聚合所有功能组件依赖，便于集中管理和测试替换
type Components struct {
	// 核心组件接口
	Extractor    TextExtractor         // 文档文本提取
	Parser       ProfileParser         // 结构化解析
	Scorer       CandidateScorer       // 候选人评分
	Requirements RequirementsExtractor // 职位要求抽取
	Embedder     Embedder              // 简历向量生成
	Query        Embedder              // 查询向量生成，未设置时使用 Embedder

	// 存储层依赖
	Store   RecordStore           // 岗位与候选人记录
	Index   storage.VectorIndex   // 向量索引，启用或禁用
	Archive storage.ResumeArchive // 原始简历归档，可为 nil

	// 出站消息构造，为 nil 时不写入事件
	ScreenedEvent storage.OutboxBuilder
	DeletedEvent  storage.DeleteOutboxBuilder
}

// Settings 纯配置项，不包含任何业务逻辑组件
type Settings struct {
	Concurrency          int           // 同一批次内并发处理的文件数
	FileTimeout          time.Duration // 单个文件处理超时，0 表示不限
	MinTextLength        int           // 提取文本的最小字符数
	MaxFileSize          int64         // 单个文件字节上限，0 表示不限
	EmbeddingResumeChars int           // 向量文本中简历正文的截取长度
	Logger               *zerolog.Logger
}

// ComponentOpt 组件选项类型，仅改变 Components 结构体内的字段
type ComponentOpt func(*Components)

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

// ----- 组件选项 -----

func WithExtractor(e TextExtractor) ComponentOpt {
	return func(c *Components) { c.Extractor = e }
}

func WithParser(p ProfileParser) ComponentOpt {
	return func(c *Components) { c.Parser = p }
}

func WithScorer(s CandidateScorer) ComponentOpt {
	return func(c *Components) { c.Scorer = s }
}

func WithRequirementsExtractor(r RequirementsExtractor) ComponentOpt {
	return func(c *Components) { c.Requirements = r }
}

func WithEmbedder(e Embedder) ComponentOpt {
	return func(c *Components) { c.Embedder = e }
}

// WithQueryEmbedder 单独指定检索查询使用的向量生成器，通常是带缓存的版本
func WithQueryEmbedder(e Embedder) ComponentOpt {
	return func(c *Components) { c.Query = e }
}

func WithStore(s RecordStore) ComponentOpt {
	return func(c *Components) { c.Store = s }
}

func WithVectorIndex(idx storage.VectorIndex) ComponentOpt {
	return func(c *Components) { c.Index = idx }
}

func WithArchive(a storage.ResumeArchive) ComponentOpt {
	return func(c *Components) { c.Archive = a }
}

// WithOutboxEvents 设置候选人筛选与删除事件的构造函数
func WithOutboxEvents(screened storage.OutboxBuilder, deleted storage.DeleteOutboxBuilder) ComponentOpt {
	return func(c *Components) {
		c.ScreenedEvent = screened
		c.DeletedEvent = deleted
	}
}

// WithStorage 从聚合存储中取出记录存储、向量索引、归档与出站消息构造器
func WithStorage(s *storage.Storage, rabbitCfg *config.RabbitMQConfig) ComponentOpt {
	return func(c *Components) {
		if s == nil {
			return
		}
		if s.MySQL != nil {
			c.Store = s.MySQL
		}
		c.Index = s.VectorIndex
		c.Archive = s.Archive()
		if rabbitCfg != nil {
			c.ScreenedEvent = storage.ScreenedOutbox(rabbitCfg)
			c.DeletedEvent = storage.DeletedOutbox(rabbitCfg)
		}
	}
}

// ----- 设置选项 -----

func WithConcurrency(n int) SettingOpt {
	return func(s *Settings) { s.Concurrency = n }
}

func WithFileTimeout(d time.Duration) SettingOpt {
	return func(s *Settings) { s.FileTimeout = d }
}

func WithMinTextLength(n int) SettingOpt {
	return func(s *Settings) { s.MinTextLength = n }
}

func WithMaxFileSize(n int64) SettingOpt {
	return func(s *Settings) { s.MaxFileSize = n }
}

func WithLogger(l *zerolog.Logger) SettingOpt {
	return func(s *Settings) { s.Logger = l }
}

// WithIngestionConfig 按配置文件设置批量处理参数
func WithIngestionConfig(cfg config.IngestionConfig) SettingOpt {
	return func(s *Settings) {
		if cfg.Concurrency > 0 {
			s.Concurrency = cfg.Concurrency
		}
		s.FileTimeout = config.GetDuration(cfg.FileTimeout, s.FileTimeout)
		if cfg.MinTextLength > 0 {
			s.MinTextLength = cfg.MinTextLength
		}
		if cfg.MaxFileSizeMB > 0 {
			s.MaxFileSize = int64(cfg.MaxFileSizeMB) << 20
		}
	}
}

// DefaultSettings 默认设置
func DefaultSettings() Settings {
	return Settings{
		Concurrency:          4,
		FileTimeout:          3 * time.Minute,
		MinTextLength:        50,
		EmbeddingResumeChars: constants.EmbeddingResumeChars,
	}
}
