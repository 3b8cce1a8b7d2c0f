package storage

import (
	"context"
	"errors"
	"fmt"

	"talent-match/internal/config"
	"talent-match/internal/logger"

	"github.com/rs/zerolog"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 关系型数据库，必需
	MySQL *MySQL

	// 向量索引，未配置时为 DisabledIndex
	VectorIndex VectorIndex

	// 以下组件未配置或初始化失败时为 nil
	Redis    *Redis
	MinIO    *MinIO
	RabbitMQ *RabbitMQ

	logger *zerolog.Logger
}

// NewStorage 创建存储管理器。
// MySQL 初始化失败直接返回错误，其余组件失败时降级为未启用。
func NewStorage(ctx context.Context, cfg *config.Config, l *zerolog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	l = logger.OrNop(l)
	s := &Storage{logger: l}

	var err error
	s.MySQL, err = NewMySQL(&cfg.MySQL, l)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}

	s.VectorIndex = NewVectorIndex(ctx, &cfg.Qdrant, l)

	if cfg.Redis.Address != "" {
		s.Redis, err = NewRedisAdapter(ctx, &cfg.Redis)
		if err != nil {
			l.Warn().Err(err).Msg("初始化Redis失败，查询向量缓存已禁用")
			s.Redis = nil
		}
	} else {
		l.Info().Msg("Redis未配置，跳过初始化")
	}

	if cfg.MinIO.Endpoint != "" && cfg.Ingestion.ArchiveResumes {
		s.MinIO, err = NewMinIO(ctx, &cfg.MinIO, l)
		if err != nil {
			l.Warn().Err(err).Msg("初始化MinIO失败，原始简历将不会归档")
			s.MinIO = nil
		}
	}

	if cfg.RabbitMQ.URL != "" {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ, l)
		if err == nil {
			err = s.RabbitMQ.SetupTopology()
			if err != nil {
				s.RabbitMQ.Close()
			}
		}
		if err != nil {
			l.Warn().Err(err).Msg("初始化RabbitMQ失败，出站消息将保留在发件箱中")
			s.RabbitMQ = nil
		}
	}

	return s, nil
}

// Archive 返回可用的简历归档，未启用时返回 nil 接口
func (s *Storage) Archive() ResumeArchive {
	if s.MinIO == nil {
		return nil
	}
	return s.MinIO
}

// Close 按创建的逆序关闭所有连接
func (s *Storage) Close() error {
	var errs []error
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭MySQL连接失败: %w", err))
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭Redis连接失败: %w", err))
		}
	}
	// MinIO 客户端基于 HTTP，无需显式关闭
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭RabbitMQ连接失败: %w", err))
		}
	}
	return errors.Join(errs...)
}
