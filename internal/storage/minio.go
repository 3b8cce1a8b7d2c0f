package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"talent-match/internal/config"
	"talent-match/internal/logger"
	"talent-match/internal/tracing"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var minioTracer = otel.Tracer("talent-match/storage/minio")

// ResumeArchive 原始简历归档
type ResumeArchive interface {
	UploadResume(ctx context.Context, objectKey, filename string, data []byte) (string, error)
	GetResumeFile(ctx context.Context, objectKey string) ([]byte, error)
	DeleteFile(ctx context.Context, objectKey string) error
}

// 确保MinIO实现了ResumeArchive接口
var _ ResumeArchive = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger *zerolog.Logger
}

// NewMinIO 创建MinIO客户端，并确保存储桶和生命周期规则存在
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig, l *zerolog.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	l = logger.OrNop(l)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.BucketName
	if bucket == "" {
		bucket = "resumes"
	}

	m := &MinIO{
		client: client,
		cfg:    cfg,
		bucket: bucket,
		logger: l,
	}

	if err := m.ensureBucketExists(ctx); err != nil {
		return nil, err
	}
	if cfg.OriginalFileExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, "expire-original-resumes", cfg.OriginalFileExpireDays); err != nil {
			// 生命周期规则失败不影响归档功能
			l.Warn().Err(err).Str("bucket", bucket).Msg("设置存储桶生命周期失败")
		}
	}

	l.Info().Str("endpoint", cfg.Endpoint).Str("bucket", bucket).Msg("MinIO客户端初始化成功")
	return m, nil
}

func (m *MinIO) ensureBucketExists(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 失败: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.cfg.Location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", m.bucket, err)
	}
	m.logger.Info().Str("bucket", m.bucket).Msg("已创建存储桶")
	return nil
}

func (m *MinIO) setupBucketLifecycle(ctx context.Context, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, m.bucket, cfg)
}

// Bucket 返回归档使用的存储桶名称
func (m *MinIO) Bucket() string {
	return m.bucket
}

// UploadResume 上传原始简历，返回对象键
func (m *MinIO) UploadResume(ctx context.Context, objectKey, filename string, data []byte) (string, error) {
	ctx, span := minioTracer.Start(ctx, "minio.upload_resume")
	defer span.End()
	span.SetAttributes(
		attribute.String("minio.bucket", m.bucket),
		attribute.String("minio.object_key", objectKey),
		attribute.Int("minio.size", len(data)),
	)

	info, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  getContentType(filepath.Ext(filename)),
		UserMetadata: map[string]string{"original-filename": filename},
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStorage)
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, objectKey, err)
	}
	m.logger.Debug().Str("object_key", objectKey).Str("etag", info.ETag).Int64("size", info.Size).Msg("简历归档成功")
	return objectKey, nil
}

// GetResumeFile 下载原始简历
func (m *MinIO) GetResumeFile(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s 失败: %w", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s 失败: %w", objectKey, err)
	}
	return data, nil
}

// DeleteFile 删除对象
func (m *MinIO) DeleteFile(ctx context.Context, objectKey string) error {
	ctx, span := minioTracer.Start(ctx, "minio.delete_object")
	defer span.End()
	span.SetAttributes(attribute.String("minio.object_key", objectKey))

	if err := m.client.RemoveObject(ctx, m.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStorage)
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

// ResumeObjectKey 生成原始简历的对象键，格式 {tenant}/{job}/{uuid}{ext}
func ResumeObjectKey(tenantID string, jobID uint64, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%d/%s%s", tenantID, jobID, uuid.NewString(), ext)
}

// 获取内容类型
func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
