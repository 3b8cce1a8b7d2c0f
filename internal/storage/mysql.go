package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"talent-match/internal/config"
	"talent-match/internal/constants"
	"talent-match/internal/logger"
	"talent-match/internal/storage/models"
	"talent-match/internal/tracing"
	"talent-match/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("talent-match/storage/mysql")

type gormSpanKey struct{}

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after())
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)
		db.Statement.Context = context.WithValue(newCtx, gormSpanKey{}, span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		// SQL 在执行阶段才生成，这里记录截断后的语句
		if sql := db.Statement.SQL.String(); sql != "" {
			span.SetAttributes(attribute.String("db.statement", tracing.SafeSQL(sql)))
		}
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			// 未找到记录属于正常业务分支
			span.SetAttributes(attribute.String("error.type", "record_not_found"))
			span.SetStatus(codes.Ok, "record not found")
		default:
			tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer: mysqlTracer,
		dbName: dbName,
	}
}

// MySQL 提供按租户隔离的记录存储
type MySQL struct {
	db     *gorm.DB
	cfg    *config.MySQLConfig
	logger *zerolog.Logger
}

// DashboardStats 控制台统计
type DashboardStats struct {
	ActiveJobs      int64 `json:"active_jobs"`
	TotalCandidates int64 `json:"total_candidates"`
	Shortlisted     int64 `json:"shortlisted"`
}

// OutboxBuilder 在事务内根据已写入的候选人构造出站消息
type OutboxBuilder func(c *models.Candidate) (*models.OutboxMessage, error)

// DeleteOutboxBuilder 在删除事务内构造出站消息，mapping 可能为 nil
type DeleteOutboxBuilder func(c *models.Candidate, mapping *models.CandidateVector) (*models.OutboxMessage, error)

// NewMySQL 创建MySQL客户端并迁移表结构
func NewMySQL(cfg *config.MySQLConfig, l *zerolog.Logger) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel gormlogger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = gormlogger.Silent
	case 2:
		logLevel = gormlogger.Error
	case 3:
		logLevel = gormlogger.Warn
	default:
		logLevel = gormlogger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m, err := NewMySQLWithDB(db, cfg, l)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := m.autoMigrateSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	m.logger.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// NewMySQLWithDB 使用已打开的 GORM 连接构造存储，并注册追踪插件
func NewMySQLWithDB(db *gorm.DB, cfg *config.MySQLConfig, l *zerolog.Logger) (*MySQL, error) {
	dbName := ""
	if cfg != nil {
		dbName = cfg.Database
	}
	if err := db.Use(NewGormTracingPlugin(dbName)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}
	return &MySQL{db: db, cfg: cfg, logger: logger.OrNop(l)}, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	err := m.db.Session(&gorm.Session{Logger: gormlogger.Discard}).AutoMigrate(
		&models.JobPosting{},
		&models.Candidate{},
		&models.CandidateVector{},
		&models.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// CreateJob 创建岗位
func (m *MySQL) CreateJob(ctx context.Context, job *models.JobPosting) error {
	if job.Status == "" {
		job.Status = constants.JobStatusActive
	}
	if err := m.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("%w: 创建岗位失败: %v", types.ErrPersistence, err)
	}
	return nil
}

// ListJobs 按创建时间倒序列出租户的岗位
func (m *MySQL) ListJobs(ctx context.Context, tenantID string) ([]models.JobPosting, error) {
	var jobs []models.JobPosting
	err := m.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at desc").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("查询岗位列表失败: %w", err)
	}
	return jobs, nil
}

// GetJob 获取租户下的岗位，不存在或不属于该租户时返回 types.ErrJobNotFound
func (m *MySQL) GetJob(ctx context.Context, tenantID string, jobID uint64) (*models.JobPosting, error) {
	var job models.JobPosting
	err := m.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, jobID).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}
	return &job, nil
}

// InsertCandidateWithOutbox 在同一事务中写入候选人与出站消息
func (m *MySQL) InsertCandidateWithOutbox(ctx context.Context, c *models.Candidate, build OutboxBuilder) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.InsertCandidateWithOutbox", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", c.TenantID),
		attribute.Int64("job.id", int64(c.JobID)),
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return fmt.Errorf("写入候选人失败: %w", err)
		}
		if build == nil {
			return nil
		}
		msg, err := build(c)
		if err != nil {
			return fmt.Errorf("构造出站消息失败: %w", err)
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("写入出站消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}
	span.SetAttributes(attribute.Int64("candidate.id", int64(c.ID)))
	return nil
}

// SaveCandidateVector 写入或更新向量映射
func (m *MySQL) SaveCandidateVector(ctx context.Context, v *models.CandidateVector) error {
	if v.IndexedAt.IsZero() {
		v.IndexedAt = time.Now()
	}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vector_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"candidate_id", "tenant_id", "point_id", "indexed_at"}),
	}).Create(v).Error
	if err != nil {
		return fmt.Errorf("写入向量映射失败: %w", err)
	}
	return nil
}

// FindCandidateIDsByVectorIDs 查询向量ID对应的候选人ID，缺失的映射不出现在结果中
func (m *MySQL) FindCandidateIDsByVectorIDs(ctx context.Context, tenantID string, vectorIDs []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(vectorIDs))
	if len(vectorIDs) == 0 {
		return out, nil
	}
	var rows []models.CandidateVector
	err := m.db.WithContext(ctx).
		Where("tenant_id = ? AND vector_id IN ?", tenantID, vectorIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询向量映射失败: %w", err)
	}
	for _, r := range rows {
		out[r.VectorID] = r.CandidateID
	}
	return out, nil
}

// FindCandidatesByIDs 按ID批量获取租户下的候选人
func (m *MySQL) FindCandidatesByIDs(ctx context.Context, tenantID string, ids []uint64) ([]models.Candidate, error) {
	if len(ids) == 0 {
		return []models.Candidate{}, nil
	}
	var candidates []models.Candidate
	err := m.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("批量查询候选人失败: %w", err)
	}
	return candidates, nil
}

// FindJobTitles 返回岗位ID到标题的映射
func (m *MySQL) FindJobTitles(ctx context.Context, tenantID string, jobIDs []uint64) (map[uint64]string, error) {
	out := make(map[uint64]string, len(jobIDs))
	if len(jobIDs) == 0 {
		return out, nil
	}
	var jobs []models.JobPosting
	err := m.db.WithContext(ctx).
		Select("id", "title").
		Where("tenant_id = ? AND id IN ?", tenantID, jobIDs).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("查询岗位标题失败: %w", err)
	}
	for _, j := range jobs {
		out[j.ID] = j.Title
	}
	return out, nil
}

// ListJobCandidates 列出岗位下的候选人，按匹配分降序
func (m *MySQL) ListJobCandidates(ctx context.Context, tenantID string, jobID uint64) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := m.db.WithContext(ctx).
		Where("tenant_id = ? AND job_id = ?", tenantID, jobID).
		Order("match_score desc").
		Order("id asc").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("查询岗位候选人失败: %w", err)
	}
	return candidates, nil
}

// GetCandidate 获取租户下的候选人
func (m *MySQL) GetCandidate(ctx context.Context, tenantID string, id uint64) (*models.Candidate, error) {
	var c models.Candidate
	err := m.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrCandidateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}
	return &c, nil
}

// UpdateCandidateStatus 修改候选人状态并返回更新后的记录
func (m *MySQL) UpdateCandidateStatus(ctx context.Context, tenantID string, id uint64, status types.CandidateStatus) (*models.Candidate, error) {
	var updated models.Candidate
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND id = ?", tenantID, id).
			First(&updated).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ErrCandidateNotFound
		}
		if err != nil {
			return err
		}
		return tx.Model(&updated).Update("status", string(status)).Error
	})
	if err != nil {
		if errors.Is(err, types.ErrCandidateNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: 更新候选人状态失败: %v", types.ErrPersistence, err)
	}
	return &updated, nil
}

// DeleteCandidateWithOutbox 在同一事务中删除候选人、向量映射并写入出站消息。
// 返回被删除的候选人及其映射（映射可能为 nil），由调用方继续清理向量与对象存储。
func (m *MySQL) DeleteCandidateWithOutbox(ctx context.Context, tenantID string, id uint64, build DeleteOutboxBuilder) (*models.Candidate, *models.CandidateVector, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.DeleteCandidateWithOutbox", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Int64("candidate.id", int64(id)),
	)

	var (
		candidate models.Candidate
		mapping   *models.CandidateVector
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND id = ?", tenantID, id).
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ErrCandidateNotFound
		}
		if err != nil {
			return err
		}

		var cv models.CandidateVector
		err = tx.Where("tenant_id = ? AND candidate_id = ?", tenantID, id).First(&cv).Error
		switch {
		case err == nil:
			mapping = &cv
			if err := tx.Delete(&models.CandidateVector{}, "vector_id = ?", cv.VectorID).Error; err != nil {
				return fmt.Errorf("删除向量映射失败: %w", err)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Delete(&models.Candidate{}, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
			return fmt.Errorf("删除候选人失败: %w", err)
		}

		if build == nil {
			return nil
		}
		msg, err := build(&candidate, mapping)
		if err != nil {
			return fmt.Errorf("构造出站消息失败: %w", err)
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		if errors.Is(err, types.ErrCandidateNotFound) {
			return nil, nil, err
		}
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, nil, fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}
	return &candidate, mapping, nil
}

// DashboardStats 统计租户的岗位与候选人数量
func (m *MySQL) DashboardStats(ctx context.Context, tenantID string) (*DashboardStats, error) {
	var stats DashboardStats
	db := m.db.WithContext(ctx)

	if err := db.Model(&models.JobPosting{}).
		Where("tenant_id = ? AND status = ?", tenantID, constants.JobStatusActive).
		Count(&stats.ActiveJobs).Error; err != nil {
		return nil, fmt.Errorf("统计岗位数量失败: %w", err)
	}
	if err := db.Model(&models.Candidate{}).
		Where("tenant_id = ?", tenantID).
		Count(&stats.TotalCandidates).Error; err != nil {
		return nil, fmt.Errorf("统计候选人数量失败: %w", err)
	}
	if err := db.Model(&models.Candidate{}).
		Where("tenant_id = ? AND status = ?", tenantID, string(types.StatusShortlisted)).
		Count(&stats.Shortlisted).Error; err != nil {
		return nil, fmt.Errorf("统计入围人数失败: %w", err)
	}
	return &stats, nil
}
