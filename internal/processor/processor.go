package processor

import (
	"context"
	"errors"
	"fmt"

	"talent-match/internal/logger"
	"talent-match/internal/storage"
	"talent-match/internal/tracing"
	"talent-match/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("processor")

// ErrComponentNotInit 所需组件未注入
var ErrComponentNotInit = errors.New("component is not initialized")

// Processor 招聘流水线的服务层：批量入库、语义检索以及岗位和候选人管理。
// 内部持有所有需要的组件，但不暴露给外部。
type Processor struct {
	comps    Components
	settings Settings
	logger   *zerolog.Logger
}

// New 按选项组装服务。未注入向量索引时使用禁用状态的索引。
func New(compOpts []ComponentOpt, settingOpts ...SettingOpt) *Processor {
	var comps Components
	for _, opt := range compOpts {
		opt(&comps)
	}
	settings := DefaultSettings()
	for _, opt := range settingOpts {
		opt(&settings)
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}

	if comps.Query == nil {
		comps.Query = comps.Embedder
	}
	if comps.Index == nil {
		dim := 0
		if comps.Embedder != nil {
			dim = comps.Embedder.Dimensions()
		}
		comps.Index = storage.NewDisabledIndex(dim)
	}

	return &Processor{
		comps:    comps,
		settings: settings,
		logger:   logger.OrNop(settings.Logger),
	}
}

// requireComponents 检查操作所需的组件，checks 为组件名到是否已注入的映射
func requireComponents(op string, checks map[string]bool) error {
	for name, ok := range checks {
		if !ok {
			return fmt.Errorf("%s: %w: %s", op, ErrComponentNotInit, name)
		}
	}
	return nil
}

// errorTypeOf 把流水线错误映射为链路追踪的错误分类
func errorTypeOf(err error) tracing.ErrorType {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return tracing.ErrorTypeTimeout
	case errors.Is(err, types.ErrInvalidFileType),
		errors.Is(err, types.ErrInsufficientContent),
		errors.Is(err, types.ErrEmptyQuery),
		errors.Is(err, types.ErrJobNotFound),
		errors.Is(err, types.ErrCandidateNotFound):
		return tracing.ErrorTypeValidation
	case errors.Is(err, types.ErrExtraction):
		return tracing.ErrorTypeExtraction
	case errors.Is(err, types.ErrParsing), errors.Is(err, types.ErrScoring):
		return tracing.ErrorTypeLLM
	case errors.Is(err, types.ErrEmbedding):
		return tracing.ErrorTypeEmbedding
	case errors.Is(err, types.ErrIndexUnavailable):
		return tracing.ErrorTypeVectorDB
	case errors.Is(err, types.ErrPersistence):
		return tracing.ErrorTypeDB
	default:
		return tracing.ErrorTypeInternal
	}
}
