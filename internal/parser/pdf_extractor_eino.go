package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"talent-match/internal/logger"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/rs/zerolog"
)

// EinoPDFTextExtractor 使用 Eino PDF Parser 提取文本
type EinoPDFTextExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
	logger  *zerolog.Logger
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFTextExtractor)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(l *zerolog.Logger) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.logger = l
	}
}

// WithPDFTimeout 配置单个文档的解析超时
func WithPDFTimeout(d time.Duration) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.timeout = d
	}
}

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器
// 不按页面分割，按页序拼接为一段连续文本
func NewEinoPDFTextExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	extractor := &EinoPDFTextExtractor{
		parser:  p,
		timeout: 30 * time.Second,
	}
	for _, option := range options {
		option(extractor)
	}
	extractor.logger = logger.OrNop(extractor.logger)
	return extractor, nil
}

// Extract 实现 DocumentExtractor 接口
func (e *EinoPDFTextExtractor) Extract(ctx context.Context, data []byte, uri string) (text string, err error) {
	startTime := time.Now()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// 底层 PDF 库遇到损坏的文件可能 panic，这里统一转成错误
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("PDF解析异常 (%s): %v", uri, r)
		}
	}()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(map[string]any{
			"source":          uri,
			"extraction_time": startTime.Format(time.RFC3339),
		}),
	)
	if err != nil {
		e.logger.Warn().Err(err).Str("uri", uri).Dur("elapsed", time.Since(startTime)).Msg("PDF解析失败")
		return "", fmt.Errorf("eino PDF parser failed for URI %s: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("eino PDF parser returned no documents for URI %s", uri)
	}

	var sb strings.Builder
	for _, doc := range docs {
		sb.WriteString(doc.Content)
	}
	text = sb.String()

	e.logger.Debug().
		Str("uri", uri).
		Int("document_count", len(docs)).
		Int("text_length", len(text)).
		Dur("elapsed", time.Since(startTime)).
		Msg("PDF提取完成")
	return text, nil
}
