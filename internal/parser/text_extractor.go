package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"talent-match/internal/logger"
	"talent-match/internal/tracing"
	"talent-match/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var extractorTracer = otel.Tracer("talent-match/parser/extractor")

// DocumentExtractor 单一文档格式的文本提取器
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, uri string) (string, error)
}

// TextExtractor 按扩展名分派到具体格式的提取器
type TextExtractor struct {
	extractors map[string]DocumentExtractor
	logger     *zerolog.Logger
}

// TextExtractorOption 配置 TextExtractor
type TextExtractorOption func(*TextExtractor)

// WithExtractor 为某个扩展名注册（或替换）提取器
func WithExtractor(ext string, e DocumentExtractor) TextExtractorOption {
	return func(t *TextExtractor) {
		t.extractors[strings.ToLower(ext)] = e
	}
}

// WithExtractorLogger 设置日志记录器
func WithExtractorLogger(l *zerolog.Logger) TextExtractorOption {
	return func(t *TextExtractor) {
		t.logger = l
	}
}

// NewTextExtractor 创建支持 PDF、DOCX、DOC 的文本提取器
func NewTextExtractor(pdfExtractor DocumentExtractor, opts ...TextExtractorOption) *TextExtractor {
	t := &TextExtractor{
		extractors: map[string]DocumentExtractor{
			".docx": DocxExtractor{},
			".doc":  LegacyDocExtractor{},
		},
	}
	if pdfExtractor != nil {
		t.extractors[".pdf"] = pdfExtractor
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logger.OrNop(t.logger)
	return t
}

// ExtractText 提取文档中的纯文本。
// 无法解析或提取不到任何字符时返回 types.ErrExtraction。
func (t *TextExtractor) ExtractText(ctx context.Context, filename string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	ctx, span := extractorTracer.Start(ctx, "parser.extract_text")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.extension", ext),
		attribute.Int("document.size", len(content)),
	)

	extractor, ok := t.extractors[ext]
	if !ok {
		err := fmt.Errorf("%w: 不支持的文件格式 %q", types.ErrExtraction, ext)
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return "", err
	}
	if len(content) == 0 {
		err := fmt.Errorf("%w: 文件内容为空", types.ErrExtraction)
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return "", err
	}

	text, err := extractor.Extract(ctx, content, filename)
	if err != nil {
		if !errors.Is(err, types.ErrExtraction) {
			err = fmt.Errorf("%w: %v", types.ErrExtraction, err)
		}
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return "", err
	}

	text = strings.TrimSpace(strings.ToValidUTF8(text, ""))
	if text == "" {
		err := fmt.Errorf("%w: 文档中没有可提取的文本", types.ErrExtraction)
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return "", err
	}

	span.SetAttributes(attribute.Int("document.text_length", utf8.RuneCountInString(text)))
	t.logger.Debug().Str("file", filename).Int("chars", len(text)).Msg("文本提取完成")
	return text, nil
}

// DocxExtractor 从 DOCX (Office Open XML) 中提取正文文本
type DocxExtractor struct{}

// Extract 读取 word/document.xml，按段落输出文本
func (DocxExtractor) Extract(ctx context.Context, data []byte, uri string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: 不是有效的 DOCX 文件: %v", types.ErrExtraction, err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("%w: DOCX 中缺少 word/document.xml", types.ErrExtraction)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("%w: 打开 document.xml 失败: %v", types.ErrExtraction, err)
	}
	defer rc.Close()

	return docxText(ctx, rc)
}

func docxText(ctx context.Context, r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: 解析 document.xml 失败: %v", types.ErrExtraction, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}
	return sb.String(), nil
}

// oleSignature OLE2 复合文档头，旧版 .doc 文件以此开头
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

const (
	// oleHeaderSize 复合文档头部长度，头部内不包含正文
	oleHeaderSize = 512
	// minRunLength 认定为正文的最短连续可打印字符数
	minRunLength = 4
)

// LegacyDocExtractor 旧版 Word 二进制格式的启发式提取器。
// 不解析 FIB/piece table，只收集 UTF-16LE 与单字节编码中较长的可打印字符段，
// 取两者中字符更多的结果。
type LegacyDocExtractor struct{}

// Extract 实现 DocumentExtractor 接口
func (LegacyDocExtractor) Extract(ctx context.Context, data []byte, uri string) (string, error) {
	if len(data) < len(oleSignature) || !bytes.Equal(data[:len(oleSignature)], oleSignature) {
		return "", fmt.Errorf("%w: 不是有效的 DOC 文件", types.ErrExtraction)
	}
	if len(data) <= oleHeaderSize {
		return "", fmt.Errorf("%w: DOC 文件过短", types.ErrExtraction)
	}
	body := data[oleHeaderSize:]

	wide := utf16Runs(body)
	narrow := asciiRuns(body)
	if utf8.RuneCountInString(wide) >= utf8.RuneCountInString(narrow) {
		return wide, nil
	}
	return narrow, nil
}

func utf16Runs(data []byte) string {
	var sb strings.Builder
	var run []uint16
	flush := func() {
		if len(run) >= minRunLength {
			sb.WriteString(string(utf16.Decode(run)))
			sb.WriteByte('\n')
		}
		run = run[:0]
	}
	for i := 0; i+1 < len(data); i += 2 {
		u := binary.LittleEndian.Uint16(data[i:])
		r := rune(u)
		if r == '\r' || r == '\n' {
			flush()
			continue
		}
		if isDocTextRune(r) {
			run = append(run, u)
			continue
		}
		flush()
	}
	flush()
	return sb.String()
}

func asciiRuns(data []byte) string {
	var sb strings.Builder
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= minRunLength {
			sb.Write(data[start:end])
			sb.WriteByte('\n')
		}
		start = -1
	}
	for i, b := range data {
		if b == '\t' || (b >= 0x20 && b < 0x7F) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(data))
	return sb.String()
}

func isDocTextRune(r rune) bool {
	if r == '\t' {
		return true
	}
	if r < 0x20 || (r >= 0xD800 && r <= 0xDFFF) || r == 0xFFFF || r == 0xFFFE {
		return false
	}
	return unicode.IsPrint(r)
}
