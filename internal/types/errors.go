package types

import (
	"errors"
	"fmt"
)

// 流水线错误分类
var (
	ErrExtraction          = errors.New("文档文本提取失败")
	ErrInsufficientContent = errors.New("Could not extract sufficient text from resume")
	ErrInvalidFileType     = errors.New("Invalid file type. Only PDF, DOC, DOCX allowed")
	ErrParsing             = errors.New("简历结构化解析失败")
	ErrScoring             = errors.New("候选人评分失败")
	ErrEmbedding           = errors.New("向量生成失败")
	ErrIndexUnavailable    = errors.New("向量索引不可用")
	ErrTenantMismatch      = errors.New("租户不匹配")
	ErrEmptyQuery          = errors.New("Query is required")
	ErrJobNotFound         = errors.New("Job not found")
	ErrCandidateNotFound   = errors.New("Candidate not found")
	ErrPersistence         = errors.New("候选人记录保存失败")
)

// PipelineError 携带文件名与阶段信息的流水线错误
type PipelineError struct {
	Filename string
	Op       string
	BaseErr  error
	Detail   string
}

func (e *PipelineError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (阶段:%s, 文件:%s): %s", e.BaseErr, e.Op, e.Filename, e.Detail)
	}
	return fmt.Sprintf("%s (阶段:%s, 文件:%s)", e.BaseErr, e.Op, e.Filename)
}

func (e *PipelineError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// NewPipelineError 构造流水线错误
func NewPipelineError(filename, op string, base error, detail string) error {
	return &PipelineError{Filename: filename, Op: op, BaseErr: base, Detail: detail}
}

// UserMessage 返回适合直接展示给调用方的错误信息。
// 文件类型与内容不足这两类错误保留原始提示，其他错误附带阶段细节。
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrInvalidFileType):
		return ErrInvalidFileType.Error()
	case errors.Is(err, ErrInsufficientContent):
		return ErrInsufficientContent.Error()
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		if pe.Detail != "" {
			return fmt.Sprintf("%s: %s", pe.BaseErr, pe.Detail)
		}
		return pe.BaseErr.Error()
	}
	return err.Error()
}
