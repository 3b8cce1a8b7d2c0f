package constants

const (
	// VectorIDPrefix 向量ID前缀，向量ID格式为 candidate_{id}
	VectorIDPrefix = "candidate_"

	// DefaultTopK 默认检索数量
	DefaultTopK = 20
	// MaxTopK 单次检索上限
	MaxTopK = 100

	// ParserPromptMaxChars 结构化解析时送入模型的简历最大字符数
	ParserPromptMaxChars = 4000
	// ScorerResumeMaxChars 评分时送入模型的简历最大字符数
	ScorerResumeMaxChars = 2000
	// ScorerDescriptionMaxChars 评分时送入模型的职位描述最大字符数
	ScorerDescriptionMaxChars = 500
	// FallbackSummaryChars 解析降级时摘要截取的字符数
	FallbackSummaryChars = 200
	// EmbeddingResumeChars 生成简历向量时截取的正文字符数
	EmbeddingResumeChars = 1500

	// MaxMustHaveSkills 职位必备技能上限
	MaxMustHaveSkills = 10
	// MaxNiceToHaveSkills 职位加分技能上限
	MaxNiceToHaveSkills = 8

	// JobStatusActive 招聘中
	JobStatusActive = "active"
	// JobStatusClosed 已关闭
	JobStatusClosed = "closed"

	// EventCandidateScreened 候选人完成筛选
	EventCandidateScreened = "candidate.screened"
	// EventCandidateDeleted 候选人被删除
	EventCandidateDeleted = "candidate.deleted"

	// ContextKeyTenantID 鉴权中间件写入请求上下文的租户ID键
	ContextKeyTenantID = "tenant_id"
)

// AllowedResumeExtensions 允许上传的简历扩展名
var AllowedResumeExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
}
