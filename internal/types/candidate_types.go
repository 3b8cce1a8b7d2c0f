package types

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
)

// Recommendation 招聘建议
type Recommendation string

const (
	RecommendationHire   Recommendation = "hire"
	RecommendationMaybe  Recommendation = "maybe"
	RecommendationReject Recommendation = "reject"
)

// CandidateStatus 候选人记录状态
type CandidateStatus string

const (
	StatusScreened     CandidateStatus = "screened"
	StatusShortlisted  CandidateStatus = "shortlisted"
	StatusInterviewing CandidateStatus = "interviewing"
	StatusRejected     CandidateStatus = "rejected"
	StatusHired        CandidateStatus = "hired"
)

// FlexInt 宽松的整数类型，兼容模型输出中的 3、3.5、"3"、"3 years"、"about 6 years"、"85%" 等写法
type FlexInt int

var leadingNumber = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// UnmarshalJSON 取出值中的第一个数字，小数向下取整；null、无数字的字符串及其他类型均视为 0
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	*f = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = parseFlexInt(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = FlexInt(math.Floor(v))
	}
	return nil
}

func parseFlexInt(s string) FlexInt {
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return FlexInt(math.Floor(v))
}

// FlexString 宽松的字符串类型，兼容模型把年份等字段输出为数字的情况
type FlexString string

// UnmarshalJSON 接受字符串、数字、布尔值或 null，对象和数组视为空串
func (f *FlexString) UnmarshalJSON(data []byte) error {
	*f = ""
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '{', '[':
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	default:
		*f = FlexString(string(data))
	}
	return nil
}

// Education 教育经历
type Education struct {
	Degree      FlexString `json:"degree"`
	Institution FlexString `json:"institution"`
	Year        FlexString `json:"year"`
}

// WorkExperience 工作经历
type WorkExperience struct {
	Title       FlexString `json:"title"`
	Company     FlexString `json:"company"`
	Duration    FlexString `json:"duration"`
	Description FlexString `json:"description"`
}

// CandidateProfile 由结构化解析器从简历文本中抽取的候选人档案
type CandidateProfile struct {
	Name            string           `json:"name"`
	Email           *string          `json:"email"`
	Phone           *string          `json:"phone"`
	Location        *string          `json:"location"`
	Summary         string           `json:"summary"`
	Skills          []string         `json:"skills"`
	ExperienceYears FlexInt          `json:"experience_years"`
	Education       []Education      `json:"education"`
	WorkExperience  []WorkExperience `json:"work_experience"`
	Certifications  []string         `json:"certifications"`
}

// Normalize 把 nil 切片替换为空切片，保证序列化结果为 []
func (p *CandidateProfile) Normalize() {
	if p.Skills == nil {
		p.Skills = []string{}
	}
	if p.Education == nil {
		p.Education = []Education{}
	}
	if p.WorkExperience == nil {
		p.WorkExperience = []WorkExperience{}
	}
	if p.Certifications == nil {
		p.Certifications = []string{}
	}
	if p.ExperienceYears < 0 {
		p.ExperienceYears = 0
	}
}

// ScoreBreakdown 评分细项，满分分别为 40/30/20/10
type ScoreBreakdown struct {
	Skills     FlexInt `json:"skills"`
	Experience FlexInt `json:"experience"`
	Relevance  FlexInt `json:"relevance"`
	Growth     FlexInt `json:"growth"`
}

// 评分细项上限
const (
	MaxSkillsScore     = 40
	MaxExperienceScore = 30
	MaxRelevanceScore  = 20
	MaxGrowthScore     = 10
)

// Total 细项合计
func (b ScoreBreakdown) Total() int {
	return int(b.Skills + b.Experience + b.Relevance + b.Growth)
}

// Evaluation 候选人与岗位的匹配评估
type Evaluation struct {
	OverallScore        FlexInt        `json:"overall_score" validate:"gte=0,lte=100"`
	SkillsMatched       []string       `json:"skills_matched"`
	SkillsMissing       []string       `json:"skills_missing"`
	ExperienceMatch     bool           `json:"experience_match"`
	Strengths           []string       `json:"strengths" validate:"min=1"`
	Concerns            []string       `json:"concerns"`
	Recommendation      Recommendation `json:"recommendation" validate:"oneof=hire maybe reject"`
	DetailedExplanation string         `json:"detailed_explanation"`
	ScoreBreakdown      ScoreBreakdown `json:"score_breakdown"`
}

// JobRequirements 评分所需的岗位要求
type JobRequirements struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	MustHaveSkills   []string `json:"must_have_skills"`
	NiceToHaveSkills []string `json:"nice_to_have_skills"`
	MinExperience    int      `json:"min_experience"`
}

// ExtractedRequirements 从职位描述中抽取出的结构化要求
type ExtractedRequirements struct {
	MustHaveSkills   []string `json:"must_have_skills"`
	NiceToHaveSkills []string `json:"nice_to_have_skills"`
	MinExperience    FlexInt  `json:"min_experience"`
	Summary          string   `json:"summary"`
}

// UploadedFile 一份上传的简历
type UploadedFile struct {
	Filename string
	Content  []byte
}

// FileResult 单个文件的处理结果
type FileResult struct {
	Filename       string         `json:"filename"`
	CandidateID    uint64         `json:"candidate_id,omitempty"`
	Name           string         `json:"name,omitempty"`
	Score          *int           `json:"score,omitempty"`
	Recommendation Recommendation `json:"recommendation,omitempty"`
	Status         string         `json:"status"`
	Error          string         `json:"error,omitempty"`
}

const (
	FileStatusSuccess = "success"
	FileStatusError   = "error"
)

// IngestionSummary 批量处理汇总
type IngestionSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// IngestionReport 批量上传的处理报告
type IngestionReport struct {
	Message string           `json:"message"`
	JobID   uint64           `json:"job_id"`
	Results []FileResult     `json:"results"`
	Summary IngestionSummary `json:"summary"`
}
