package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Candidate 候选人筛选记录，每次成功上传生成一条
type Candidate struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID         string         `gorm:"type:varchar(64);not null;index:idx_candidates_tenant_job,priority:1;index:idx_candidates_tenant_status,priority:1" json:"tenant_id"`
	JobID            uint64         `gorm:"not null;index:idx_candidates_tenant_job,priority:2" json:"job_id"`
	Name             string         `gorm:"type:varchar(255);not null" json:"name"`
	Email            *string        `gorm:"type:varchar(255)" json:"email"`
	Phone            *string        `gorm:"type:varchar(64)" json:"phone"`
	Location         *string        `gorm:"type:varchar(255)" json:"location"`
	Summary          string         `gorm:"type:text" json:"summary"`
	ResumeText       string         `gorm:"type:mediumtext" json:"resume_text"`
	ParsedData       datatypes.JSON `gorm:"type:json" json:"parsed_data"`
	Skills           datatypes.JSON `gorm:"type:json" json:"skills"`
	MatchScore       int            `gorm:"not null;default:0" json:"match_score"`
	SkillsMatched    datatypes.JSON `gorm:"type:json" json:"skills_matched"`
	SkillsMissing    datatypes.JSON `gorm:"type:json" json:"skills_missing"`
	ExperienceYears  int            `gorm:"not null;default:0;index:idx_candidates_experience" json:"experience_years"`
	AIEvaluation     datatypes.JSON `gorm:"type:json" json:"ai_evaluation"`
	Strengths        datatypes.JSON `gorm:"type:json" json:"strengths"`
	Concerns         datatypes.JSON `gorm:"type:json" json:"concerns"`
	Recommendation   string         `gorm:"type:varchar(20)" json:"recommendation"`
	Status           string         `gorm:"type:varchar(20);not null;default:'screened';index:idx_candidates_tenant_status,priority:2" json:"status"`
	OriginalFilename string         `gorm:"type:varchar(255)" json:"original_filename"`
	ResumeObjectKey  string         `gorm:"type:varchar(1024)" json:"resume_object_key,omitempty"`
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime" json:"updated_at"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// JobPosting 岗位信息表
type JobPosting struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID         string         `gorm:"type:varchar(64);not null;index:idx_jobs_tenant_status,priority:1" json:"tenant_id"`
	Title            string         `gorm:"type:varchar(255);not null" json:"title"`
	Description      string         `gorm:"type:text;not null" json:"description"`
	MustHaveSkills   datatypes.JSON `gorm:"type:json" json:"must_have_skills"`
	NiceToHaveSkills datatypes.JSON `gorm:"type:json" json:"nice_to_have_skills"`
	MinExperience    int            `gorm:"not null;default:0" json:"min_experience"`
	Requirements     datatypes.JSON `gorm:"type:json" json:"requirements"`
	Status           string         `gorm:"type:varchar(20);not null;default:'active';index:idx_jobs_tenant_status,priority:2" json:"status"`
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime" json:"updated_at"`
}

func (JobPosting) TableName() string {
	return "job_postings"
}

// CandidateVector 向量ID与候选人ID的映射
type CandidateVector struct {
	VectorID    string    `gorm:"type:varchar(64);primaryKey" json:"vector_id"`
	CandidateID uint64    `gorm:"not null;uniqueIndex:idx_cv_candidate" json:"candidate_id"`
	TenantID    string    `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	PointID     string    `gorm:"type:char(36);not null" json:"point_id"`
	IndexedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)" json:"indexed_at"`
}

func (CandidateVector) TableName() string {
	return "candidate_vectors"
}

// ToJSON 把任意值序列化为 datatypes.JSON，nil 切片写为 []
func ToJSON(v any) (datatypes.JSON, error) {
	if ss, ok := v.([]string); ok && ss == nil {
		return datatypes.JSON("[]"), nil
	}
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(bytes), nil
}

// StringSlice 把 JSON 数组列解码为字符串切片，无法解码时返回空切片
func StringSlice(j datatypes.JSON) []string {
	if len(j) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(j, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}
