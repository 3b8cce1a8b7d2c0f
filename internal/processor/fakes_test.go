package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"talent-match/internal/storage"
	"talent-match/internal/storage/models"
	"talent-match/internal/types"
)

// memStore 内存版记录存储，行为与 storage.MySQL 保持一致
type memStore struct {
	mu         sync.Mutex
	nextID     uint64
	jobs       map[uint64]*models.JobPosting
	candidates map[uint64]*models.Candidate
	vectors    map[string]*models.CandidateVector
	outbox     []*models.OutboxMessage

	insertErr     error
	saveVectorErr error
	findErr       error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:       map[uint64]*models.JobPosting{},
		candidates: map[uint64]*models.Candidate{},
		vectors:    map[string]*models.CandidateVector{},
	}
}

func (s *memStore) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addJob(tenantID, title string, must ...string) *models.JobPosting {
	s.mu.Lock()
	defer s.mu.Unlock()
	mustJSON, _ := models.ToJSON(must)
	job := &models.JobPosting{ID: s.id(), TenantID: tenantID, Title: title, Description: title + " role", MustHaveSkills: mustJSON, Status: "active"}
	s.jobs[job.ID] = job
	return job
}

func (s *memStore) addCandidate(c models.Candidate) *models.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	s.candidates[c.ID] = &c
	return &c
}

func (s *memStore) CreateJob(_ context.Context, job *models.JobPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = s.id()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) ListJobs(_ context.Context, tenantID string) ([]models.JobPosting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.JobPosting
	for _, j := range s.jobs {
		if j.TenantID == tenantID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	return out, nil
}

func (s *memStore) GetJob(_ context.Context, tenantID string, jobID uint64) (*models.JobPosting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.TenantID != tenantID {
		return nil, types.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) InsertCandidateWithOutbox(_ context.Context, c *models.Candidate, build storage.OutboxBuilder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return fmt.Errorf("%w: %v", types.ErrPersistence, s.insertErr)
	}
	c.ID = s.id()
	if build != nil {
		msg, err := build(c)
		if err != nil {
			return err
		}
		s.outbox = append(s.outbox, msg)
	}
	cp := *c
	s.candidates[c.ID] = &cp
	return nil
}

func (s *memStore) SaveCandidateVector(_ context.Context, v *models.CandidateVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveVectorErr != nil {
		return s.saveVectorErr
	}
	cp := *v
	s.vectors[v.VectorID] = &cp
	return nil
}

func (s *memStore) FindCandidateIDsByVectorIDs(_ context.Context, tenantID string, vectorIDs []string) (map[string]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]uint64{}
	for _, vid := range vectorIDs {
		if v, ok := s.vectors[vid]; ok && v.TenantID == tenantID {
			out[vid] = v.CandidateID
		}
	}
	return out, nil
}

// FindCandidatesByIDs 故意不按租户过滤，用来验证上层的二次过滤
func (s *memStore) FindCandidatesByIDs(_ context.Context, _ string, ids []uint64) ([]models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []models.Candidate
	for _, id := range ids {
		if c, ok := s.candidates[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memStore) FindJobTitles(_ context.Context, tenantID string, jobIDs []uint64) (map[uint64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[uint64]string{}
	for _, id := range jobIDs {
		if j, ok := s.jobs[id]; ok && j.TenantID == tenantID {
			out[id] = j.Title
		}
	}
	return out, nil
}

func (s *memStore) ListJobCandidates(_ context.Context, tenantID string, jobID uint64) ([]models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Candidate
	for _, c := range s.candidates {
		if c.TenantID == tenantID && c.JobID == jobID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].MatchScore != out[k].MatchScore {
			return out[i].MatchScore > out[k].MatchScore
		}
		return out[i].ID < out[k].ID
	})
	return out, nil
}

func (s *memStore) GetCandidate(_ context.Context, tenantID string, id uint64) (*models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok || c.TenantID != tenantID {
		return nil, types.ErrCandidateNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) UpdateCandidateStatus(_ context.Context, tenantID string, id uint64, status types.CandidateStatus) (*models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok || c.TenantID != tenantID {
		return nil, types.ErrCandidateNotFound
	}
	c.Status = string(status)
	cp := *c
	return &cp, nil
}

func (s *memStore) DeleteCandidateWithOutbox(_ context.Context, tenantID string, id uint64, build storage.DeleteOutboxBuilder) (*models.Candidate, *models.CandidateVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok || c.TenantID != tenantID {
		return nil, nil, types.ErrCandidateNotFound
	}
	var mapping *models.CandidateVector
	for vid, v := range s.vectors {
		if v.CandidateID == id {
			mapping = v
			delete(s.vectors, vid)
		}
	}
	delete(s.candidates, id)
	if build != nil {
		msg, err := build(c, mapping)
		if err != nil {
			return nil, nil, err
		}
		s.outbox = append(s.outbox, msg)
	}
	return c, mapping, nil
}

func (s *memStore) DashboardStats(_ context.Context, tenantID string) (*storage.DashboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats storage.DashboardStats
	for _, j := range s.jobs {
		if j.TenantID == tenantID && j.Status == "active" {
			stats.ActiveJobs++
		}
	}
	for _, c := range s.candidates {
		if c.TenantID == tenantID {
			stats.TotalCandidates++
			if c.Status == string(types.StatusShortlisted) {
				stats.Shortlisted++
			}
		}
	}
	return &stats, nil
}

// memIndex 内存版向量索引，余弦相似度并按租户过滤
type memIndex struct {
	mu        sync.Mutex
	points    map[string]memPoint
	failQuery bool
	failWrite bool
	deleted   []string
}

type memPoint struct {
	vector []float32
	meta   storage.VectorMetadata
}

func newMemIndex() *memIndex {
	return &memIndex{points: map[string]memPoint{}}
}

func (m *memIndex) Upsert(_ context.Context, id string, vector []float32, meta storage.VectorMetadata) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return false
	}
	m.points[id] = memPoint{vector: vector, meta: meta}
	return true
}

func (m *memIndex) Query(_ context.Context, vector []float32, topK int, filter storage.VectorFilter) ([]storage.VectorMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failQuery {
		return nil, errors.New("connection refused")
	}
	if filter.TenantID == "" {
		return nil, types.ErrTenantMismatch
	}
	out := []storage.VectorMatch{}
	for id, p := range m.points {
		if p.meta.TenantID != filter.TenantID {
			continue
		}
		out = append(out, storage.VectorMatch{ID: id, Score: cosine(vector, p.vector), Metadata: p.meta})
	}
	sort.SliceStable(out, func(i, k int) bool {
		if out[i].Score != out[k].Score {
			return out[i].Score > out[k].Score
		}
		return out[i].ID < out[k].ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memIndex) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	delete(m.points, id)
	return nil
}

func (m *memIndex) Stats(context.Context) storage.IndexStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return storage.IndexStats{Enabled: true, TotalVectors: int64(len(m.points)), Dimension: 4}
}

func (m *memIndex) Enabled() bool { return true }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// keywordEmbedder 按关键词生成 4 维向量：go / python / java / design
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *keywordEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	lower := strings.ToLower(text)
	vec := make([]float32, 4)
	for i, kw := range []string{"go", "python", "java", "design"} {
		vec[i] = float32(strings.Count(lower, kw))
	}
	vec[3] += 0.01
	return vec, nil
}

func (e *keywordEmbedder) Dimensions() int { return 4 }

// memArchive 内存版对象存储
type memArchive struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemArchive() *memArchive {
	return &memArchive{objects: map[string][]byte{}}
}

func (a *memArchive) UploadResume(_ context.Context, key, _ string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.uploadErr != nil {
		return "", a.uploadErr
	}
	a.objects[key] = data
	return key, nil
}

func (a *memArchive) GetResumeFile(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (a *memArchive) DeleteFile(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

type extractorFunc func(ctx context.Context, filename string, content []byte) (string, error)

func (f extractorFunc) ExtractText(ctx context.Context, filename string, content []byte) (string, error) {
	return f(ctx, filename, content)
}

type parserFunc func(ctx context.Context, text string) (*types.CandidateProfile, error)

func (f parserFunc) Parse(ctx context.Context, text string) (*types.CandidateProfile, error) {
	return f(ctx, text)
}

type scorerFunc func(ctx context.Context, text string, profile *types.CandidateProfile, job types.JobRequirements) (*types.Evaluation, error)

func (f scorerFunc) Score(ctx context.Context, text string, profile *types.CandidateProfile, job types.JobRequirements) (*types.Evaluation, error) {
	return f(ctx, text, profile, job)
}

// plainTextExtractor 直接把文件内容当作文本
var plainTextExtractor = extractorFunc(func(_ context.Context, _ string, content []byte) (string, error) {
	return string(content), nil
})

// firstLineParser 取第一行作为姓名，出现的关键词作为技能
var firstLineParser = parserFunc(func(_ context.Context, text string) (*types.CandidateProfile, error) {
	name, _, _ := strings.Cut(text, "\n")
	var skills []string
	for _, kw := range []string{"Go", "Python", "Java"} {
		if strings.Contains(text, kw) {
			skills = append(skills, kw)
		}
	}
	return &types.CandidateProfile{Name: strings.TrimSpace(name), Skills: skills, ExperienceYears: types.FlexInt(strings.Count(text, "year"))}, nil
})

// fixedScorer 以技能数量计分
var fixedScorer = scorerFunc(func(_ context.Context, _ string, profile *types.CandidateProfile, _ types.JobRequirements) (*types.Evaluation, error) {
	return &types.Evaluation{
		OverallScore:   types.FlexInt(40 + 20*len(profile.Skills)),
		SkillsMatched:  profile.Skills,
		SkillsMissing:  []string{},
		Strengths:      []string{"Relevant skills"},
		Concerns:       []string{},
		Recommendation: types.RecommendationMaybe,
	}, nil
})
