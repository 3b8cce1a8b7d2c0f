package processor

import (
	"errors"
	"testing"

	"talent-match/internal/constants"
	"talent-match/internal/llm"
	"talent-match/internal/parser"
	"talent-match/internal/storage/models"
	"talent-match/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetJob(t *testing.T) {
	env := newTestEnv(t, nil)

	job, err := env.p.CreateJob(t.Context(), "acme", CreateJobRequest{
		Title:          "  Backend Engineer ",
		Description:    "Build services",
		MustHaveSkills: []string{"Go", " ", "SQL"},
		MinExperience:  -2,
		Requirements:   map[string]any{"remote": true},
	})
	require.NoError(t, err)
	assert.NotZero(t, job.ID)
	assert.Equal(t, "Backend Engineer", job.Title)
	assert.Equal(t, constants.JobStatusActive, job.Status)
	assert.Equal(t, 0, job.MinExperience)
	assert.Equal(t, []string{"Go", "SQL"}, models.StringSlice(job.MustHaveSkills), "空白技能应被去掉")
	assert.Equal(t, []string{}, models.StringSlice(job.NiceToHaveSkills))
	assert.JSONEq(t, `{"remote":true}`, string(job.Requirements))

	got, err := env.p.GetJob(t.Context(), "acme", job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Title, got.Title)

	_, err = env.p.GetJob(t.Context(), "globex", job.ID)
	require.ErrorIs(t, err, types.ErrJobNotFound, "其他租户不能读取岗位")
}

func TestListJobsScopedToTenant(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.addJob("acme", "A")
	env.store.addJob("globex", "B")
	env.store.addJob("acme", "C")

	jobs, err := env.p.ListJobs(t.Context(), "acme")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "C", jobs[0].Title, "新建的岗位排在前面")

	empty, err := env.p.ListJobs(t.Context(), "initech")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestExtractRequirements(t *testing.T) {
	mock := llm.NewMockChatModel(`{"must_have_skills":["Go","Go","SQL"],"nice_to_have_skills":["Kafka"],"min_experience":"3+","summary":"Backend role"}`, nil)
	env := newTestEnv(t, []ComponentOpt{
		WithRequirementsExtractor(parser.NewRequirementsExtractor(llm.NewChatCompleter(mock), nil)),
	})

	req, err := env.p.ExtractRequirements(t.Context(), "We need a Go engineer with 3+ years")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "SQL"}, req.MustHaveSkills)
	assert.Equal(t, []string{"Kafka"}, req.NiceToHaveSkills)
	assert.Equal(t, types.FlexInt(3), req.MinExperience)
	assert.Equal(t, "Backend role", req.Summary)
}

func TestExtractRequirementsErrors(t *testing.T) {
	mock := llm.NewMockChatModel("no json here", nil)
	env := newTestEnv(t, []ComponentOpt{
		WithRequirementsExtractor(parser.NewRequirementsExtractor(llm.NewChatCompleter(mock), nil)),
	})

	_, err := env.p.ExtractRequirements(t.Context(), "  ")
	require.ErrorIs(t, err, ErrDescriptionRequired)
	assert.Zero(t, mock.CallCount())

	_, err = env.p.ExtractRequirements(t.Context(), "Senior Go engineer")
	require.ErrorIs(t, err, types.ErrParsing, "无法解码时应返回错误而不是降级结果")

	failing := newTestEnv(t, []ComponentOpt{
		WithRequirementsExtractor(parser.NewRequirementsExtractor(llm.NewChatCompleter(llm.NewMockChatModel("", errors.New("503"))), nil)),
	})
	_, err = failing.p.ExtractRequirements(t.Context(), "Senior Go engineer")
	require.ErrorIs(t, err, types.ErrParsing)

	_, err = New(nil).ExtractRequirements(t.Context(), "Senior Go engineer")
	require.ErrorIs(t, err, ErrComponentNotInit)
}
