package storage

import (
	"testing"

	"talent-match/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type capturedQuery struct {
	SQL  string
	Vars []any
}

// newDryRunMySQL 构造只生成SQL、不连接数据库的存储，返回捕获到的查询
func newDryRunMySQL(t *testing.T) (*MySQL, *[]capturedQuery) {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/talent_match?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	require.NoError(t, err, "打开 DryRun 连接不应失败")

	captured := &[]capturedQuery{}
	err = db.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		vars := append([]any(nil), tx.Statement.Vars...)
		*captured = append(*captured, capturedQuery{SQL: tx.Statement.SQL.String(), Vars: vars})
	})
	require.NoError(t, err)

	m, err := NewMySQLWithDB(db, &config.MySQLConfig{Database: "talent_match"}, nil)
	require.NoError(t, err)
	return m, captured
}

func TestGetJobScopesByTenant(t *testing.T) {
	m, captured := newDryRunMySQL(t)

	_, err := m.GetJob(t.Context(), "acme", 7)
	require.NoError(t, err)
	require.Len(t, *captured, 1)

	q := (*captured)[0]
	assert.Contains(t, q.SQL, "`job_postings`")
	assert.Contains(t, q.SQL, "tenant_id = ? AND id = ?")
	assert.Equal(t, []any{"acme", uint64(7)}, q.Vars[:2])
}

func TestListJobsOrdersByCreatedAt(t *testing.T) {
	m, captured := newDryRunMySQL(t)

	_, err := m.ListJobs(t.Context(), "acme")
	require.NoError(t, err)
	require.Len(t, *captured, 1)
	assert.Contains(t, (*captured)[0].SQL, "ORDER BY created_at desc")
	assert.Equal(t, "acme", (*captured)[0].Vars[0])
}

func TestFindCandidatesByIDsScopesByTenant(t *testing.T) {
	m, captured := newDryRunMySQL(t)

	_, err := m.FindCandidatesByIDs(t.Context(), "acme", []uint64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, *captured, 1)

	q := (*captured)[0]
	assert.Contains(t, q.SQL, "`candidates`")
	assert.Contains(t, q.SQL, "tenant_id = ? AND id IN (?,?,?)")
	assert.Equal(t, []any{"acme", uint64(1), uint64(2), uint64(3)}, q.Vars)
}

func TestFindCandidatesByIDsEmptySkipsQuery(t *testing.T) {
	m, captured := newDryRunMySQL(t)

	out, err := m.FindCandidatesByIDs(t.Context(), "acme", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, *captured, "没有ID时不应访问数据库")

	ids, err := m.FindCandidateIDsByVectorIDs(t.Context(), "acme", nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, *captured)
}

func TestFindCandidateIDsByVectorIDsScopesByTenant(t *testing.T) {
	m, captured := newDryRunMySQL(t)

	_, err := m.FindCandidateIDsByVectorIDs(t.Context(), "acme", []string{"candidate_1", "candidate_2"})
	require.NoError(t, err)
	require.Len(t, *captured, 1)

	q := (*captured)[0]
	assert.Contains(t, q.SQL, "`candidate_vectors`")
	assert.Contains(t, q.SQL, "tenant_id = ? AND vector_id IN (?,?)")
	assert.Equal(t, []any{"acme", "candidate_1", "candidate_2"}, q.Vars)
}

func TestListJobCandidatesOrdersByScore(t *testing.T) {
	m, captured := newDryRunMySQL(t)

	_, err := m.ListJobCandidates(t.Context(), "acme", 9)
	require.NoError(t, err)
	require.Len(t, *captured, 1)

	q := (*captured)[0]
	assert.Contains(t, q.SQL, "tenant_id = ? AND job_id = ?")
	assert.Contains(t, q.SQL, "ORDER BY match_score desc,id asc")
}

func TestFindJobTitlesSelectsColumns(t *testing.T) {
	m, captured := newDryRunMySQL(t)

	_, err := m.FindJobTitles(t.Context(), "acme", []uint64{4})
	require.NoError(t, err)
	require.Len(t, *captured, 1)
	assert.Contains(t, (*captured)[0].SQL, "SELECT `id`,`title` FROM `job_postings`")
}

func TestDashboardStatsQueries(t *testing.T) {
	m, captured := newDryRunMySQL(t)

	stats, err := m.DashboardStats(t.Context(), "acme")
	require.NoError(t, err)
	require.NotNil(t, stats)
	require.Len(t, *captured, 3, "应分别统计岗位、候选人和入围人数")

	assert.Contains(t, (*captured)[0].SQL, "`job_postings`")
	assert.Equal(t, []any{"acme", "active"}, (*captured)[0].Vars)
	assert.Equal(t, []any{"acme"}, (*captured)[1].Vars)
	assert.Equal(t, []any{"acme", "shortlisted"}, (*captured)[2].Vars)
	for _, q := range *captured {
		assert.Contains(t, q.SQL, "count(*)")
	}
}
