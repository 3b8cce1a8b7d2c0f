package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexIntUnmarshal(t *testing.T) {
	cases := []struct {
		raw  string
		want FlexInt
	}{
		{`7`, 7},
		{`3.9`, 3},
		{`"5"`, 5},
		{`"5+ years"`, 5},
		{`"about 6 years"`, 6},
		{`"85%"`, 85},
		{`"2.5 yrs"`, 2},
		{`"fresh graduate"`, 0},
		{`""`, 0},
		{`null`, 0},
		{`true`, 0},
		{`{"years": 4}`, 0},
		{`[1, 2]`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			var v FlexInt
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &v), "合法JSON不应解码失败")
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestFlexStringUnmarshal(t *testing.T) {
	cases := []struct {
		raw  string
		want FlexString
	}{
		{`"2016"`, "2016"},
		{`2016`, "2016"},
		{`true`, "true"},
		{`null`, ""},
		{`{"start": 2014, "end": 2018}`, ""},
		{`["2014", "2018"]`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			var v FlexString
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &v))
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestFlexFieldsInsideProfile(t *testing.T) {
	raw := `{"name":"Jane Doe","email":"jane@x.io","skills":["Go","Python"],"experience_years":"about 6 years","education":[{"degree":"BSc","year":{"from":2010}}]}`

	var profile CandidateProfile
	require.NoError(t, json.Unmarshal([]byte(raw), &profile))
	assert.Equal(t, "Jane Doe", profile.Name)
	assert.Equal(t, FlexInt(6), profile.ExperienceYears)
	assert.Equal(t, []string{"Go", "Python"}, profile.Skills)
	require.Len(t, profile.Education, 1)
	assert.Equal(t, FlexString(""), profile.Education[0].Year)
}
