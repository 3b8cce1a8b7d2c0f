package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeModelJSON(t *testing.T) {
	type payload struct {
		Name  string   `json:"name"`
		Items []string `json:"items"`
	}

	cases := []struct {
		name string
		raw  string
		want payload
	}{
		{"纯JSON", `{"name":"a","items":["x"]}`, payload{Name: "a", Items: []string{"x"}}},
		{"json代码块", "```json\n{\"name\":\"b\",\"items\":[]}\n```", payload{Name: "b", Items: []string{}}},
		{"无语言代码块", "```\n{\"name\":\"c\"}\n```", payload{Name: "c"}},
		{"BOM与前后说明", "\uFEFFHere you go:\n{\"name\":\"d\",\"items\":[\"{not a brace}\"]}\nThanks!", payload{Name: "d", Items: []string{"{not a brace}"}}},
		{"未转义引号", `{"name":"the "best" one","items":[]}`, payload{Name: `the "best" one`, Items: []string{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got payload
			require.NoError(t, decodeModelJSON(tc.raw, &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeModelJSONFailures(t *testing.T) {
	var v map[string]any
	for _, raw := range []string{"", "I cannot help with that.", `{"name": "unterminated`} {
		err := decodeModelJSON(raw, &v)
		require.Error(t, err, raw)
		assert.True(t, IsMalformedResponse(err), "应标记为格式错误: %q", raw)
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "简历", truncateRunes("简历文本", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "", truncateRunes("abc", 0))
}
