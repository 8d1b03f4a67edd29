package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/boltd/internal/failure"
)

func drain(c *cursor) [][]any {
	var rows [][]any
	for {
		row, ok := c.advance()
		if !ok {
			return rows
		}
		rows = append(rows, row)
	}
}

func TestCompileAndEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		params map[string]any
		fields []string
		rows   [][]any
	}{
		{
			name:   "literal",
			query:  "RETURN 1",
			fields: []string{"1"},
			rows:   [][]any{{int64(1)}},
		},
		{
			name:   "aliases and mixed literals",
			query:  `return 'a' AS s, "b" AS t, 2.5 AS f, true AS yes, null AS nothing`,
			fields: []string{"s", "t", "f", "yes", "nothing"},
			rows:   [][]any{{"a", "b", 2.5, true, nil}},
		},
		{
			name:   "parameter",
			query:  "RETURN $name AS name",
			params: map[string]any{"name": "neo"},
			fields: []string{"name"},
			rows:   [][]any{{"neo"}},
		},
		{
			name:   "unwind range",
			query:  "UNWIND range(1, 3) AS x RETURN x, x AS y",
			fields: []string{"x", "y"},
			rows:   [][]any{{int64(1), int64(1)}, {int64(2), int64(2)}, {int64(3), int64(3)}},
		},
		{
			name:   "descending range with step",
			query:  "UNWIND range(5, -1, -3) AS n RETURN n",
			fields: []string{"n"},
			rows:   [][]any{{int64(5)}, {int64(2)}, {int64(-1)}},
		},
		{
			name:   "empty range",
			query:  "UNWIND range(3, 1) AS n RETURN n",
			fields: []string{"n"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pl, err := compile(tc.query)
			require.NoError(t, err)
			require.Equal(t, tc.fields, pl.fields)
			require.NoError(t, pl.checkParams(tc.params))
			require.Equal(t, tc.rows, drain(newCursor(pl, tc.params)))
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status failure.Status
	}{
		{name: "typo", query: "RETRUN 1", status: failure.StatusSyntaxError},
		{name: "trailing input", query: "RETURN 1 2", status: failure.StatusSyntaxError},
		{name: "unknown variable", query: "RETURN x", status: failure.StatusSyntaxError},
		{name: "unterminated string", query: "RETURN 'abc", status: failure.StatusSyntaxError},
		{name: "zero step", query: "UNWIND range(1, 2, 0) AS x RETURN x", status: failure.StatusSyntaxError},
		{name: "bad character", query: "RETURN 1 + 1", status: failure.StatusSyntaxError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := compile(tc.query)
			require.Error(t, err)
			status, ok := failure.StatusOf(err)
			require.True(t, ok)
			require.Equal(t, tc.status, status)
		})
	}
}

func TestCheckParamsReportsMissing(t *testing.T) {
	pl, err := compile("RETURN $a, $b")
	require.NoError(t, err)

	err = pl.checkParams(map[string]any{"a": 1})
	require.ErrorContains(t, err, "Expected parameter(s): b")
	status, ok := failure.StatusOf(err)
	require.True(t, ok)
	require.Equal(t, failure.StatusParameterMissing, status)
}
