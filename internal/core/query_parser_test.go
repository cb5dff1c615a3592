package core

import (
	"audio-tagging/internal/core/types"
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery_SimpleFilter(t *testing.T) {
	query := `PATH CONTAINS "dogs/"`
	expected := &SubstringFilter{field: FieldPath, substr: "dogs/"}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_AndExpression(t *testing.T) {
	query := `PATH CONTAINS "dogs/" AND status = "Failed"`
	expected := &AndFilter{
		filters: []Filter{
			&SubstringFilter{field: FieldPath, substr: "dogs/"},
			&StringEqFilter{field: FieldStatus, value: "Failed"},
		},
	}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_OrExpression(t *testing.T) {
	query := `TOP = "Speech" OR TOP = "Music"`
	expected := &OrFilter{
		filters: []Filter{
			&StringEqFilter{field: FieldTop, value: "Speech"},
			&StringEqFilter{field: FieldTop, value: "Music"},
		},
	}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_NotExpression(t *testing.T) {
	query := `NOT LABEL CONTAINS "Dog"`
	expected := &NotFilter{
		filter: &SubstringFilter{field: FieldLabel, substr: "Dog"},
	}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_NotGroup(t *testing.T) {
	expected := &NotFilter{
		filter: &OrFilter{
			filters: []Filter{
				&SubstringFilter{field: FieldPath, substr: "dogs"},
				&StringEqFilter{field: FieldStatus, value: "Failed"},
			},
		},
	}

	filter, err := ParseQuery(`NOT (PATH CONTAINS "dogs" OR STATUS = "Failed")`)
	require.NoError(t, err)
	assert.Equal(t, expected, filter)

	q, err := parser.ParseString("", `NOT (SCORE "Speech" > 0.5) AND NOT TOP = "Music"`)
	require.NoError(t, err)
	assert.Equal(t, `(NOT (SCORE "Speech" > 0.5)) AND (NOT (TOP = "Music"))`, q.String())

	original, err := q.ToFilter()
	require.NoError(t, err)
	reparsed, err := ParseQuery(q.String())
	require.NoError(t, err)
	assert.Equal(t, original, reparsed)
}

func TestParseQuery_ComplexExpression(t *testing.T) {
	query := `PATH CONTAINS "street" AND (TOP = "Speech" OR NOT SCORE "Vehicle horn, car horn, honking" > 0.25)`
	expected := &AndFilter{
		filters: []Filter{
			&SubstringFilter{field: FieldPath, substr: "street"},
			&OrFilter{
				filters: []Filter{
					&StringEqFilter{field: FieldTop, value: "Speech"},
					&NotFilter{
						filter: &ScoreFilter{label: "Vehicle horn, car horn, honking", min: 0.25, max: math.MaxFloat32},
					},
				},
			},
		},
	}

	filter, err := ParseQuery(query)
	require.NoError(t, err)
	assert.Equal(t, expected, filter)
}

func TestParseQuery_ScoreFilter(t *testing.T) {
	filter, err := ParseQuery(`SCORE Speech < 1`)
	require.NoError(t, err)
	assert.Equal(t, &ScoreFilter{label: "Speech", min: -1, max: 1}, filter)

	filter, err = ParseQuery(`SCORE "Speech" = 0.5`)
	require.NoError(t, err)
	assert.Equal(t, &ScoreFilter{label: "Speech", min: 0.5 - scoreTolerance, max: 0.5 + scoreTolerance}, filter)
}

func TestParseQuery_InvalidQuery(t *testing.T) {
	for _, query := range []string{
		`PATH CONTAINS`,
		`SCORE "Speech" > "high"`,
		`SCORE "Speech" CONTAINS 0.5`,
		`PATH = 3`,
		`DURATION > "1"`,
	} {
		_, err := ParseQuery(query)
		assert.Error(t, err, query)
	}
}

func TestFilterMatches(t *testing.T) {
	rows := []ResultRow{
		{Path: "in/dogs/1.wav", Status: StatusSuccess, Tags: []types.Tag{{Label: "Dog", Probability: 0.8}, {Label: "Speech", Probability: 0.1}}},
		{Path: "in/street/2.wav", Status: StatusSuccess, Tags: []types.Tag{{Label: "Speech", Probability: 0.6}, {Label: "Vehicle horn, car horn, honking", Probability: 0.3}}},
		{Path: "in/street/3.wav", Status: StatusFailed},
	}

	tests := []struct {
		query   string
		matches []int
	}{
		{`STATUS = "Failed"`, []int{2}},
		{`SCORE "Speech" > 0.5`, []int{1}},
		{`SCORE "Speech" < 0.5`, []int{0, 2}},
		{`SCORE "Dog" = 0.8`, []int{0}},
		{`TOP = "Dog"`, []int{0}},
		{`LABEL = "Speech"`, []int{0, 1}},
		{`PATH CONTAINS "street" AND NOT STATUS = "Failed"`, []int{1}},
		{`PATH < "in/e" OR SCORE "Vehicle horn, car horn, honking" > 0.2`, []int{0, 1}},
		{`NOT (PATH CONTAINS "dogs" OR STATUS = "Failed")`, []int{1}},
	}

	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			filter, err := ParseQuery(test.query)
			require.NoError(t, err)

			var got []int
			for i, row := range rows {
				if filter.Matches(row) {
					got = append(got, i)
				}
			}
			assert.Equal(t, test.matches, got)
		})
	}
}
