package core

import (
	"audio-tagging/internal/core/types"
	"strings"
)

// ResultRow is a classified file as seen by queries.
type ResultRow struct {
	Path   string
	Status Status
	Tags   []types.Tag
}

func (r ResultRow) Score(label string) float32 {
	for _, tag := range r.Tags {
		if tag.Label == label {
			return tag.Probability
		}
	}
	return 0
}

const (
	FieldPath   = "PATH"
	FieldStatus = "STATUS"
	FieldTop    = "TOP"
	FieldLabel  = "LABEL"
)

// values returns the strings a field resolves to for a row. LABEL resolves to
// every tag, so string filters on it match if any tag matches.
func (r ResultRow) values(field string) []string {
	switch field {
	case FieldPath:
		return []string{r.Path}
	case FieldStatus:
		return []string{string(r.Status)}
	case FieldTop:
		top, ok := types.Prediction{Tags: r.Tags}.Top()
		if !ok {
			return nil
		}
		return []string{top.Label}
	case FieldLabel:
		labels := make([]string, 0, len(r.Tags))
		for _, tag := range r.Tags {
			labels = append(labels, tag.Label)
		}
		return labels
	}
	return nil
}

type Filter interface {
	Matches(row ResultRow) bool
}

type AndFilter struct {
	filters []Filter
}

func (f *AndFilter) Matches(row ResultRow) bool {
	for _, filter := range f.filters {
		if !filter.Matches(row) {
			return false
		}
	}
	return true
}

type OrFilter struct {
	filters []Filter
}

func (f *OrFilter) Matches(row ResultRow) bool {
	for _, filter := range f.filters {
		if filter.Matches(row) {
			return true
		}
	}
	return false
}

type NotFilter struct {
	filter Filter
}

func (f *NotFilter) Matches(row ResultRow) bool {
	return !f.filter.Matches(row)
}

// ScoreFilter matches when min < score(label) < max. A label the classifier
// did not report scores 0.
type ScoreFilter struct {
	label string
	min   float32
	max   float32
}

func (f *ScoreFilter) Matches(row ResultRow) bool {
	score := row.Score(f.label)
	return f.min < score && score < f.max
}

type SubstringFilter struct {
	field  string
	substr string
}

func (f *SubstringFilter) Matches(row ResultRow) bool {
	for _, v := range row.values(f.field) {
		if strings.Contains(v, f.substr) {
			return true
		}
	}
	return false
}

type StringEqFilter struct {
	field string
	value string
}

func (f *StringEqFilter) Matches(row ResultRow) bool {
	for _, v := range row.values(f.field) {
		if v == f.value {
			return true
		}
	}
	return false
}

type StringLtFilter struct {
	field string
	value string
}

func (f *StringLtFilter) Matches(row ResultRow) bool {
	for _, v := range row.values(f.field) {
		if v < f.value {
			return true
		}
	}
	return false
}

type StringGtFilter struct {
	field string
	value string
}

func (f *StringGtFilter) Matches(row ResultRow) bool {
	for _, v := range row.values(f.field) {
		if v > f.value {
			return true
		}
	}
	return false
}
