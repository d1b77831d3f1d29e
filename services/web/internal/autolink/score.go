package autolink

import (
	"math"
	"strings"
	"unicode"
)

// Query is what a candidate is scored against. Zero Year or Episodes means
// unknown.
type Query struct {
	Title    string `json:"title"`
	Year     int    `json:"year,omitempty"`
	Episodes int    `json:"episodes,omitempty"`
}

const (
	titleWeight       = 70
	yearExact         = 20
	yearNear          = 10
	yearUnknown       = 5
	episodesExact     = 10
	episodesNear      = 5
	episodesUnknown   = 3
	backfillThreshold = 90
)

// Tokens lowercases s and splits it on anything that is not a letter or digit.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TitleScore is 70 for an exact normalized match, else Jaccard overlap of the
// token sets scaled to 70.
func TitleScore(a, b string) int {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if strings.Join(ta, " ") == strings.Join(tb, " ") {
		return titleWeight
	}
	set := make(map[string]uint8, len(ta)+len(tb))
	for _, t := range ta {
		set[t] |= 1
	}
	for _, t := range tb {
		set[t] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return int(math.Round(float64(inter) / float64(len(set)) * titleWeight))
}

func YearScore(want, got int) int {
	if want <= 0 || got <= 0 {
		return yearUnknown
	}
	switch d := want - got; {
	case d == 0:
		return yearExact
	case d == 1 || d == -1:
		return yearNear
	}
	return 0
}

func EpisodesScore(want, got int) int {
	if want <= 0 || got <= 0 {
		return episodesUnknown
	}
	if want == got {
		return episodesExact
	}
	diff := math.Abs(float64(want - got))
	if diff <= 0.1*math.Max(float64(want), float64(got)) {
		return episodesNear
	}
	return 0
}

// Score rates a candidate from 0 to 100.
func Score(q Query, c Candidate) int {
	s := TitleScore(q.Title, c.Title) + YearScore(q.Year, c.Year) + EpisodesScore(q.Episodes, c.Episodes)
	if s > 100 {
		return 100
	}
	return s
}
