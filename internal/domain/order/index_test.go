package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextIndex(t *testing.T) {
	now := time.Date(2025, 6, 14, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		last string
		want string
	}{
		{name: "first order of month", last: "", want: "2506001"},
		{name: "increments sequence", last: "2506041", want: "2506042"},
		{name: "carries into tens", last: "2506009", want: "2506010"},
		{name: "widens past 999", last: "2506999", want: "25061000"},
		{name: "keeps counting when widened", last: "25061000", want: "25061001"},
		{name: "foreign prefix uses last three digits", last: "2505017", want: "2506018"},
		{name: "garbage starts over", last: "abc", want: "2506001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextIndex(now, tt.last))
		})
	}
}

func TestMonthStart(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	now := time.Date(2025, 12, 31, 23, 59, 59, 0, loc)

	got := MonthStart(now)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, loc), got)
	assert.Equal(t, loc, got.Location())
}
