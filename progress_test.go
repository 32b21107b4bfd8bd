package main

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRankLeaderboard(t *testing.T) {
	entries := func() []leaderboardEntry {
		return []leaderboardEntry{
			{UserID: 1, TotalProgress: 10, TotalDistance: 30, TotalCalories: 100},
			{UserID: 2, TotalProgress: 25, TotalDistance: 5, TotalCalories: 300},
			{UserID: 3, TotalProgress: 25, TotalDistance: 12, TotalCalories: 50},
		}
	}
	ids := func(es []leaderboardEntry) []int {
		out := make([]int, len(es))
		for i, e := range es {
			out[i] = e.UserID
		}
		return out
	}

	tests := []struct {
		sortBy string
		want   []int
	}{
		{"totalProgress", []int{2, 3, 1}}, // tie keeps input order
		{"totalDistance", []int{1, 3, 2}},
		{"totalCalories", []int{2, 1, 3}},
		{"bogus", []int{2, 3, 1}},
		{"", []int{2, 3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.sortBy, func(t *testing.T) {
			got := rankLeaderboard(entries(), tt.sortBy)
			assert.Equal(t, tt.want, ids(got))
			for i, e := range got {
				assert.Equal(t, i+1, e.Rank)
			}
		})
	}
}

func TestProgressPercentage(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	assert.Equal(t, 50, progressPercentage(21, f(42)))
	assert.Equal(t, 100, progressPercentage(500, f(42)), "clamped at 100")
	assert.Equal(t, 0, progressPercentage(-5, f(42)), "clamped at 0")
	assert.Equal(t, 33, progressPercentage(33.4, nil), "nil target defaults to 100")
	assert.Equal(t, 12, progressPercentage(12, f(0)), "zero target defaults to 100")
	assert.Equal(t, 12, progressPercentage(12, f(-3)), "negative target defaults to 100")
	assert.Equal(t, 67, progressPercentage(2, f(3)))
}

func TestBuildParticipantPage(t *testing.T) {
	joined := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	rows := []participantRow{
		{UserID: 1, Username: "lan", FullName: "Nguyễn Thị Lan", JoinedAt: joined},
		{UserID: 2, Username: "minh", FullName: "Trần Minh", JoinedAt: joined},
		{UserID: 3, Username: "hoa", FullName: "Lê Hoa", JoinedAt: joined},
		{UserID: 4, Username: "quiet", FullName: "No Progress", JoinedAt: joined},
	}
	totals := []progressTotal{
		{UserID: 1, TotalProgress: 40, EntryCount: 4},
		{UserID: 2, TotalProgress: 90, EntryCount: 3},
		{UserID: 3, TotalProgress: 15, EntryCount: 1},
	}
	target := 80.0

	t.Run("sorted with zero progress for absent users", func(t *testing.T) {
		p := buildParticipantPage(rows, totals, &target, "", 1, 10)
		assert.Equal(t, 4, p.Total)
		assert.Equal(t, 1, p.TotalPages)
		if assert.Len(t, p.Participants, 4) {
			assert.Equal(t, 2, p.Participants[0].UserID)
			assert.Equal(t, 100, p.Participants[0].ProgressPercentage)
			assert.Equal(t, 1, p.Participants[1].UserID)
			assert.Equal(t, 50, p.Participants[1].ProgressPercentage)
			assert.Equal(t, 4, p.Participants[3].UserID)
			assert.Zero(t, p.Participants[3].TotalProgress)
			assert.Zero(t, p.Participants[3].EntryCount)
		}
	})

	t.Run("search is case-insensitive on name and username", func(t *testing.T) {
		p := buildParticipantPage(rows, totals, &target, "  MINH ", 1, 10)
		assert.Equal(t, 1, p.Total)
		assert.Equal(t, 2, p.Participants[0].UserID)

		p = buildParticipantPage(rows, totals, &target, "HOA", 1, 10)
		assert.Equal(t, 1, p.Total)
		assert.Equal(t, 3, p.Participants[0].UserID)
	})

	t.Run("pagination", func(t *testing.T) {
		p := buildParticipantPage(rows, totals, &target, "", 2, 3)
		assert.Equal(t, 4, p.Total)
		assert.Equal(t, 2, p.TotalPages)
		if assert.Len(t, p.Participants, 1) {
			assert.Equal(t, 4, p.Participants[0].UserID)
		}

		p = buildParticipantPage(rows, totals, &target, "", 5, 3)
		assert.Empty(t, p.Participants)
		assert.NotNil(t, p.Participants)
	})

	t.Run("huge page is empty", func(t *testing.T) {
		for _, page := range []int{math.MaxInt, maxPage, math.MaxInt / 3} {
			p := buildParticipantPage(rows, totals, &target, "", page, 10)
			assert.Empty(t, p.Participants, "page %d", page)
			assert.Equal(t, 4, p.Total)
		}
	})
}

func TestLeaderboardKey(t *testing.T) {
	assert.Equal(t, "leaderboard:12:totalDistance", leaderboardKey(12, "totalDistance"))
}
