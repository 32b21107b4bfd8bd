package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptionFromFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2026-10-01-002-sport-events.sql", "sport events"},
		{"2026-10-01-004-meal-schedules.sql", "meal schedules"},
		{"no-prefix.sql", "no prefix"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, descriptionFromFilename(tt.in), tt.in)
	}
}

func TestPendingMigrations(t *testing.T) {
	files := []string{
		"db/2026-10-01-003-meal-plans.sql",
		"db/2026-10-01-001-users-and-profiles.sql",
		"db/2026-10-01-002-sport-events.sql",
	}
	applied := map[string]bool{"2026-10-01-001-users-and-profiles.sql": true}

	got := pendingMigrations(files, applied)
	assert.Equal(t, []string{
		"db/2026-10-01-002-sport-events.sql",
		"db/2026-10-01-003-meal-plans.sql",
	}, got)
	assert.Equal(t, "db/2026-10-01-003-meal-plans.sql", files[0], "input must not be reordered")
}

func TestPendingMigrations_AllApplied(t *testing.T) {
	got := pendingMigrations([]string{"db/a.sql"}, map[string]bool{"a.sql": true})
	assert.Empty(t, got)
}

func TestRun_RequiresDBURL(t *testing.T) {
	err := run(context.Background(), "", "db", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_URL")
}

func TestRun_NoFiles(t *testing.T) {
	err := run(context.Background(), "postgres://unused", t.TempDir(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migration files")
}
