package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errQueryFailed = errors.New("query failed")

// recordingDB fails every statement and keeps the SQL it was asked to run.
type recordingDB struct {
	sql []string
}

func (r *recordingDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	r.sql = append(r.sql, sql)
	return nil, errQueryFailed
}

func (r *recordingDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.sql = append(r.sql, sql)
	return pgconn.CommandTag{}, errQueryFailed
}

// countingCache reports a hit for every lookup and counts them.
type countingCache struct {
	gets int
}

func (c *countingCache) get(context.Context, int, string) ([]leaderboardEntry, bool) {
	c.gets++
	return []leaderboardEntry{{UserID: 7, Rank: 1}}, true
}
func (c *countingCache) set(context.Context, int, string, []leaderboardEntry) {}
func (c *countingCache) invalidate(context.Context, int)                      {}

// newOfflineHandler returns a Handler whose pool points at a closed port, so
// the first statement of any request fails and the handler reports which
// lookup it was.
func newOfflineHandler(t *testing.T) *Handler {
	t.Helper()
	pool, err := pgxpool.New(context.Background(), "postgres://test@127.0.0.1:1/test?connect_timeout=1")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	h := newTestHandler()
	h.db = pool
	return h
}

func TestEventVisibleTo(t *testing.T) {
	public := sportEvent{ID: 1, OwnerID: 10, IsPublic: true}
	private := sportEvent{ID: 2, OwnerID: 10, IsPublic: false}

	tests := []struct {
		name   string
		ev     sportEvent
		userID int
		joined bool
		want   bool
	}{
		{"public to stranger", public, 20, false, true},
		{"private to owner", private, 10, false, true},
		{"private to participant", private, 20, true, true},
		{"private to stranger", private, 20, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eventVisibleTo(tt.ev, tt.userID, tt.joined))
		})
	}
}

func TestLoadVisibleSession_ChecksEventFirst(t *testing.T) {
	db := &recordingDB{}
	_, err := loadVisibleSession(context.Background(), db, 1, 2, 3)
	require.ErrorIs(t, err, errQueryFailed)

	require.Len(t, db.sql, 1)
	assert.Contains(t, db.sql[0], "FROM sport_events")
	assert.NotContains(t, db.sql[0], "sport_event_sessions")
}

func TestLoadComment_Lock(t *testing.T) {
	db := &recordingDB{}

	_, err := loadComment(context.Background(), db, 1, 2, false)
	require.ErrorIs(t, err, errQueryFailed)
	_, err = loadComment(context.Background(), db, 1, 2, true)
	require.ErrorIs(t, err, errQueryFailed)

	require.Len(t, db.sql, 2)
	assert.NotContains(t, db.sql[0], "FOR UPDATE")
	assert.True(t, strings.HasSuffix(db.sql[1], " FOR UPDATE OF cm"), db.sql[1])
}

func TestEventReads_CheckVisibilityFirst(t *testing.T) {
	r := newTestRouter(newOfflineHandler(t))
	auth := bearer(t, 1)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"sessions", "/api/sport-events/5/sessions", "failed to fetch sport event"},
		{"participants", "/api/sport-events/5/participants", "failed to fetch sport event"},
		{"progress", "/api/sport-events/5/progress", "failed to fetch sport event"},
		{"session", "/api/sport-events/5/sessions/9", "failed to fetch session"},
		{"attendance", "/api/sport-events/5/sessions/9/attendance", "failed to fetch session"},
		{"is checked in", "/api/sport-events/5/sessions/9/is-checked-in", "failed to fetch session"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodGet, tt.path, auth, "")
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, tt.want, decodeError(t, w).Error)
		})
	}
}

func TestGetLeaderboard_VisibilityBeforeCache(t *testing.T) {
	h := newOfflineHandler(t)
	cache := &countingCache{}
	h.cache = cache
	r := newTestRouter(h)

	w := doJSON(r, http.MethodGet, "/api/sport-events/5/leaderboard", bearer(t, 1), "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed to fetch sport event", decodeError(t, w).Error)
	assert.Zero(t, cache.gets)
}
