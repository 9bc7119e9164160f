package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/accessd/accessd/internal/authz"
)

type stubMembers struct {
	byRole map[int64][]int64
	err    error
}

func (s *stubMembers) UserIDsForRole(ctx context.Context, roleID int64) ([]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byRole[roleID], nil
}

type stubSessions struct {
	byUser map[int64][]string
}

func (s *stubSessions) SessionIDsForUsers(ctx context.Context, userIDs []int64) ([]string, error) {
	var ids []string
	for _, uid := range userIDs {
		ids = append(ids, s.byUser[uid]...)
	}
	return ids, nil
}

func newClaimsFixture(t *testing.T) *authz.ClaimsCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return authz.NewClaimsCache(client, time.Hour)
}

func mustTask(t *testing.T, payload ClaimsRefreshPayload) *asynq.Task {
	t.Helper()
	task, err := NewClaimsRefreshTask(payload)
	require.NoError(t, err)
	return task
}

func TestRefreshRoleFansOutToMembers(t *testing.T) {
	ctx := context.Background()
	claims := newClaimsFixture(t)
	require.NoError(t, claims.Store(ctx, "sess-1", authz.NewPermissionSet("a")))
	require.NoError(t, claims.Store(ctx, "sess-2", authz.NewPermissionSet("b")))
	require.NoError(t, claims.Store(ctx, "sess-other", authz.NewPermissionSet("c")))

	members := &stubMembers{byRole: map[int64][]int64{5: {1, 2}}}
	sessions := &stubSessions{byUser: map[int64][]string{1: {"sess-1"}, 2: {"sess-2"}, 3: {"sess-other"}}}
	h := NewRefreshHandler(members, sessions, claims, nil)

	require.NoError(t, h.ProcessTask(ctx, mustTask(t, ClaimsRefreshPayload{RoleID: 5})))

	for _, id := range []string{"sess-1", "sess-2"} {
		_, found, err := claims.Load(ctx, id)
		require.NoError(t, err)
		require.False(t, found, "claims for %s should be dropped", id)
	}
	_, found, err := claims.Load(ctx, "sess-other")
	require.NoError(t, err)
	require.True(t, found, "unrelated session must keep its claims")
}

func TestRefreshSingleUser(t *testing.T) {
	ctx := context.Background()
	claims := newClaimsFixture(t)
	require.NoError(t, claims.Store(ctx, "sess-9", authz.NewPermissionSet("x")))

	sessions := &stubSessions{byUser: map[int64][]string{9: {"sess-9"}}}
	h := NewRefreshHandler(&stubMembers{}, sessions, claims, nil)

	require.NoError(t, h.ProcessTask(ctx, mustTask(t, ClaimsRefreshPayload{UserIDs: []int64{9}})))

	_, found, err := claims.Load(ctx, "sess-9")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRefreshNoLiveSessionsIsNoop(t *testing.T) {
	h := NewRefreshHandler(&stubMembers{}, &stubSessions{}, newClaimsFixture(t), nil)
	require.NoError(t, h.ProcessTask(context.Background(), mustTask(t, ClaimsRefreshPayload{UserIDs: []int64{1}})))
}

func TestRefreshBadPayloadSkipsRetry(t *testing.T) {
	h := NewRefreshHandler(&stubMembers{}, &stubSessions{}, newClaimsFixture(t), nil)
	task := asynq.NewTask(TaskTypeClaimsRefresh, []byte("{not json"))
	err := h.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRefreshMembershipFailureRetries(t *testing.T) {
	members := &stubMembers{err: errors.New("db down")}
	h := NewRefreshHandler(members, &stubSessions{}, newClaimsFixture(t), nil)
	err := h.ProcessTask(context.Background(), mustTask(t, ClaimsRefreshPayload{RoleID: 1}))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

type stubSweeper struct {
	removed int64
	err     error
}

func (s *stubSweeper) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return s.removed, s.err
}

func TestSweepHandler(t *testing.T) {
	h := NewSweepHandler(&stubSweeper{removed: 3}, nil)
	require.NoError(t, h.ProcessTask(context.Background(), NewSessionSweepTask()))

	h = NewSweepHandler(&stubSweeper{err: errors.New("db down")}, nil)
	require.Error(t, h.ProcessTask(context.Background(), NewSessionSweepTask()))
}
