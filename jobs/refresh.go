package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/accessd/accessd/internal/authz"
)

// Enqueuer schedules claims refresh tasks. It satisfies the roles service's
// refresh hook.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer constructs an Enqueuer over the given Redis connection.
func NewEnqueuer(redisOpts asynq.RedisClientOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redisOpts)}
}

// RefreshRole enqueues a refresh for every member of the role.
func (e *Enqueuer) RefreshRole(ctx context.Context, roleID int64) error {
	task, err := NewClaimsRefreshTask(ClaimsRefreshPayload{RoleID: roleID})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// RefreshUser enqueues a refresh for one user.
func (e *Enqueuer) RefreshUser(ctx context.Context, userID int64) error {
	task, err := NewClaimsRefreshTask(ClaimsRefreshPayload{UserIDs: []int64{userID}})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases the underlying client.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// MembershipLister resolves role membership for fan-out.
type MembershipLister interface {
	UserIDsForRole(ctx context.Context, roleID int64) ([]int64, error)
}

// SessionLister resolves live sessions for a set of users.
type SessionLister interface {
	SessionIDsForUsers(ctx context.Context, userIDs []int64) ([]string, error)
}

// RefreshHandler processes claims refresh tasks: it maps the payload to live
// session ids and drops their cached claims so the next request re-resolves.
type RefreshHandler struct {
	members  MembershipLister
	sessions SessionLister
	claims   *authz.ClaimsCache
	logger   *slog.Logger
}

// NewRefreshHandler constructs a RefreshHandler.
func NewRefreshHandler(members MembershipLister, sessions SessionLister, claims *authz.ClaimsCache, logger *slog.Logger) *RefreshHandler {
	return &RefreshHandler{members: members, sessions: sessions, claims: claims, logger: logger}
}

// ProcessTask implements asynq.Handler for TaskTypeClaimsRefresh.
func (h *RefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ClaimsRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	userIDs := payload.UserIDs
	if payload.RoleID != 0 {
		ids, err := h.members.UserIDsForRole(ctx, payload.RoleID)
		if err != nil {
			return err
		}
		userIDs = append(userIDs, ids...)
	}
	if len(userIDs) == 0 {
		return nil
	}

	sessionIDs, err := h.sessions.SessionIDsForUsers(ctx, userIDs)
	if err != nil {
		return err
	}
	if len(sessionIDs) == 0 {
		return nil
	}
	if err := h.claims.Invalidate(ctx, sessionIDs...); err != nil {
		return err
	}
	if h.logger != nil {
		h.logger.Info("claims refreshed",
			slog.Int("users", len(userIDs)),
			slog.Int("sessions", len(sessionIDs)))
	}
	return nil
}
