package authz

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/accessd/accessd/internal/shared"
)

type authzContextKey struct{}

// WithContext stores the authorization context in the request context.
func WithContext(ctx context.Context, ac Context) context.Context {
	return context.WithValue(ctx, authzContextKey{}, ac)
}

// FromContext extracts the authorization context placed by the middleware.
func FromContext(ctx context.Context) (Context, bool) {
	ac, ok := ctx.Value(authzContextKey{}).(Context)
	return ac, ok
}

// DecisionRecorder receives policy decisions for metrics.
type DecisionRecorder interface {
	RecordDecision(policyID string, decision Decision)
}

// Middleware gates HTTP routes on policy decisions. It loads the principal
// from the session, builds the authorization context at most once per
// session via the claims cache, and evaluates the required policies.
type Middleware struct {
	Builder   *Builder
	Evaluator *Evaluator
	Claims    *ClaimsCache
	Logger    *slog.Logger
	Metrics   DecisionRecorder
}

// RequirePolicy denies with 403 unless every listed policy is granted.
func (m Middleware) RequirePolicy(policyIDs ...string) func(http.Handler) http.Handler {
	return m.require(policyIDs, true)
}

// RequireAny denies with 403 unless at least one listed policy is granted.
func (m Middleware) RequireAny(policyIDs ...string) func(http.Handler) http.Handler {
	return m.require(policyIDs, false)
}

func (m Middleware) require(policyIDs []string, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(policyIDs) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			ac, ok := m.authorizationContext(w, r)
			if !ok {
				return
			}
			granted := 0
			for _, id := range policyIDs {
				decision := m.Evaluator.Authorize(ac, id)
				if m.Metrics != nil {
					m.Metrics.RecordDecision(id, decision)
				}
				if decision == Granted {
					granted++
				}
			}
			pass := granted == len(policyIDs)
			if !all {
				pass = granted > 0
			}
			if !pass {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ac)))
		})
	}
}

// BuildContext materializes the authorization context for the current
// session without gating, for endpoints that surface the resolution itself.
func (m Middleware) BuildContext(r *http.Request) (Context, bool, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		return Context{}, false, nil
	}
	ident, err := m.materialize(r.Context(), sess)
	if err != nil {
		return Context{}, false, err
	}
	return NewContext(ident), true, nil
}

func (m Middleware) authorizationContext(w http.ResponseWriter, r *http.Request) (Context, bool) {
	ac, authenticated, err := m.BuildContext(r)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("authz build context", slog.Any("error", err))
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return Context{}, false
	}
	if !authenticated {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return Context{}, false
	}
	return ac, true
}

func (m Middleware) materialize(ctx context.Context, sess *shared.Session) (*Identity, error) {
	ident := NewIdentity(Fact{Kind: FactKindUserID, Value: sess.User()})

	cached := false
	if m.Claims != nil {
		set, found, err := m.Claims.Load(ctx, sess.ID)
		if err != nil && m.Logger != nil {
			// Cache trouble degrades to a fresh resolve.
			m.Logger.Warn("authz claims load", slog.Any("error", err))
		}
		if found {
			m.Builder.Restore(ident, set)
			cached = true
		}
	}

	if err := m.Builder.BuildOnce(ctx, ident); err != nil {
		return nil, err
	}

	if !cached && m.Claims != nil {
		if err := m.Claims.Store(ctx, sess.ID, NewPermissionSet(ident.Permissions()...)); err != nil && m.Logger != nil {
			m.Logger.Warn("authz claims store", slog.Any("error", err))
		}
	}
	return ident, nil
}
