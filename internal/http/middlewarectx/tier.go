package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-engine/internal/access"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
)

// AccessChecker сравнивает тариф пользователя с требуемым.
type AccessChecker interface {
	CheckAccess(ctx context.Context, userID, requiredTier string) (access.Decision, error)
}

// RequireTier пропускает запрос, только если текущий тариф пользователя не ниже tier.
// Право доступа вычисляется заново на каждый запрос.
func RequireTier(log *slog.Logger, checker AccessChecker, tier string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.RequireTier"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			userID, ok := UserIDFrom(r.Context())
			if !ok {
				log.Warn("user id not found in context")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}

			d, err := checker.CheckAccess(r.Context(), userID, tier)
			if err != nil {
				log.Error("failed to check access", sl.Err(err))
				status, body := response.FromError(err)
				render.Status(r, status)
				render.JSON(w, r, body)
				return
			}
			if !d.Allowed {
				log.Info("access denied",
					sl.User(userID),
					slog.String("current_tier", d.CurrentTier),
					slog.String("required_tier", d.RequiredTier))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.ErrorWithData("plan upgrade required", d))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
