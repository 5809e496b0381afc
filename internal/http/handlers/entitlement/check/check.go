// Package check реализует HTTP-обработчик проверки доступа к тарифу.
package check

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-engine/internal/access"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
)

// Service сравнивает тариф пользователя с требуемым.
type Service interface {
	CheckAccess(ctx context.Context, userID, requiredTier string) (access.Decision, error)
}

// Handler обрабатывает запросы проверки доступа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP отвечает 200, если тариф пользователя не ниже {tier}, иначе 403.
// В обоих случаях тело содержит текущий и требуемый тарифы.
//
// @Summary Проверить доступ к тарифу
// @Tags Entitlements
// @Produce  json
// @Param tier path string true "Требуемый тариф" example(PRO)
// @Success 200 {object} response.Response "Доступ разрешён"
// @Failure 400 {object} response.ErrorResponse "Неизвестный тариф"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.Response "Доступ запрещён"
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /access/{tier} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.check"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		log.Error("user id not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	tier := strings.TrimSpace(chi.URLParam(r, "tier"))
	if tier == "" {
		log.Error("tier is missing in url")
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("tier is required"))
		return
	}

	d, err := h.service.CheckAccess(r.Context(), userID, tier)
	if err != nil {
		log.Error("failed to check access", sl.Err(err))
		status, body := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	if !d.Allowed {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.ErrorWithData("plan upgrade required", d))
		return
	}
	render.JSON(w, r, response.StatusOKWithData(d))
}
