// Package upgrade реализует HTTP-обработчик повышения тарифа.
package upgrade

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/services/subscription"
)

// Request: тело запроса на повышение тарифа.
type Request struct {
	PlanID string `json:"plan_id" validate:"required" example:"BUSINESS"`
}

// Service описывает бизнес-логику повышения тарифа.
type Service interface {
	Upgrade(ctx context.Context, userID, newPlanID string) (*subscription.UpgradeResult, error)
}

// Handler обрабатывает запросы на повышение тарифа.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP повышает тариф действующей подписки.
//
// @Summary Повысить тариф
// @Description Переводит действующую подписку на более высокий тариф. За остаток цикла списывается доплата.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Param request body Request true "Новый тариф"
// @Success 200 {object} response.Response "Подписка, сумма доплаты и платёжная запись"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос или неизвестный тариф"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Нет действующей подписки или тариф не выше текущего"
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /subscriptions/upgrade [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.upgrade"

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

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.service.Upgrade(r.Context(), userID, req.PlanID)
	if err != nil {
		log.Error("failed to upgrade subscription", sl.Err(err))
		status, body := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	log.Info("subscription upgraded", slog.String("plan_id", req.PlanID), sl.Money("charged", res.Charged))
	render.JSON(w, r, response.StatusOKWithData(res))
}
