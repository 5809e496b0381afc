// Package subscribe реализует HTTP-обработчик оформления подписки.
package subscribe

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
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Request: тело запроса на оформление подписки. Пустой billing_cycle означает MONTHLY.
type Request struct {
	PlanID       string `json:"plan_id" validate:"required" example:"PRO"`
	BillingCycle string `json:"billing_cycle,omitempty" example:"MONTHLY"`
}

// Service описывает бизнес-логику оформления подписки.
type Service interface {
	Subscribe(ctx context.Context, userID, planID string, cycle models.BillingCycle) (*models.Subscription, error)
}

// Handler обрабатывает запросы на оформление подписки.
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

// ServeHTTP оформляет подписку текущего пользователя.
//
// @Summary Оформить подписку
// @Description Оформляет подписку на платный тариф. Первый платёжный цикл записывается в журнал.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Param request body Request true "Тариф и период оплаты"
// @Success 201 {object} response.Response "Созданная подписка"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос или неизвестный тариф"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Уже есть действующая подписка"
// @Failure 422 {object} response.ErrorResponse "Переход не разрешён"
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /subscriptions [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.subscribe"

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

	cycle := models.CycleMonthly
	if req.BillingCycle != "" {
		var err error
		cycle, err = models.ParseBillingCycle(req.BillingCycle)
		if err != nil {
			log.Error("invalid billing cycle", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("billing_cycle must be MONTHLY or YEARLY"))
			return
		}
	}

	sub, err := h.service.Subscribe(r.Context(), userID, req.PlanID, cycle)
	if err != nil {
		log.Error("failed to subscribe", sl.Err(err))
		status, body := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	log.Info("subscription created", slog.String("subscription_id", sub.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription": sub,
	}))
}
