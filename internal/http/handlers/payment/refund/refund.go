// Package refund реализует HTTP-обработчик возврата по платёжной записи.
package refund

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Request: тело запроса на возврат.
type Request struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"49.50"`
}

// Service оформляет возврат.
type Service interface {
	Refund(ctx context.Context, recordID string, amount decimal.Decimal) (*models.PaymentRecord, error)
}

// Handler обрабатывает запросы на возврат.
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

// ServeHTTP оформляет частичный или полный возврат по платежу {id}.
//
// @Summary Возврат платежа
// @Description Создаёт запись возврата, связанную с исходным платежом. Доступно только администраторам.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param id path string true "ID платёжной записи"
// @Param request body Request true "Сумма возврата"
// @Success 201 {object} response.Response "Запись возврата"
// @Failure 400 {object} response.ErrorResponse "Некорректная сумма"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 404 {object} response.ErrorResponse "Платёж не найден"
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /payments/{id}/refund [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.refund"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	recordID := chi.URLParam(r, "id")

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}

	rec, err := h.service.Refund(r.Context(), recordID, req.Amount)
	if err != nil {
		log.Error("failed to refund payment", slog.String("payment_id", recordID), sl.Err(err))
		status, body := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	log.Info("payment refunded", slog.String("payment_id", recordID), slog.String("refund_id", rec.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"refund": rec,
	}))
}
