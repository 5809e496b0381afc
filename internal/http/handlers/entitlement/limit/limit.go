// Package limit реализует HTTP-обработчик проверки лимита ресурса.
package limit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-engine/internal/access"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
)

// Service проверяет лимиты тарифа.
type Service interface {
	CheckLimit(ctx context.Context, userID, limit string, used int64) (access.LimitDecision, error)
}

// Handler обрабатывает запросы проверки лимита.
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

// ServeHTTP отвечает 200, если при used уже созданных ресурсах можно создать ещё один,
// иначе 403. Отсутствующий used считается нулём.
//
// @Summary Проверить лимит ресурса
// @Tags Entitlements
// @Produce  json
// @Param name path string true "Имя лимита" example(cards)
// @Param used query int false "Сколько ресурсов уже создано"
// @Success 200 {object} response.Response "Лимит не исчерпан"
// @Failure 400 {object} response.ErrorResponse "Неизвестный лимит или некорректный used"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.Response "Лимит исчерпан"
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /limits/{name} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.limit"

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

	name := strings.TrimSpace(chi.URLParam(r, "name"))
	var used int64
	if raw := r.URL.Query().Get("used"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Error("invalid used parameter", slog.String("used", raw))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("used must be an integer"))
			return
		}
		used = v
	}

	d, err := h.service.CheckLimit(r.Context(), userID, name, used)
	if err != nil {
		log.Error("failed to check limit", sl.Err(err))
		status, body := response.FromError(err)
		render.Status(r, status)
		render.JSON(w, r, body)
		return
	}

	if !d.Allowed {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.ErrorWithData("plan limit reached", d))
		return
	}
	render.JSON(w, r, response.StatusOKWithData(d))
}
