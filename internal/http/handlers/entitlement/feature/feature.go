// Package feature реализует HTTP-обработчик проверки возможности тарифа.
package feature

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

// Service проверяет возможности тарифа.
type Service interface {
	CheckFeature(ctx context.Context, userID, feature string) (access.FeatureDecision, error)
}

// Handler обрабатывает запросы проверки возможности.
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

// ServeHTTP отвечает 200, если возможность {name} входит в тариф пользователя, иначе 403.
//
// @Summary Проверить возможность тарифа
// @Tags Entitlements
// @Produce  json
// @Param name path string true "Возможность" example(export)
// @Success 200 {object} response.Response "Возможность доступна"
// @Failure 400 {object} response.ErrorResponse "Неизвестная возможность"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.Response "Возможность недоступна"
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /features/{name} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.feature"

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

	d, err := h.service.CheckFeature(r.Context(), userID, strings.TrimSpace(chi.URLParam(r, "name")))
	if err != nil {
		log.Error("failed to check feature", sl.Err(err))
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
