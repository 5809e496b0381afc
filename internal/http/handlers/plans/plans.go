// Package plans реализует HTTP-обработчик каталога тарифов.
package plans

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Catalog отдаёт тарифы.
type Catalog interface {
	All() []models.Plan
}

// PlanView: представление тарифа в ответе.
type PlanView struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Level        int              `json:"level"`
	MonthlyPrice decimal.Decimal  `json:"monthly_price" swaggertype:"string"`
	YearlyPrice  decimal.Decimal  `json:"yearly_price" swaggertype:"string"`
	Limits       map[string]int64 `json:"limits"`
	Features     []string         `json:"features"`
}

// Handler обрабатывает запросы каталога.
type Handler struct {
	log     *slog.Logger
	catalog Catalog
}

// New создаёт Handler.
func New(log *slog.Logger, catalog Catalog) *Handler {
	return &Handler{
		log:     log,
		catalog: catalog,
	}
}

// ServeHTTP возвращает тарифы в порядке возрастания уровня.
//
// @Summary Каталог тарифов
// @Tags Plans
// @Produce  json
// @Success 200 {object} response.Response "Список тарифов"
// @Router /plans [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	all := h.catalog.All()
	views := make([]PlanView, 0, len(all))
	for _, p := range all {
		views = append(views, PlanView{
			ID:           p.ID,
			Name:         p.Name,
			Level:        p.Level,
			MonthlyPrice: p.MonthlyPrice,
			YearlyPrice:  p.YearlyPrice,
			Limits:       p.Limits,
			Features:     p.FeatureList(),
		})
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"plans": views,
	}))
}
