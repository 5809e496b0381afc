// Package catalog содержит статический реестр тарифных планов: их порядок,
// цены и лимиты. Реестр строится один раз при старте процесса и далее
// только читается.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Идентификаторы тарифов.
const (
	Free     = "FREE"
	Pro      = "PRO"
	ProPlus  = "PRO_PLUS"
	Business = "BUSINESS"
)

// Имена лимитов.
const (
	LimitCards     = "cards"
	LimitContacts  = "contacts"
	LimitCVs       = "cvs"
	LimitQRCodes   = "qr_codes"
	LimitStorageMB = "storage_mb"
)

// Возможности тарифов.
const (
	FeatureCustomQR        = "custom_qr"
	FeatureAnalytics       = "analytics"
	FeatureCustomDomain    = "custom_domain"
	FeatureExport          = "export"
	FeatureTeam            = "team"
	FeatureAPIAccess       = "api_access"
	FeaturePrioritySupport = "priority_support"
)

// Catalog: неизменяемый реестр планов.
type Catalog struct {
	byID   map[string]models.Plan
	sorted []models.Plan
	free   models.Plan
}

// New строит каталог из списка планов. Уровни должны быть уникальны,
// а план уровня 0 считается бесплатным тарифом по умолчанию.
func New(plans []models.Plan) (*Catalog, error) {
	const op = "catalog.New"

	c := &Catalog{byID: make(map[string]models.Plan, len(plans))}
	levels := make(map[int]string, len(plans))
	hasFree := false
	for _, p := range plans {
		id := strings.ToUpper(p.ID)
		if id == "" {
			return nil, fmt.Errorf("%s: plan with empty id", op)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("%s: duplicate plan %s", op, id)
		}
		if other, dup := levels[p.Level]; dup {
			return nil, fmt.Errorf("%s: plans %s and %s share level %d", op, other, id, p.Level)
		}
		if p.MonthlyPrice.IsNegative() || p.YearlyPrice.IsNegative() {
			return nil, fmt.Errorf("%s: plan %s has negative price", op, id)
		}
		p.ID = id
		levels[p.Level] = id
		c.byID[id] = p
		c.sorted = append(c.sorted, p)
		if p.Level == 0 {
			c.free = p
			hasFree = true
		}
	}
	if !hasFree {
		return nil, fmt.Errorf("%s: no level 0 plan", op)
	}
	sort.Slice(c.sorted, func(i, j int) bool { return c.sorted[i].Level < c.sorted[j].Level })
	return c, nil
}

// Default возвращает каталог со стандартными тарифами сервиса.
func Default() *Catalog {
	c, err := New(DefaultPlans())
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup возвращает план по идентификатору. Регистр не учитывается.
func (c *Catalog) Lookup(planID string) (models.Plan, error) {
	p, ok := c.byID[strings.ToUpper(strings.TrimSpace(planID))]
	if !ok {
		return models.Plan{}, fmt.Errorf("%w: %q", models.ErrInvalidPlan, planID)
	}
	return p, nil
}

// IsUpgrade сообщает, является ли переход с уровня from на уровень to повышением.
func (c *Catalog) IsUpgrade(fromLevel, toLevel int) bool {
	return toLevel > fromLevel
}

// Free возвращает бесплатный план.
func (c *Catalog) Free() models.Plan {
	return c.free
}

// All возвращает все планы по возрастанию уровня.
func (c *Catalog) All() []models.Plan {
	out := make([]models.Plan, len(c.sorted))
	copy(out, c.sorted)
	return out
}

// KnownLimit сообщает, задан ли лимит name хотя бы в одном плане.
func (c *Catalog) KnownLimit(name string) bool {
	for _, p := range c.sorted {
		if _, ok := p.Limits[name]; ok {
			return true
		}
	}
	return false
}

// KnownFeature сообщает, входит ли возможность name хотя бы в один план.
func (c *Catalog) KnownFeature(name string) bool {
	for _, p := range c.sorted {
		if p.Features[name] {
			return true
		}
	}
	return false
}

// DefaultPlans: стандартная таблица тарифов.
func DefaultPlans() []models.Plan {
	return []models.Plan{
		{
			ID:           Free,
			Name:         "Free",
			Level:        0,
			MonthlyPrice: decimal.Zero,
			YearlyPrice:  decimal.Zero,
			Limits: map[string]int64{
				LimitCards:     1,
				LimitContacts:  50,
				LimitCVs:       1,
				LimitQRCodes:   1,
				LimitStorageMB: 10,
			},
			Features: map[string]bool{},
		},
		{
			ID:           Pro,
			Name:         "Pro",
			Level:        1,
			MonthlyPrice: decimal.NewFromInt(99),
			YearlyPrice:  decimal.NewFromInt(990),
			Limits: map[string]int64{
				LimitCards:     5,
				LimitContacts:  500,
				LimitCVs:       5,
				LimitQRCodes:   10,
				LimitStorageMB: 500,
			},
			Features: map[string]bool{
				FeatureCustomQR:  true,
				FeatureAnalytics: true,
			},
		},
		{
			ID:           ProPlus,
			Name:         "Pro Plus",
			Level:        2,
			MonthlyPrice: decimal.NewFromInt(199),
			YearlyPrice:  decimal.NewFromInt(1990),
			Limits: map[string]int64{
				LimitCards:     20,
				LimitContacts:  5000,
				LimitCVs:       20,
				LimitQRCodes:   100,
				LimitStorageMB: 2048,
			},
			Features: map[string]bool{
				FeatureCustomQR:     true,
				FeatureAnalytics:    true,
				FeatureCustomDomain: true,
				FeatureExport:       true,
			},
		},
		{
			ID:           Business,
			Name:         "Business",
			Level:        3,
			MonthlyPrice: decimal.NewFromInt(499),
			YearlyPrice:  decimal.NewFromInt(4990),
			Limits: map[string]int64{
				LimitCards:     models.Unlimited,
				LimitContacts:  models.Unlimited,
				LimitCVs:       models.Unlimited,
				LimitQRCodes:   models.Unlimited,
				LimitStorageMB: 20480,
			},
			Features: map[string]bool{
				FeatureCustomQR:        true,
				FeatureAnalytics:       true,
				FeatureCustomDomain:    true,
				FeatureExport:          true,
				FeatureTeam:            true,
				FeatureAPIAccess:       true,
				FeaturePrioritySupport: true,
			},
		},
	}
}
