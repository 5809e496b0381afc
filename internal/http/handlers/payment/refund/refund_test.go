package refund

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Refund(ctx context.Context, recordID string, amount decimal.Decimal) (*models.PaymentRecord, error) {
	args := m.Called(ctx, recordID, amount)
	rec, _ := args.Get(0).(*models.PaymentRecord)
	return rec, args.Error(1)
}

func amountEq(s string) any {
	want := decimal.RequireFromString(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func TestRefundHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
	}{
		{
			name: "строковая сумма",
			body: `{"amount":"49.50"}`,
			setupMock: func(m *MockService) {
				m.On("Refund", mock.Anything, "p1", amountEq("49.50")).
					Return(&models.PaymentRecord{ID: "r1", Kind: models.KindRefund}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "числовая сумма",
			body: `{"amount":10}`,
			setupMock: func(m *MockService) {
				m.On("Refund", mock.Anything, "p1", amountEq("10")).
					Return(&models.PaymentRecord{ID: "r1", Kind: models.KindRefund}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "некорректная сумма",
			body:           `{"amount":"ten"}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "превышение суммы",
			body: `{"amount":"1000"}`,
			setupMock: func(m *MockService) {
				m.On("Refund", mock.Anything, "p1", amountEq("1000")).
					Return(nil, fmt.Errorf("op: %w", models.ErrValidation))
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "платёж не найден",
			body: `{"amount":"1"}`,
			setupMock: func(m *MockService) {
				m.On("Refund", mock.Anything, "p1", amountEq("1")).
					Return(nil, fmt.Errorf("op: %w", models.ErrNotFound))
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockService)
			tt.setupMock(m)

			r := chi.NewRouter()
			r.Post("/payments/{id}/refund", New(logger, m).ServeHTTP)

			req := httptest.NewRequest(http.MethodPost, "/payments/p1/refund", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			m.AssertExpectations(t)
		})
	}
}
