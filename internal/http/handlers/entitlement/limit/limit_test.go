package limit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/entitlement-engine/internal/access"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CheckLimit(ctx context.Context, userID, limit string, used int64) (access.LimitDecision, error) {
	args := m.Called(ctx, userID, limit, used)
	return args.Get(0).(access.LimitDecision), args.Error(1)
}

func TestLimitHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	tests := []struct {
		name           string
		path           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "лимит не исчерпан",
			path: "/limits/cards?used=2",
			setupMock: func(m *MockService) {
				m.On("CheckLimit", mock.Anything, "u1", "cards", int64(2)).
					Return(access.LimitDecision{Allowed: true, Limit: "cards", Capacity: 5, Used: 2, CurrentTier: "PRO"}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"capacity":5`,
		},
		{
			name: "used по умолчанию ноль",
			path: "/limits/cards",
			setupMock: func(m *MockService) {
				m.On("CheckLimit", mock.Anything, "u1", "cards", int64(0)).
					Return(access.LimitDecision{Allowed: true, Limit: "cards", Capacity: 1, CurrentTier: "FREE"}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "лимит исчерпан",
			path: "/limits/cards?used=5",
			setupMock: func(m *MockService) {
				m.On("CheckLimit", mock.Anything, "u1", "cards", int64(5)).
					Return(access.LimitDecision{Allowed: false, Limit: "cards", Capacity: 5, Used: 5, CurrentTier: "PRO"}, nil)
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `plan limit reached`,
		},
		{
			name:           "некорректный used",
			path:           "/limits/cards?used=many",
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "неизвестный лимит",
			path: "/limits/seats",
			setupMock: func(m *MockService) {
				m.On("CheckLimit", mock.Anything, "u1", "seats", int64(0)).
					Return(access.LimitDecision{}, fmt.Errorf("op: %w", models.ErrValidation))
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockService)
			tt.setupMock(m)

			r := chi.NewRouter()
			r.Get("/limits/{name}", New(logger, m).ServeHTTP)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req = req.WithContext(middlewarectx.WithUser(req.Context(), "u1", "user"))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.Contains(t, w.Body.String(), tt.expectedBody)
			}
			m.AssertExpectations(t)
		})
	}
}

func TestLimitHandler_Unauthorized(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	m := new(MockService)

	r := chi.NewRouter()
	r.Get("/limits/{name}", New(logger, m).ServeHTTP)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limits/cards", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	m.AssertNotCalled(t, "CheckLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
