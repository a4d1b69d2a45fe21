package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-snapshot/internal/models"
	"github.com/magabrotheeeer/subscription-snapshot/internal/snapshot"
)

// MockService реализует интерфейс dashboard.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Build(ctx context.Context, p snapshot.Params) (*models.Snapshot, error) {
	args := m.Called(ctx, p)
	if res := args.Get(0); res != nil {
		return res.(*models.Snapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func emptySnapshot() *models.Snapshot {
	return &models.Snapshot{
		Users:    []models.Subscriber{},
		Payments: []models.Payment{},
		Channels: []models.Channel{},
	}
}

func TestDashboardHandler(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешный снапшот без параметров",
			url:  "/api/dashboard",
			setupMock: func(m *MockService) {
				m.On("Build", mock.Anything, snapshot.Params{}).Return(emptySnapshot(), nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"users":[],"payments":[],"channels":[],"stats":{"total":0,"active":0,"expiring":0,` +
				`"expired":0,"active_or_expiring":0,"role_user_count":0,"role_other_count":0,"revenue_this_month":0}}`,
		},
		{
			name: "параметры передаются сервису",
			url:  "/api/dashboard?payments_limit=25&expiring_days=3&include_non_user=YES",
			setupMock: func(m *MockService) {
				m.On("Build", mock.Anything, snapshot.Params{PaymentsLimit: 25, ExpiringDays: 3, IncludeNonUser: true}).
					Return(emptySnapshot(), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "ошибка сервиса",
			url:  "/api/dashboard",
			setupMock: func(m *MockService) {
				m.On("Build", mock.Anything, mock.Anything).Return(nil, errors.New("db is locked"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"failed to build snapshot"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(newNoopLogger(), mockService)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, rr.Body.String())
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  snapshot.Params
	}{
		{name: "пусто", query: "", want: snapshot.Params{}},
		{name: "числа", query: "payments_limit=10&expiring_days=30", want: snapshot.Params{PaymentsLimit: 10, ExpiringDays: 30}},
		{name: "числовой префикс", query: "payments_limit=25abc&expiring_days=3.9", want: snapshot.Params{PaymentsLimit: 25, ExpiringDays: 3}},
		{name: "мусор", query: "payments_limit=abc&expiring_days=", want: snapshot.Params{}},
		{name: "отрицательные", query: "payments_limit=-5&expiring_days=-1", want: snapshot.Params{PaymentsLimit: -5, ExpiringDays: -1}},
		{name: "ведущие пробелы", query: "payments_limit=%20%2B42", want: snapshot.Params{PaymentsLimit: 42}},
		{name: "переполнение", query: "payments_limit=99999999999999999999", want: snapshot.Params{PaymentsLimit: 2147483647}},
		{name: "include_non_user=1", query: "include_non_user=1", want: snapshot.Params{IncludeNonUser: true}},
		{name: "include_non_user=True", query: "include_non_user=True", want: snapshot.Params{IncludeNonUser: true}},
		{name: "include_non_user=no", query: "include_non_user=no", want: snapshot.Params{}},
		{name: "include_non_user=on", query: "include_non_user=on", want: snapshot.Params{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ParseParams(q))
		})
	}
}
