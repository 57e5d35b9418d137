package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zhejian/url-shortener/shortlink/internal/api"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
	"github.com/zhejian/url-shortener/shortlink/internal/service"
	"github.com/zhejian/url-shortener/shortlink/internal/testutil"
)

// MockLinkService mocks the service layer
type MockLinkService struct {
	mock.Mock
}

func (m *MockLinkService) CreateShortURL(ctx context.Context, req *model.CreateLinkRequest) (*model.Link, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Link), args.Error(1)
}

func (m *MockLinkService) Resolve(ctx context.Context, alias, ip string) (*model.Link, error) {
	args := m.Called(ctx, alias, ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Link), args.Error(1)
}

func (m *MockLinkService) GetInfo(ctx context.Context, alias string) (*model.LinkInfo, error) {
	args := m.Called(ctx, alias)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LinkInfo), args.Error(1)
}

func (m *MockLinkService) GetAnalytics(ctx context.Context, alias string) (*model.Analytics, error) {
	args := m.Called(ctx, alias)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Analytics), args.Error(1)
}

func (m *MockLinkService) DeleteByAlias(ctx context.Context, alias string) error {
	args := m.Called(ctx, alias)
	return args.Error(0)
}

func (m *MockLinkService) ShortURL(alias string) string {
	return "http://localhost:8080/" + alias
}

// MockPinger for health check
type MockPinger struct {
	shouldFail bool
}

func (m *MockPinger) Ping(ctx context.Context) error {
	if m.shouldFail {
		return assert.AnError
	}
	return nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(svc service.LinkServiceInterface, db, cache *MockPinger) *gin.Engine {
	r := gin.New()
	api.NewHandler(svc, db, cache, testutil.DiscardLogger()).RegisterRoutes(r)
	return r
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		dbDown     bool
		cacheDown  bool
		wantCode   int
		wantStatus string
		wantDB     string
		wantCache  string
	}{
		{"all dependencies healthy", false, false, http.StatusOK, "ok", "up", "up"},
		{"cache down", false, true, http.StatusServiceUnavailable, "degraded", "up", "down"},
		{"database down", true, false, http.StatusServiceUnavailable, "degraded", "down", "up"},
		{"both down", true, true, http.StatusServiceUnavailable, "degraded", "down", "down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(new(MockLinkService), &MockPinger{shouldFail: tt.dbDown}, &MockPinger{shouldFail: tt.cacheDown})

			w := doRequest(router, http.MethodGet, "/health", "")

			assert.Equal(t, tt.wantCode, w.Code)
			var response map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantStatus, response["status"])
			deps := response["dependencies"].(map[string]interface{})
			assert.Equal(t, tt.wantDB, deps["database"])
			assert.Equal(t, tt.wantCache, deps["cache"])
		})
	}
}

func TestHandler_CreateShortURL(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("returns 201 with the short url", func(t *testing.T) {
		mockService := new(MockLinkService)
		mockService.On("CreateShortURL", mock.Anything, mock.MatchedBy(func(req *model.CreateLinkRequest) bool {
			return req.OriginalURL == "https://example.com" && req.Alias == "abc123"
		})).Return(&model.Link{
			Alias:       "abc123",
			OriginalURL: "https://example.com",
			CreatedAt:   created,
		}, nil)
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodPost, "/api/v1/shorten", `{"original_url":"https://example.com","alias":"abc123"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response model.CreateLinkResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "abc123", response.Alias)
		assert.Equal(t, "http://localhost:8080/abc123", response.ShortURL)
		assert.Equal(t, "https://example.com", response.OriginalURL)
		assert.Equal(t, "2026-05-01T10:00:00Z", response.CreatedAt)
		assert.Empty(t, response.ExpiresAt)
		mockService.AssertExpectations(t)
	})

	t.Run("returns 201 with expiry", func(t *testing.T) {
		expires := created.Add(24 * time.Hour)
		mockService := new(MockLinkService)
		mockService.On("CreateShortURL", mock.Anything, mock.MatchedBy(func(req *model.CreateLinkRequest) bool {
			return req.ExpiresAt != nil && req.ExpiresAt.Equal(expires)
		})).Return(&model.Link{
			Alias:       "Xy12Ab",
			OriginalURL: "https://example.com",
			CreatedAt:   created,
			ExpiresAt:   &expires,
		}, nil)
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodPost, "/api/v1/shorten", `{"original_url":"https://example.com","expires_at":"2026-05-02T10:00:00Z"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response model.CreateLinkResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "2026-05-02T10:00:00Z", response.ExpiresAt)
		mockService.AssertExpectations(t)
	})

	t.Run("returns 400 for invalid bodies", func(t *testing.T) {
		bodies := []string{
			`{invalid json}`,
			`{}`,
			`{"original_url":"not a url"}`,
			`{"original_url":"https://example.com","alias":"aaaaaaaaaaaaaaaaaaaaaaaaa"}`,
			`{"original_url":"https://example.com","expires_at":"tomorrow"}`,
		}
		for _, body := range bodies {
			mockService := new(MockLinkService)
			router := newRouter(mockService, &MockPinger{}, &MockPinger{})

			w := doRequest(router, http.MethodPost, "/api/v1/shorten", body)

			assert.Equal(t, http.StatusBadRequest, w.Code, body)
			mockService.AssertNotCalled(t, "CreateShortURL", mock.Anything, mock.Anything)
		}
	})

	t.Run("maps service errors", func(t *testing.T) {
		tests := []struct {
			err      error
			wantCode int
		}{
			{service.ErrConflict, http.StatusConflict},
			{service.ErrInvalidAlias, http.StatusBadRequest},
			{service.ErrAliasGeneration, http.StatusServiceUnavailable},
			{&service.StorageError{Op: "create link", Err: errors.New("boom")}, http.StatusInternalServerError},
		}
		for _, tt := range tests {
			mockService := new(MockLinkService)
			mockService.On("CreateShortURL", mock.Anything, mock.Anything).Return(nil, tt.err)
			router := newRouter(mockService, &MockPinger{}, &MockPinger{})

			w := doRequest(router, http.MethodPost, "/api/v1/shorten", `{"original_url":"https://example.com","alias":"taken"}`)

			assert.Equal(t, tt.wantCode, w.Code, tt.err.Error())
			assert.Equal(t, http.StatusText(tt.wantCode), decodeError(t, w).Error)
		}
	})
}

func TestHandler_Redirect(t *testing.T) {
	t.Run("returns 302 and passes the client ip", func(t *testing.T) {
		mockService := new(MockLinkService)
		mockService.On("Resolve", mock.Anything, "abc123", "192.0.2.1").Return(&model.Link{
			Alias:       "abc123",
			OriginalURL: "https://example.com/target",
			ClickCount:  1,
		}, nil)
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodGet, "/abc123", "")

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://example.com/target", w.Header().Get("Location"))
		mockService.AssertExpectations(t)
	})

	t.Run("returns 404 for unknown or expired aliases", func(t *testing.T) {
		mockService := new(MockLinkService)
		mockService.On("Resolve", mock.Anything, "gone", mock.Anything).Return(nil, service.ErrNotFound)
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodGet, "/gone", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "link has expired or not found", decodeError(t, w).Message)
	})

	t.Run("returns 500 on storage failure", func(t *testing.T) {
		mockService := new(MockLinkService)
		mockService.On("Resolve", mock.Anything, "abc123", mock.Anything).
			Return(nil, &service.StorageError{Op: "record click", Err: errors.New("deadlock")})
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodGet, "/abc123", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Internal server error", decodeError(t, w).Message)
	})
}

func TestHandler_GetInfo(t *testing.T) {
	t.Run("returns 200 with metadata", func(t *testing.T) {
		created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		mockService := new(MockLinkService)
		mockService.On("GetInfo", mock.Anything, "abc123").Return(&model.LinkInfo{
			OriginalURL: "https://example.com",
			CreatedAt:   created,
			ClickCount:  7,
		}, nil)
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodGet, "/api/v1/links/abc123", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "https://example.com", response["original_url"])
		assert.Equal(t, float64(7), response["click_count"])
		assert.Equal(t, "2026-05-01T10:00:00Z", response["created_at"])
	})

	t.Run("returns 404 when missing", func(t *testing.T) {
		mockService := new(MockLinkService)
		mockService.On("GetInfo", mock.Anything, "missing").Return(nil, service.ErrNotFound)
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodGet, "/api/v1/links/missing", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandler_GetAnalytics(t *testing.T) {
	t.Run("returns 200 with recent clicks", func(t *testing.T) {
		at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		mockService := new(MockLinkService)
		mockService.On("GetAnalytics", mock.Anything, "abc123").Return(&model.Analytics{
			TotalClicks: 2,
			RecentClicks: []model.RecentClick{
				{IP: "2.2.2.2", Time: at.Add(time.Second)},
				{IP: "1.1.1.1", Time: at},
			},
		}, nil)
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodGet, "/api/v1/links/abc123/analytics", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var response model.Analytics
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, int64(2), response.TotalClicks)
		require.Len(t, response.RecentClicks, 2)
		assert.Equal(t, "2.2.2.2", response.RecentClicks[0].IP)
	})

	t.Run("returns an empty list, not null", func(t *testing.T) {
		mockService := new(MockLinkService)
		mockService.On("GetAnalytics", mock.Anything, "quiet").Return(&model.Analytics{
			RecentClicks: []model.RecentClick{},
		}, nil)
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodGet, "/api/v1/links/quiet/analytics", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"recent_clicks":[]`)
	})

	t.Run("returns 404 when missing", func(t *testing.T) {
		mockService := new(MockLinkService)
		mockService.On("GetAnalytics", mock.Anything, "missing").Return(nil, service.ErrNotFound)
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodGet, "/api/v1/links/missing/analytics", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandler_DeleteLink(t *testing.T) {
	t.Run("returns 200 with confirmation", func(t *testing.T) {
		mockService := new(MockLinkService)
		mockService.On("DeleteByAlias", mock.Anything, "abc123").Return(nil)
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodDelete, "/api/v1/links/abc123", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var response model.MessageResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "link deleted successfully", response.Message)
		mockService.AssertExpectations(t)
	})

	t.Run("returns 404 when missing", func(t *testing.T) {
		mockService := new(MockLinkService)
		mockService.On("DeleteByAlias", mock.Anything, "missing").Return(service.ErrNotFound)
		router := newRouter(mockService, &MockPinger{}, &MockPinger{})

		w := doRequest(router, http.MethodDelete, "/api/v1/links/missing", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
