package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/taxi-dispatch/config"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
)

type tokens map[string]models.Actor

func (t tokens) Validate(_ context.Context, token string) (models.Actor, error) {
	a, ok := t[token]
	if !ok {
		return models.Actor{}, types.ErrInvalidToken
	}
	return a, nil
}

func testAPI() *API {
	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.HTTP.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Dispatch.BaseRadiusKm = 5
	cfg.Dispatch.CandidateLimit = 10

	deps := Deps{Validator: tokens{
		"driver-1":    {Kind: types.ActorDriver, ID: 1},
		"passenger-2": {Kind: types.ActorPassenger, ID: 2},
	}}
	return New(cfg, deps, "dispatch-test", logger.New(io.Discard, "test", logger.LevelError))
}

func TestRoutes_Access(t *testing.T) {
	h := testAPI().handler()

	tests := []struct {
		name   string
		method string
		target string
		token  string
		code   int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"price quote is public", http.MethodGet, "/calculate-price?distance_km=x", "", http.StatusUnprocessableEntity},
		{"orders need a token", http.MethodPost, "/orders", "", http.StatusUnauthorized},
		{"unknown token", http.MethodPost, "/orders", "nope", http.StatusUnauthorized},
		{"drivers cannot create orders", http.MethodPost, "/orders", "driver-1", http.StatusForbidden},
		{"admin stats are admin only", http.MethodGet, "/admin/stats", "passenger-2", http.StatusForbidden},
		{"driver routes are self only", http.MethodPost, "/drivers/7/status", "driver-1", http.StatusForbidden},
		{"unknown route", http.MethodGet, "/rides", "", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/health", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestCORS(t *testing.T) {
	h := testAPI().handler()

	req := httptest.NewRequest(http.MethodOptions, "/orders", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProbe(t *testing.T) {
	cfg := config.Config{}
	h := NewProbe(cfg, nil, "ingest-test", logger.New(io.Discard, "test", logger.LevelError)).server.Handler

	for target, code := range map[string]int{"/health": http.StatusOK, "/metrics": http.StatusOK, "/orders": http.StatusNotFound, "/swagger/doc.json": http.StatusNotFound} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, code, rec.Code, target)
	}
}

func TestSwagger(t *testing.T) {
	h := testAPI().handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Info  struct{ Title string } `json:"info"`
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "Taxi Dispatch API", doc.Info.Title)

	documented := map[string]string{
		"/orders":                                "post",
		"/orders/{id}":                           "get",
		"/orders/{id}/status":                    "post",
		"/orders/{id}/dispatch":                  "post",
		"/orders/recent":                         "get",
		"/orders/{id}/nearby-drivers":            "get",
		"/calculate-price":                       "get",
		"/drivers/{id}/location":                 "post",
		"/drivers/{id}/status":                   "post",
		"/drivers/{id}/active-order":             "get",
		"/drivers/{id}/orders/{order_id}/accept": "post",
		"/admin/stats":                           "get",
		"/admin/searches":                        "get",
		"/auth/token":                            "post",
		"/health":                                "get",
		"/ws/{kind}/{id}":                        "get",
	}
	assert.Len(t, doc.Paths, len(documented))
	for path, method := range documented {
		assert.Contains(t, doc.Paths[path], method, path)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
