package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/Temutjin2k/taxi-dispatch/docs"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
)

// setupRoutes - setups http routes
func (a *API) setupRoutes() {
	mux, r, m := a.mux, a.routes, a.m

	a.setupProbeRoutes()
	a.setupSwaggerRoutes()
	mux.HandleFunc("GET /calculate-price", r.order.CalculatePrice)

	// Orders
	mux.Handle("POST /orders", m.Require(r.order.Create, types.ActorPassenger))
	mux.Handle("GET /orders/recent", m.Require(r.order.Recent))
	mux.Handle("GET /orders/{id}", m.RequireAny(r.order.Get))
	mux.Handle("POST /orders/{id}/status", m.RequireAny(r.order.UpdateStatus))
	mux.Handle("POST /orders/{id}/dispatch", m.Require(r.order.Dispatch))
	mux.Handle("GET /orders/{id}/nearby-drivers", m.Require(r.order.NearbyDrivers))

	// Drivers
	mux.Handle("POST /drivers/{id}/location", m.RequireSelf(r.driver.UpdateLocation, types.ActorDriver, "id"))
	mux.Handle("POST /drivers/{id}/status", m.RequireSelf(r.driver.UpdateStatus, types.ActorDriver, "id"))
	mux.Handle("GET /drivers/{id}/active-order", m.RequireSelf(r.driver.ActiveOrder, types.ActorDriver, "id"))
	mux.Handle("POST /drivers/{id}/orders/{order_id}/accept", m.RequireSelf(r.driver.AcceptOrder, types.ActorDriver, "id"))

	// Admin
	mux.Handle("GET /admin/stats", m.Require(r.admin.Stats))
	mux.Handle("GET /admin/searches", m.Require(r.admin.Searches))
	mux.Handle("POST /auth/token", m.Require(r.auth.IssueToken))

	// Live channels
	mux.Handle("GET /ws/{kind}/{id}", m.RequireAny(r.live.Connect))
}

func (a *API) setupProbeRoutes() {
	a.mux.HandleFunc("GET /health", a.routes.health.HealthCheck)
	a.mux.Handle("GET /metrics", promhttp.Handler())
}

// setupSwaggerRoutes serves the Swagger UI and the API document under /swagger/
func (a *API) setupSwaggerRoutes() {
	a.mux.HandleFunc("GET /swagger/", httpSwagger.Handler(httpSwagger.InstanceName(docs.InstanceName)))
}
