package handler

import (
	"net/http"
	"strconv"

	"github.com/Temutjin2k/taxi-dispatch/internal/adapter/http/handler/dto"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/validator"
)

type Order struct {
	service    OrderService
	calculator PriceCalculator
	finder     CandidateFinder
	nearbyKm   float64
	nearbyMax  int
	l          logger.Logger
}

func NewOrder(service OrderService, calculator PriceCalculator, finder CandidateFinder, nearbyKm float64, nearbyMax int, l logger.Logger) *Order {
	return &Order{
		service:    service,
		calculator: calculator,
		finder:     finder,
		nearbyKm:   nearbyKm,
		nearbyMax:  nearbyMax,
		l:          l,
	}
}

// Create godoc
// @Summary      Create an order
// @Description  Prices the trip, stores the order and starts the driver search
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.CreateOrderReq true "Pickup, destination and tariff"
// @Success      201 {object} map[string]interface{} "Order id, price and estimates"
// @Failure      400 {object} map[string]interface{} "Bad request"
// @Failure      422 {object} map[string]interface{} "Validation error"
// @Router       /orders [post]
func (h *Order) Create(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "create_order")

	var req dto.CreateOrderReq
	if err := readJSON(w, r, &req); err != nil {
		h.l.Warn(ctx, "failed to read request JSON data", "error", err.Error())
		badRequestResponse(w, err.Error())
		return
	}

	// an authenticated passenger always orders for themself
	if actor, ok := models.ActorFromContext(ctx); ok && actor.Kind == types.ActorPassenger {
		req.PassengerID = actor.ID
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid request data")
		failedValidationResponse(w, v.Errors)
		return
	}

	o, err := h.service.Create(ctx, req.ToModel())
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to create order", err)
		serviceErrorResponse(w, err)
		return
	}

	response := envelope{
		"success":            true,
		"order_id":           o.ID,
		"order_uuid":         o.UUID,
		"price":              o.Price,
		"estimated_duration": o.DurationMin,
		"distance_km":        o.DistanceKm,
		"message":            "Order created successfully",
	}
	if err := writeJSON(w, http.StatusCreated, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// Get godoc
// @Summary      Get an order
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Order ID"
// @Success      200 {object} map[string]interface{} "Order"
// @Failure      403 {object} map[string]interface{} "Forbidden"
// @Failure      404 {object} map[string]interface{} "Not found"
// @Router       /orders/{id} [get]
func (h *Order) Get(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_order")

	id, err := pathID(r, "id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	o, err := h.service.Get(ctx, id)
	if err != nil {
		h.l.Warn(wrap.WithOrderID(ctx, id), "failed to get order", "error", err.Error())
		serviceErrorResponse(w, err)
		return
	}
	if actor, ok := models.ActorFromContext(ctx); ok && !canSee(actor, o) {
		errorResponse(w, http.StatusForbidden, types.ErrForbidden.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, o, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}
}

func canSee(actor models.Actor, o *models.Order) bool {
	switch actor.Kind {
	case types.ActorAdmin:
		return true
	case types.ActorPassenger:
		return o.PassengerID == actor.ID
	case types.ActorDriver:
		return o.HasDriver(actor.ID) || o.Status == types.StatusSearchingDriver
	default:
		return false
	}
}

// UpdateStatus godoc
// @Summary      Move an order to a new status
// @Description  Only transitions allowed from the current status succeed
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Order ID"
// @Param        request body dto.UpdateOrderStatusReq true "Target status"
// @Success      200 {object} map[string]interface{} "Updated order"
// @Failure      409 {object} map[string]interface{} "Transition not allowed"
// @Router       /orders/{id}/status [post]
func (h *Order) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionOrderTransition)

	id, err := pathID(r, "id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	var req dto.UpdateOrderStatusReq
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	o, err := h.service.UpdateStatus(ctx, id, req.Status, actorOf(r, req.DriverID))
	if err != nil {
		h.l.Warn(wrap.WithOrderID(ctx, id), "failed to update order status", "error", err.Error())
		serviceErrorResponse(w, err)
		return
	}

	response := envelope{
		"success": true,
		"message": "Order status updated",
		"order":   o,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}
}

// actorOf returns the authenticated actor. Unauthenticated requests act as the named
// driver, or as an admin when no driver is named.
func actorOf(r *http.Request, driverID *int64) models.Actor {
	if actor, ok := models.ActorFromContext(r.Context()); ok {
		return actor
	}
	if driverID != nil {
		return models.Actor{Kind: types.ActorDriver, ID: *driverID}
	}
	return models.Actor{Kind: types.ActorAdmin}
}

// Dispatch godoc
// @Summary      Start a driver search
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Order ID"
// @Success      202 {object} map[string]interface{} "Whether a new search started"
// @Router       /orders/{id}/dispatch [post]
func (h *Order) Dispatch(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionSearchDriver)

	id, err := pathID(r, "id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	started, err := h.service.Dispatch(ctx, id)
	if err != nil {
		h.l.Warn(wrap.WithOrderID(ctx, id), "failed to start driver search", "error", err.Error())
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusAccepted, envelope{"order_id": id, "started": started}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}
}

// Recent godoc
// @Summary      Latest orders
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "1..100"
// @Success      200 {object} map[string]interface{} "Orders"
// @Router       /orders/recent [get]
func (h *Order) Recent(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "recent_orders")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			badRequestResponse(w, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	orders, err := h.service.Recent(ctx, limit)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to list recent orders", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, orders, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}
}

// NearbyDrivers lists the drivers the first search round would consider for an order
//
// @Summary      Drivers near the pickup point
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Order ID"
// @Success      200 {object} map[string]interface{} "Candidates nearest first"
// @Router       /orders/{id}/nearby-drivers [get]
func (h *Order) NearbyDrivers(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "nearby_drivers")

	id, err := pathID(r, "id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	o, err := h.service.Get(ctx, id)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}

	drivers, err := h.finder.FindNearby(ctx, models.NearbyQuery{
		Point:        o.Pickup,
		RadiusMeters: h.nearbyKm * 1000,
		Limit:        h.nearbyMax,
	})
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to find nearby drivers", err)
		serviceErrorResponse(w, err)
		return
	}

	response := envelope{
		"order_id":        id,
		"pickup_location": o.Pickup,
		"drivers":         drivers,
		"count":           len(drivers),
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}
}

// CalculatePrice quotes a fare for a known distance and duration
//
// @Summary      Quote a fare
// @Tags         orders
// @Produce      json
// @Param        distance_km query number true "Trip distance"
// @Param        duration_minutes query int false "Trip duration, estimated when omitted"
// @Param        surge query number false "1..5"
// @Success      200 {object} map[string]interface{} "Price"
// @Failure      422 {object} map[string]interface{} "Validation error"
// @Router       /calculate-price [get]
func (h *Order) CalculatePrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := validator.New()

	distance, err := strconv.ParseFloat(q.Get("distance_km"), 64)
	v.Check(err == nil && distance > 0, "distance_km", "must be a positive number")

	duration := 0
	if raw := q.Get("duration_minutes"); raw != "" {
		duration, err = strconv.Atoi(raw)
		v.Check(err == nil && duration > 0, "duration_minutes", "must be a positive integer")
	}

	surge := 1.0
	if raw := q.Get("surge"); raw != "" {
		surge, err = strconv.ParseFloat(raw, 64)
		v.Check(err == nil && surge >= 1 && surge <= 5, "surge", "must be between 1 and 5")
	}

	if !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}
	if duration == 0 {
		duration = h.calculator.ETA(distance, h.calculator.TrafficLevel())
	}

	response := envelope{
		"distance_km":      distance,
		"duration_minutes": duration,
		"surge":            surge,
		"price":            h.calculator.Fare(distance, duration, surge),
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(r.Context(), "failed to write response", err)
	}
}
