package handler

import (
	"net/http"

	"github.com/Temutjin2k/taxi-dispatch/internal/adapter/http/handler/dto"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/driver"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/validator"
)

type Driver struct {
	service DriverService
	l       logger.Logger
}

func NewDriver(service DriverService, l logger.Logger) *Driver {
	return &Driver{
		service: service,
		l:       l,
	}
}

// UpdateLocation godoc
// @Summary      Report the driver position
// @Tags         drivers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Driver ID"
// @Param        request body dto.LocationUpdateReq true "Position"
// @Success      200 {object} map[string]interface{} "Stored sample"
// @Failure      422 {object} map[string]interface{} "Validation error"
// @Router       /drivers/{id}/location [post]
func (h *Driver) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "update_driver_location")

	driverID, err := pathID(r, "id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}
	ctx = wrap.WithDriverID(ctx, driverID)

	var req dto.LocationUpdateReq
	if err := readJSON(w, r, &req); err != nil {
		h.l.Warn(ctx, "failed to read request JSON data", "error", err.Error())
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	if err := h.service.UpdateLocation(ctx, req.ToModel(driverID), driver.SourceHTTP); err != nil {
		h.l.Warn(ctx, "failed to update location", "error", err.Error())
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Location updated"}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}
}

// UpdateStatus godoc
// @Summary      Change driver availability
// @Tags         drivers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Driver ID"
// @Param        request body dto.DriverStatusReq true "online, offline, busy or break"
// @Success      200 {object} map[string]interface{} "Driver"
// @Router       /drivers/{id}/status [post]
func (h *Driver) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "update_driver_status")

	driverID, err := pathID(r, "id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}
	ctx = wrap.WithDriverID(ctx, driverID)

	var req dto.DriverStatusReq
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

	d, err := h.service.UpdateStatus(ctx, driverID, req.Status)
	if err != nil {
		h.l.Warn(ctx, "failed to update driver status", "error", err.Error())
		serviceErrorResponse(w, err)
		return
	}

	response := envelope{
		"success": true,
		"message": "Driver status updated",
		"driver":  d,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}

	h.l.Info(ctx, "driver status updated", "status", req.Status.String())
}

// ActiveOrder godoc
// @Summary      The order the driver is bound to
// @Tags         drivers
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Driver ID"
// @Success      200 {object} map[string]interface{} "Order"
// @Failure      404 {object} map[string]interface{} "No active order"
// @Router       /drivers/{id}/active-order [get]
func (h *Driver) ActiveOrder(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "driver_active_order")

	driverID, err := pathID(r, "id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	o, err := h.service.ActiveOrder(wrap.WithDriverID(ctx, driverID), driverID)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, o, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}
}

// AcceptOrder godoc
// @Summary      Accept an offered order
// @Description  Only one driver wins a searching order
// @Tags         drivers
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Driver ID"
// @Param        order_id path int true "Order ID"
// @Success      200 {object} map[string]interface{} "Assigned order"
// @Failure      409 {object} map[string]interface{} "Order already taken"
// @Router       /drivers/{id}/orders/{order_id}/accept [post]
func (h *Driver) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "accept_order")

	driverID, err := pathID(r, "id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}
	orderID, err := pathID(r, "order_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}
	ctx = wrap.WithOrderID(wrap.WithDriverID(ctx, driverID), orderID)

	o, err := h.service.AcceptOrder(ctx, driverID, orderID)
	if err != nil {
		h.l.Warn(ctx, "order not accepted", "error", err.Error())
		serviceErrorResponse(w, err)
		return
	}

	response := envelope{
		"success": true,
		"message": "Order accepted",
		"order":   o,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}

	h.l.Info(ctx, "order accepted")
}
