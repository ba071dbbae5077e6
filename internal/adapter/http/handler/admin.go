package handler

import (
	"net/http"

	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

type Admin struct {
	service AdminService
	l       logger.Logger
}

func NewAdmin(service AdminService, l logger.Logger) *Admin {
	return &Admin{
		service: service,
		l:       l,
	}
}

// Stats godoc
// @Summary      System statistics
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]interface{} "Order and driver counts"
// @Router       /admin/stats [get]
func (h *Admin) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_stats")

	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to get system stats", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, stats, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}
}

// Searches lists running driver searches and the ones that failed
//
// @Summary      Running and failed searches
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]interface{} "Searches"
// @Router       /admin/searches [get]
func (h *Admin) Searches(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_searches")

	if err := writeJSON(w, http.StatusOK, h.service.Searches(ctx), nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}
}
