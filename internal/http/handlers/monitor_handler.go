// README: Proximity monitor handlers: manual start, stop and status per driver.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dropoff/internal/modules/order"
	"dropoff/internal/modules/proximity"
	"dropoff/internal/types"
)

type MonitorHandler struct {
	order    *order.Service
	monitors *proximity.Manager
}

func NewMonitorHandler(orderSvc *order.Service, monitors *proximity.Manager) *MonitorHandler {
	return &MonitorHandler{order: orderSvc, monitors: monitors}
}

type startMonitorReq struct {
	OrderID string `json:"order_id"`
}

func (h *MonitorHandler) Start(c *gin.Context) {
	driverID, ok := pathID(c, "id")
	if !ok || !authorizeDriver(c, driverID) {
		return
	}
	var req startMonitorReq
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(req.OrderID) {
		writeError(c, http.StatusBadRequest, "order_id is required")
		return
	}
	o, err := h.order.Get(c.Request.Context(), types.ID(req.OrderID))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if o.DriverID == nil || string(*o.DriverID) != driverID {
		writeError(c, http.StatusForbidden, "forbidden: order belongs to another driver")
		return
	}
	if o.Status.Terminal() {
		writeError(c, http.StatusUnprocessableEntity, "order is "+string(o.Status))
		return
	}
	if err := h.monitors.Start(c.Request.Context(), types.ID(driverID), o.ID); err != nil {
		writeError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(c, http.StatusAccepted, h.monitors.Status(types.ID(driverID)))
}

func (h *MonitorHandler) Stop(c *gin.Context) {
	driverID, ok := pathID(c, "id")
	if !ok || !authorizeDriver(c, driverID) {
		return
	}
	h.monitors.Stop(types.ID(driverID))
	writeJSON(c, http.StatusOK, h.monitors.Status(types.ID(driverID)))
}

func (h *MonitorHandler) Status(c *gin.Context) {
	driverID, ok := pathID(c, "id")
	if !ok || !authorizeDriver(c, driverID) {
		return
	}
	writeJSON(c, http.StatusOK, h.monitors.Status(types.ID(driverID)))
}
