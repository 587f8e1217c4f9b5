// README: Driver handlers for the order queue, accept and status updates.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dropoff/internal/modules/order"
	"dropoff/internal/types"
)

type DriverHandler struct {
	order      *order.Service
	queueLimit int
}

func NewDriverHandler(orderSvc *order.Service, queueLimit int) *DriverHandler {
	return &DriverHandler{order: orderSvc, queueLimit: queueLimit}
}

func (h *DriverHandler) Queue(c *gin.Context) {
	driverID, ok := pathID(c, "id")
	if !ok || !authorizeDriver(c, driverID) {
		return
	}
	limit := h.queueLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	orders, err := h.order.Queue(c.Request.Context(), limit)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"orders": orders})
}

// Active returns the driver's in-flight order, or 204 when there is none.
func (h *DriverHandler) Active(c *gin.Context) {
	driverID, ok := pathID(c, "id")
	if !ok || !authorizeDriver(c, driverID) {
		return
	}
	o, err := h.order.ActiveOrder(c.Request.Context(), types.ID(driverID))
	if errors.Is(err, order.ErrNotFound) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"order":   o,
		"actions": h.order.AvailableActions(o),
	})
}

func (h *DriverHandler) Accept(c *gin.Context) {
	driverID, ok := pathID(c, "id")
	if !ok || !authorizeDriver(c, driverID) {
		return
	}
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}
	o, err := h.order.Accept(c.Request.Context(), order.AcceptCommand{
		OrderID:  types.ID(orderID),
		DriverID: types.ID(driverID),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type updateStatusReq struct {
	Status order.Status `json:"status"`
	Action order.Action `json:"action"`
}

// UpdateStatus takes either a target status or a driver action.
func (h *DriverHandler) UpdateStatus(c *gin.Context) {
	driverID, ok := pathID(c, "id")
	if !ok || !authorizeDriver(c, driverID) {
		return
	}
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	target := req.Status
	if req.Action != "" {
		s, known := req.Action.Target()
		if !known {
			writeError(c, http.StatusUnprocessableEntity, "unknown action "+string(req.Action))
			return
		}
		if target != "" && target != s {
			writeError(c, http.StatusBadRequest, "status and action disagree")
			return
		}
		target = s
	}
	if target == "" {
		writeError(c, http.StatusBadRequest, "status or action is required")
		return
	}

	o, err := h.order.UpdateStatus(c.Request.Context(), order.UpdateStatusCommand{
		OrderID:  types.ID(orderID),
		Status:   target,
		DriverID: types.ID(driverID),
		Actor:    order.ActorDriver,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"order":   o,
		"actions": h.order.AvailableActions(o),
	})
}
