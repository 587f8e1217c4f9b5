// README: Order handlers for create, lookup, offered actions and audit history.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dropoff/internal/modules/order"
	"dropoff/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type createOrderReq struct {
	VendorAddress   string `json:"vendor_address"`
	CustomerAddress string `json:"customer_address"`
	TotalAmount     int64  `json:"total_amount"`
	Currency        string `json:"currency"`
}

// Create is dispatcher-only; the route applies RequireRole.
func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		VendorAddress:   req.VendorAddress,
		CustomerAddress: req.CustomerAddress,
		Total:           types.Money{Amount: req.TotalAmount, Currency: req.Currency},
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) load(c *gin.Context) (*order.Order, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return nil, false
	}
	if !canViewOrder(c, o) {
		writeError(c, http.StatusForbidden, "forbidden: order belongs to another driver")
		return nil, false
	}
	return o, true
}

func (h *OrderHandler) Get(c *gin.Context) {
	o, ok := h.load(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Actions(c *gin.Context) {
	o, ok := h.load(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"order_id": o.ID,
		"status":   o.Status,
		"actions":  h.order.AvailableActions(o),
	})
}

type eventResp struct {
	From      order.Status `json:"from"`
	To        order.Status `json:"to"`
	Actor     order.Actor  `json:"actor"`
	ActorID   *types.ID    `json:"actor_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

func (h *OrderHandler) Events(c *gin.Context) {
	o, ok := h.load(c)
	if !ok {
		return
	}
	evts, err := h.order.History(c.Request.Context(), o.ID)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	out := make([]eventResp, 0, len(evts))
	for _, e := range evts {
		out = append(out, eventResp{
			From:      e.FromStatus,
			To:        e.ToStatus,
			Actor:     e.ActorType,
			ActorID:   e.ActorID,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, map[string]any{"order_id": o.ID, "events": out})
}
