// README: Location handlers: drivers push GPS fixes, the monitor consumes them.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dropoff/internal/modules/location"
	"dropoff/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type locationReq struct {
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Accuracy float64  `json:"accuracy"`
	Speed    *float64 `json:"speed"`
	Heading  *float64 `json:"heading"`
	// Timestamp is unix milliseconds; zero means now.
	Timestamp int64 `json:"timestamp"`
}

func (h *LocationHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok || !authorizeDriver(c, id) {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	p := location.GeoPoint{
		Lat:      *req.Lat,
		Lng:      *req.Lng,
		Accuracy: req.Accuracy,
		Speed:    req.Speed,
		Heading:  req.Heading,
	}
	if req.Timestamp > 0 {
		p.Timestamp = time.UnixMilli(req.Timestamp).UTC()
	}
	err := h.location.Update(c.Request.Context(), location.Update{DriverID: types.ID(id), Position: p})
	if errors.Is(err, location.ErrInvalidPoint) {
		writeError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LocationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok || !authorizeDriver(c, id) {
		return
	}
	p, err := h.location.CurrentPosition(c.Request.Context(), types.ID(id))
	if errors.Is(err, location.ErrNoPosition) {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, p)
}
