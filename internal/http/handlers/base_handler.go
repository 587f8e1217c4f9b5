// README: Base handler utilities (JSON helpers, error mapping, caller checks).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dropoff/internal/http/middleware"
	"dropoff/internal/modules/order"
)

type errorResponse struct {
	Error  string                  `json:"error"`
	Kind   order.Kind              `json:"kind,omitempty"`
	Result *order.TransitionResult `json:"result,omitempty"`
}

// isValidID accepts up to 64 ASCII letters, digits, '-' or '_'.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeOrderError(c *gin.Context, err error) {
	var oe *order.Error
	if !errors.As(err, &oe) {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	resp := errorResponse{Error: oe.Reason, Kind: oe.Kind, Result: oe.Result}
	switch oe.Kind {
	case order.KindValidation:
		writeJSON(c, http.StatusUnprocessableEntity, resp)
	case order.KindNotFound:
		resp.Error = "order not found"
		writeJSON(c, http.StatusNotFound, resp)
	case order.KindConflict:
		writeJSON(c, http.StatusConflict, resp)
	default:
		writeJSON(c, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: order.KindUnknown})
	}
}

// pathID reads and validates a path parameter, writing a 400 when it fails.
func pathID(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if !isValidID(v) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return v, true
}

// authorizeDriver allows the driver named in the path to act on their own
// resources. Dispatchers may act for any driver.
func authorizeDriver(c *gin.Context, driverID string) bool {
	switch middleware.CallerRole(c) {
	case middleware.RoleDispatcher:
		return true
	case middleware.RoleDriver:
		if middleware.CallerUID(c) == driverID {
			return true
		}
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return false
	default:
		writeError(c, http.StatusForbidden, "forbidden: driver role required")
		return false
	}
}

// canViewOrder lets dispatchers see everything, drivers see the open queue
// and their own orders.
func canViewOrder(c *gin.Context, o *order.Order) bool {
	switch middleware.CallerRole(c) {
	case middleware.RoleDispatcher:
		return true
	case middleware.RoleDriver:
		if o.Status == order.StatusAvailable {
			return true
		}
		return o.DriverID != nil && string(*o.DriverID) == middleware.CallerUID(c)
	}
	return false
}
