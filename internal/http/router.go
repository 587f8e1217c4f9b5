// README: HTTP router registration.
package http

import (
    "net/http"

    "github.com/gin-gonic/gin"

    "dropoff/internal/http/handlers"
    "dropoff/internal/http/middleware"
    "dropoff/internal/infra"
    "dropoff/internal/modules/location"
    "dropoff/internal/modules/order"
    "dropoff/internal/modules/proximity"
)

type RouterDeps struct {
    Order      *order.Service
    Location   *location.Service
    Monitors   *proximity.Manager
    Verifier   infra.TokenVerifier
    QueueLimit int
}

func NewRouter(deps RouterDeps) *gin.Engine {
    r := gin.New()
    r.Use(middleware.Recovery(), middleware.Logging())

    r.GET("/health", func(c *gin.Context) {
        c.String(http.StatusOK, "OK")
    })

    api := r.Group("/api", middleware.Auth(deps.Verifier))

    orderHandler := handlers.NewOrderHandler(deps.Order)
    api.POST("/orders", middleware.RequireRole(middleware.RoleDispatcher), orderHandler.Create)
    api.GET("/orders/:id", orderHandler.Get)
    api.GET("/orders/:id/actions", orderHandler.Actions)
    api.GET("/orders/:id/events", orderHandler.Events)

    drivers := api.Group("/drivers/:id", middleware.RequireRole(middleware.RoleDriver, middleware.RoleDispatcher))

    driverHandler := handlers.NewDriverHandler(deps.Order, deps.QueueLimit)
    drivers.GET("/queue", driverHandler.Queue)
    drivers.GET("/orders/active", driverHandler.Active)
    drivers.POST("/orders/:orderId/accept", driverHandler.Accept)
    drivers.POST("/orders/:orderId/status", driverHandler.UpdateStatus)

    locationHandler := handlers.NewLocationHandler(deps.Location)
    drivers.PUT("/location", locationHandler.Update)
    drivers.GET("/location", locationHandler.Get)

    monitorHandler := handlers.NewMonitorHandler(deps.Order, deps.Monitors)
    drivers.POST("/monitor", monitorHandler.Start)
    drivers.DELETE("/monitor", monitorHandler.Stop)
    drivers.GET("/monitor", monitorHandler.Status)

    return r
}
