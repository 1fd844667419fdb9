package api

import (
	"net/http"

	"facegate/internal/events"
	"facegate/internal/fanout"
	"facegate/internal/handlers"
	"facegate/internal/roster"
	"facegate/internal/store"

	"github.com/gin-gonic/gin"
)

// Deps carries the constructed subsystems the routes close over.
type Deps struct {
	Store      *store.Store
	Resolver   *events.Resolver
	Reconciler *roster.Reconciler
	Fanout     *fanout.Engine
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	api := r.Group("/api")
	{
		// Terminals push access events here.
		api.POST("/terminal/event", func(c *gin.Context) {
			handlers.IngestEventHandler(c, d.Resolver)
		})

		api.POST("/sites", func(c *gin.Context) {
			handlers.CreateSiteHandler(c, d.Store)
		})
		api.POST("/devices", func(c *gin.Context) {
			handlers.CreateDeviceHandler(c, d.Store)
		})
		api.POST("/persons", func(c *gin.Context) {
			handlers.CreatePersonHandler(c, d.Store)
		})
		api.GET("/overview", func(c *gin.Context) {
			handlers.OverviewHandler(c, d.Store)
		})

		api.POST("/sync", func(c *gin.Context) {
			handlers.SyncHandler(c, d.Reconciler)
		})
		api.POST("/persons/:account_id/enroll", func(c *gin.Context) {
			handlers.EnrollHandler(c, d.Store, d.Fanout)
		})

		api.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong"})
		})
	}
}
