package http

import "github.com/gin-gonic/gin"

// RegisterEventRoutes mounts the event endpoints under /events.
func RegisterEventRoutes(r *gin.Engine, handler *EventHandler) {
	events := r.Group("/events")
	{
		events.POST("/publish", handler.Publish)
		events.POST("/subscribe", handler.Subscribe)
		events.GET("/query", handler.Query)
		events.POST("/replay", handler.Replay)
		events.GET("/subscriptions", handler.ListSubscriptions)
		events.GET("/definitions", handler.ListDefinitions)
		events.GET("/health", handler.Health)
		events.GET("/dead-letters", handler.DeadLetters)
		events.GET("/stats", handler.Stats)
	}
}
