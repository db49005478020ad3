package http

import "github.com/gin-gonic/gin"

func RegisterSagaRoutes(r *gin.Engine, handler *SagaHandler) {
	sagas := r.Group("/sagas")
	{
		sagas.GET("", handler.ListSagas)
		sagas.POST("/start", handler.StartSaga)
		sagas.GET("/status", handler.GetStatus)
		sagas.GET("/definitions", handler.ListDefinitions)
	}
}
