package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func Health(r *gin.RouterGroup) {

	r.GET("/health", func(c *gin.Context) {
		msg := c.Query("ping")
		if msg == "" {
			msg = "pong"
		}

		status := "ok"
		if provider, err := GetStorageProvider(c); err == nil {
			if _, err := provider.GetSchemaVersion(c.Request.Context()); err != nil {
				status = "degraded"
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"message": msg,
			"status":  status,
		})
	})
}
