package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func AuditRoutes(r *gin.RouterGroup, deps *Deps) {

	r.GET("/audit", RequirePermission("audit", "read"), func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

		events, err := deps.Audit.List(c.Request.Context(), limit)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
	})

	r.GET("/stats", RequirePermission("audit", "read"), func(c *gin.Context) {
		ctx := c.Request.Context()

		devices, err := deps.Devices.CountByStatus(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		applications, err := deps.Store.CountApplicationsByStatus(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"devices":      devices,
			"applications": applications,
		})
	})
}
