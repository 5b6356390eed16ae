package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/registry"
)

func SchoolRoutes(r *gin.RouterGroup, deps *Deps) {

	r.POST("", RequirePermission("schools", "create"), func(c *gin.Context) {
		var in registry.NewSchoolInput
		if err := c.ShouldBindJSON(&in); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
			return
		}

		school, err := deps.Schools.Create(c.Request.Context(), in)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, school)
	})

	r.GET("", RequirePermission("schools", "read"), func(c *gin.Context) {
		schools, err := deps.Schools.List(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"schools": schools, "count": len(schools)})
	})

	r.GET("/:code", RequirePermission("schools", "read"), func(c *gin.Context) {
		school, err := deps.Schools.Get(c.Request.Context(), c.Param("code"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, school)
	})

	r.PATCH("/:code", RequirePermission("schools", "update"), func(c *gin.Context) {
		var in registry.UpdateSchoolInput
		if err := c.ShouldBindJSON(&in); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
			return
		}

		school, err := deps.Schools.Update(c.Request.Context(), c.Param("code"), in)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, school)
	})

	r.PUT("/:code/representative", RequirePermission("schools", "update"), func(c *gin.Context) {
		var in struct {
			UserID int64 `json:"user_id"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
			return
		}
		if in.UserID <= 0 {
			AbortWithError(c, fault.Validationf("user_id is required"))
			return
		}

		school, err := deps.Schools.SetRepresentative(c.Request.Context(), c.Param("code"), in.UserID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, school)
	})

	// Bulk-bind devices to a school outside the application flow, for
	// example when seeding a school that received hardware before the
	// system existed. Per-serial failures do not abort the batch.
	r.POST("/:code/devices", RequirePermission("devices", "assign"), func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		var in struct {
			Serials []string `json:"serials"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
			return
		}
		if len(in.Serials) == 0 {
			AbortWithError(c, fault.Validationf("no serial numbers in request"))
			return
		}

		result, err := deps.Coordinator.BulkAssign(c.Request.Context(), c.Param("code"), actor.UserID, in.Serials)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
}
