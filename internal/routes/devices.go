package routes

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/registry"
	"school-device-issuance/internal/storage"
)

const labelQRSize = 256

func DeviceRoutes(r *gin.RouterGroup, deps *Deps) {

	r.POST("", RequirePermission("devices", "create"), func(c *gin.Context) {
		var in registry.NewDeviceInput
		if err := c.ShouldBindJSON(&in); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
			return
		}

		device, err := deps.Devices.Create(c.Request.Context(), in)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, device)
	})

	r.POST("/bulk", RequirePermission("devices", "create"), func(c *gin.Context) {
		var in struct {
			Devices []registry.NewDeviceInput `json:"devices"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
			return
		}
		if len(in.Devices) == 0 {
			AbortWithError(c, fault.Validationf("no devices in request"))
			return
		}

		result := deps.Devices.BulkCreate(c.Request.Context(), in.Devices)
		c.JSON(http.StatusOK, result)
	})

	r.GET("", RequirePermission("devices", "read"), func(c *gin.Context) {
		filter := storage.DeviceFilter{
			Status:     storage.DeviceStatus(c.Query("status")),
			Category:   storage.DeviceCategory(c.Query("category")),
			SchoolCode: c.Query("school"),
		}

		devices, err := deps.Devices.List(c.Request.Context(), filter)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
	})

	r.GET("/:serial", RequirePermission("devices", "read"), func(c *gin.Context) {
		device, err := deps.Devices.GetBySerial(c.Request.Context(), c.Param("serial"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, device)
	})

	r.PATCH("/:serial", RequirePermission("devices", "update"), func(c *gin.Context) {
		var in registry.UpdateDeviceInput
		if err := c.ShouldBindJSON(&in); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
			return
		}

		device, err := deps.Devices.Update(c.Request.Context(), c.Param("serial"), in)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, device)
	})

	// Printable label for a bound device. The QR payload carries the asset
	// tag and serial so a scan identifies the unit without a lookup.
	r.GET("/:serial/label.png", RequirePermission("devices", "read"), func(c *gin.Context) {
		device, err := deps.Devices.GetBySerial(c.Request.Context(), c.Param("serial"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if device.AssetTag == nil {
			AbortWithError(c, fault.NotFoundf("device %s has no asset tag", device.SerialNumber))
			return
		}

		payload := fmt.Sprintf("%s|%s", *device.AssetTag, device.SerialNumber)
		png, err := qrcode.Encode(payload, qrcode.Medium, labelQRSize)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: label encoding failed", ErrInternalServer))
			return
		}

		filename := strings.ReplaceAll(*device.AssetTag, "/", "-") + ".png"
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
		c.Data(http.StatusOK, "image/png", png)
	})
}
