package routes

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"school-device-issuance/internal/access"
	"school-device-issuance/internal/fault"
	"school-device-issuance/internal/jwt"
	"school-device-issuance/internal/lifecycle"
	"school-device-issuance/internal/storage"
)

// canReadApplication decides whether the actor may see this application.
// Reviewers and assigners hold a blanket read permission; representatives
// hold read_own and only see their own school's applications.
func canReadApplication(c *gin.Context, deps *Deps, actor *jwt.ActorClaim, app *storage.Application) bool {
	rbac := c.MustGet("RBAC").(*access.RBAC)
	if rbac.Can(actor.Email, "applications", "read") {
		return true
	}
	if !rbac.Can(actor.Email, "applications", "read_own") {
		return false
	}
	school, err := deps.Store.GetSchoolByRepresentative(c.Request.Context(), actor.UserID)
	if err != nil {
		return false
	}
	return school.Code == app.SchoolCode
}

func ApplicationRoutes(r *gin.RouterGroup, deps *Deps) {

	// Submit a new application. Multipart: a "letter" PDF plus a
	// "quantities" JSON field mapping category to requested count.
	r.POST("", RequirePermission("applications", "create"), func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		fileHeader, err := c.FormFile("letter")
		if err != nil {
			AbortWithError(c, fault.Validationf("supporting letter file is required"))
			return
		}

		var quantities map[storage.DeviceCategory]int
		if raw := c.PostForm("quantities"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &quantities); err != nil {
				AbortWithError(c, fault.Validationf("quantities is not valid JSON"))
				return
			}
		}

		file, err := fileHeader.Open()
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInternalServer, err))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInternalServer, err))
			return
		}

		ref, err := deps.Letters.Store(data, fileHeader.Header.Get("Content-Type"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		app, err := deps.Engine.Submit(c.Request.Context(), actor.UserID, lifecycle.SubmitInput{
			Quantities: quantities,
			LetterRef:  ref,
		})
		if err != nil {
			// The letter was stored before the submission was validated;
			// do not leave it orphaned.
			if delErr := deps.Letters.Delete(ref); delErr != nil {
				slog.Warn("Orphaned letter cleanup failed", "ref", ref, "error", delErr)
			}
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, app)
	})

	r.GET("", func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		filter := storage.ApplicationFilter{
			Status:     storage.ApplicationStatus(c.Query("status")),
			SchoolCode: c.Query("school"),
		}

		rbac := c.MustGet("RBAC").(*access.RBAC)
		if !rbac.Can(actor.Email, "applications", "read") {
			if !rbac.Can(actor.Email, "applications", "read_own") {
				AbortWithError(c, fault.Forbiddenf("no application read permission"))
				return
			}
			school, err := deps.Store.GetSchoolByRepresentative(c.Request.Context(), actor.UserID)
			if err != nil {
				AbortWithError(c, fault.Forbiddenf("user is not a school representative"))
				return
			}
			filter.SchoolCode = school.Code
		}

		apps, err := deps.Engine.List(c.Request.Context(), filter)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"applications": apps, "count": len(apps)})
	})

	r.GET("/:id", func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := paramID(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}

		detail, err := deps.Applications.Detail(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !canReadApplication(c, deps, actor, &detail.Application) {
			AbortWithError(c, fault.Forbiddenf("application %d belongs to another school", id))
			return
		}
		c.JSON(http.StatusOK, detail)
	})

	r.GET("/:id/letter", func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := paramID(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}

		app, err := deps.Engine.Get(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !canReadApplication(c, deps, actor, app) {
			AbortWithError(c, fault.Forbiddenf("application %d belongs to another school", id))
			return
		}

		data, err := deps.Letters.Read(app.LetterRef)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", app.LetterRef))
		c.Data(http.StatusOK, "application/pdf", data)
	})

	r.POST("/:id/review", RequirePermission("applications", "review"), func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := paramID(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}

		var in struct {
			Decision string `json:"decision"`
			Notes    string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
			return
		}

		decision := lifecycle.ReviewDecision(in.Decision)
		if !lifecycle.ValidDecision(decision) {
			AbortWithError(c, fault.Validationf("unknown decision %q", in.Decision))
			return
		}

		app, err := deps.Engine.Review(c.Request.Context(), id, actor.UserID, decision, in.Notes)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, app)
	})

	r.POST("/:id/eligibility", RequirePermission("applications", "eligibility"), func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := paramID(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}

		var in struct {
			Eligible bool   `json:"eligible"`
			Notes    string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
			return
		}

		app, err := deps.Engine.SetEligibility(c.Request.Context(), id, actor.UserID, in.Eligible, in.Notes)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, app)
	})

	r.POST("/:id/assign", RequirePermission("applications", "assign"), func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := paramID(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}

		var in struct {
			DeviceIDs []int64 `json:"device_ids"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
			return
		}

		app, err := deps.Coordinator.Assign(c.Request.Context(), id, actor.UserID, in.DeviceIDs)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, app)
	})

	r.POST("/:id/confirm", RequirePermission("applications", "confirm"), func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := paramID(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}

		// Notes are optional; an empty body is a plain confirmation.
		var in struct {
			Notes string `json:"notes"`
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&in); err != nil {
				AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidParameter, err))
				return
			}
		}

		app, err := deps.Engine.ConfirmReceipt(c.Request.Context(), id, actor.UserID, in.Notes)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, app)
	})

	r.POST("/:id/cancel", RequirePermission("applications", "cancel"), func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := paramID(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}

		app, err := deps.Engine.Cancel(c.Request.Context(), id, actor.UserID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, app)
	})
}
