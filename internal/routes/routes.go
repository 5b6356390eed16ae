package routes

import (
	"github.com/gin-gonic/gin"

	"school-device-issuance/internal/assignment"
	"school-device-issuance/internal/audit"
	"school-device-issuance/internal/files"
	"school-device-issuance/internal/lifecycle"
	"school-device-issuance/internal/registry"
	"school-device-issuance/internal/session"
	"school-device-issuance/internal/storage"
)

// Deps carries the wired services the route handlers call into. The server
// command builds one Deps and hands it to RegisterRoutes.
type Deps struct {
	Store        storage.Provider
	Devices      *registry.Devices
	Schools      *registry.Schools
	Applications *registry.Applications
	Engine       *lifecycle.Engine
	Coordinator  *assignment.Coordinator
	Letters      *files.Letters
	Audit        *audit.Sink
	Sessions     *session.Store
}

// RegisterRoutes attaches all API routes to the engine. Everything under
// /api shares the error handler; everything except login and health also
// requires a valid bearer token.
func RegisterRoutes(r *gin.Engine, deps *Deps) {
	api := r.Group("/api", ErrorHandler())

	Health(api)

	authed := api.Group("", AuthMiddleware())
	DeviceRoutes(authed.Group("/devices"), deps)
	SchoolRoutes(authed.Group("/schools"), deps)
	ApplicationRoutes(authed.Group("/applications"), deps)
	AuditRoutes(authed, deps)
}
