package routes

import (
	"instagram-automation/internal/jobs"
	"instagram-automation/internal/media"
	"instagram-automation/middleware"
	"instagram-automation/services"
	"instagram-automation/utils"

	"github.com/gin-gonic/gin"
)

// PendingLister exposes registered timers. Only the in-process scheduler
// has them.
type PendingLister interface {
	Pending() []jobs.PendingJob
}

type Handlers struct {
	Accounts *services.AccountService
	Posts    *services.PostService
	Catalog  *services.CatalogService
	Uploads  *media.Storage
	Jobs     PendingLister
}

// SetupAPIRoutes mounts the JSON API under /api and the uploads directory
// under /uploads.
func SetupAPIRoutes(router *gin.Engine, h Handlers, authMiddleware *middleware.AuthMiddleware) {
	if h.Uploads != nil {
		router.Static("/uploads", h.Uploads.Dir())
	}

	api := router.Group("/api")
	api.Use(authMiddleware.RequireAuth(), middleware.AuditMiddleware())

	setupAccountRoutes(api, h.Accounts)
	setupPostRoutes(api, h.Posts, h.Uploads)
	setupCatalogRoutes(api, h.Catalog)

	if h.Jobs != nil {
		api.GET("/jobs", handleListJobs(h.Jobs))
	}

	router.NoRoute(func(c *gin.Context) {
		utils.RespondWithNotFound(c, "No route for "+c.Request.Method+" "+c.Request.URL.Path)
	})
}
