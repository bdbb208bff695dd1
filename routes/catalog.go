package routes

import (
	"net/http"

	"instagram-automation/internal/jobs"
	"instagram-automation/services"
	"instagram-automation/utils"

	"github.com/gin-gonic/gin"
)

func setupCatalogRoutes(api *gin.RouterGroup, svc *services.CatalogService) {
	api.GET("/hashtags", handleListHashtags(svc))
	api.POST("/hashtags", handleAddHashtag(svc))
	api.PUT("/hashtags/:tag/active", handleSetHashtagActive(svc))

	api.GET("/templates", handleListTemplates(svc))
	api.POST("/templates", handleAddTemplate(svc))
}

func handleListHashtags(svc *services.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tags, err := svc.ListHashtags(c.Request.Context())
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"hashtags": tags, "count": len(tags)})
	}
}

func handleAddHashtag(svc *services.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.HashtagRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}
		tag, err := svc.AddHashtag(c.Request.Context(), req)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusCreated, tag)
	}
}

func handleSetHashtagActive(svc *services.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "is_active is required", err.Error())
			return
		}
		if err := svc.SetHashtagActive(c.Request.Context(), c.Param("tag"), *req.IsActive); err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tag": c.Param("tag"), "is_active": *req.IsActive})
	}
}

func handleListTemplates(svc *services.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		templates, err := svc.ListTemplates(c.Request.Context(), c.Query("active") == "true")
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"templates": templates, "count": len(templates)})
	}
}

func handleAddTemplate(svc *services.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.TemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}
		t, err := svc.AddTemplate(c.Request.Context(), req)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

func handleListJobs(lister PendingLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		pending := lister.Pending()
		if pending == nil {
			pending = []jobs.PendingJob{}
		}
		c.JSON(http.StatusOK, gin.H{"jobs": pending, "count": len(pending)})
	}
}
