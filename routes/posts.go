package routes

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"instagram-automation/internal/media"
	"instagram-automation/models"
	"instagram-automation/services"
	"instagram-automation/utils"

	"github.com/gin-gonic/gin"
)

func setupPostRoutes(api *gin.RouterGroup, svc *services.PostService, uploads *media.Storage) {
	posts := api.Group("/posts")
	posts.GET("", handleListPosts(svc))
	posts.POST("", handleSubmitPost(svc, uploads))
	posts.GET("/:id", handleGetPost(svc))
	posts.POST("/:id/cancel", handleCancelPost(svc))
	posts.GET("/:id/metrics", handlePostMetrics(svc))

	api.GET("/stats", handleStats(svc))
	api.GET("/export/posts", handleExportPosts(svc))
}

// handleSubmitPost accepts JSON with media_urls, or a multipart form with
// one or more "files" (order is carousel order).
func handleSubmitPost(svc *services.PostService, uploads *media.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.SubmitRequest

		if strings.HasPrefix(c.ContentType(), "multipart/") {
			if err := c.ShouldBind(&req); err != nil {
				utils.RespondWithBadRequest(c, "Invalid form", err.Error())
				return
			}
			if raw := c.PostForm("story_elements"); raw != "" {
				var elements models.StoryElements
				if err := json.Unmarshal([]byte(raw), &elements); err != nil {
					utils.RespondWithBadRequest(c, "story_elements must be JSON", err.Error())
					return
				}
				req.StoryElements = &elements
			}

			form, err := c.MultipartForm()
			if err != nil {
				utils.RespondWithBadRequest(c, "Invalid multipart form", err.Error())
				return
			}
			headers := append(form.File["files"], form.File["file"]...)
			if len(headers) > 0 && uploads == nil {
				utils.RespondWithBadRequest(c, "File uploads are disabled", nil)
				return
			}
			for _, fh := range headers {
				f, err := uploads.SaveUpload(fh)
				if err != nil {
					utils.RespondWithAppError(c, err)
					return
				}
				req.Files = append(req.Files, f)
			}
		} else if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		post, err := svc.Submit(c.Request.Context(), req)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusCreated, post)
	}
}

func handleListPosts(svc *services.PostService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
		posts, err := svc.List(c.Request.Context(), services.PostQuery{
			AccountID: c.Query("account_id"),
			Status:    c.Query("status"),
			Limit:     limit,
		})
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
	}
}

func handleGetPost(svc *services.PostService) gin.HandlerFunc {
	return func(c *gin.Context) {
		post, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, post)
	}
}

func handleCancelPost(svc *services.PostService) gin.HandlerFunc {
	return func(c *gin.Context) {
		post, err := svc.Cancel(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, post)
	}
}

func handlePostMetrics(svc *services.PostService) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics, err := svc.Metrics(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"post_id": c.Param("id"), "metrics": metrics})
	}
}

func handleStats(svc *services.PostService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := svc.Stats(c.Request.Context(), c.Query("account_id"))
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func handleExportPosts(svc *services.PostService) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := svc.Export(c.Request.Context(), services.PostQuery{
			AccountID: c.Query("account_id"),
			Status:    c.Query("status"),
		})
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		filename := "posts_" + time.Now().UTC().Format("20060102_150405") + ".xlsx"
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	}
}
