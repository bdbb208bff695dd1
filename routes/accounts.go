package routes

import (
	"net/http"

	"instagram-automation/services"
	"instagram-automation/utils"

	"github.com/gin-gonic/gin"
)

func setupAccountRoutes(api *gin.RouterGroup, svc *services.AccountService) {
	accounts := api.Group("/accounts")
	accounts.GET("", handleListAccounts(svc))
	accounts.POST("", handleRegisterAccount(svc))
	accounts.GET("/:id", handleGetAccount(svc))
	accounts.PUT("/:id/active", handleSetAccountActive(svc))
	accounts.GET("/:id/schedule", handleGetSchedule(svc))
	accounts.PUT("/:id/schedule", handleSetSchedule(svc))
}

func handleListAccounts(svc *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		accounts, err := svc.List(c.Request.Context(), c.Query("active") == "true")
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"accounts": accounts, "count": len(accounts)})
	}
}

func handleRegisterAccount(svc *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.RegisterAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		account, err := svc.Register(c.Request.Context(), req)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusCreated, account)
	}
}

func handleGetAccount(svc *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func handleSetAccountActive(svc *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "is_active is required", err.Error())
			return
		}

		account, err := svc.SetActive(c.Request.Context(), c.Param("id"), *req.IsActive)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func handleGetSchedule(svc *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sched, err := svc.Schedule(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, sched)
	}
}

func handleSetSchedule(svc *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.ScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		sched, err := svc.SetSchedule(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, sched)
	}
}
