package api

import (
	"database/sql"

	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/api/handlers"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/api/middleware"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/config"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/httperr"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func SetupRouter(db *sql.DB, cfg *config.Config, rl *ratelimit.RateLimiter, log *logrus.Logger) *gin.Engine {
	router := gin.Default()
	router.HandleMethodNotAllowed = true
	h := handlers.NewHandler(db, cfg, log)
	authed := AuthMiddleware(db, cfg)

	//Swagger Route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	api.Use(middleware.APIRateLimit(rl))
	{
		// register/login/logout authenticate themselves; everything else
		// goes through the session cookie guard.
		api.POST("/user", middleware.AuthRateLimit(rl), h.UserPost)
		api.GET("/user", authed, h.UserGet)
		api.PATCH("/user", authed, h.UserPatch)
		api.DELETE("/user", authed, h.UserDelete)

		api.GET("/project", authed, h.ProjectGet)
		api.POST("/project", authed, h.ProjectPost)
		api.PATCH("/project", authed, h.ProjectPatch)
		api.DELETE("/project", authed, h.ProjectDelete)

		api.GET("/task", authed, h.TaskGet)
		api.POST("/task", authed, h.TaskPost)
		api.PATCH("/task", authed, h.TaskPatch)
		api.DELETE("/task", authed, h.TaskDelete)
	}

	router.NoMethod(func(c *gin.Context) {
		httperr.Abort(c, httperr.MethodNotAllowed())
	})

	return router
}
