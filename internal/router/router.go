package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"focusflow/backend/internal/handler"
	"focusflow/backend/internal/hub"
	"focusflow/backend/internal/middleware"
	"focusflow/backend/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	sessionHandler *handler.SessionHandler,
	taskHandler *handler.TaskHandler,
	realtime *hub.Hub,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/ws", gin.WrapH(hub.Handler(realtime, authService)))

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	sessions := api.Group("/sessions")
	sessions.Use(middleware.Auth(authService))
	sessions.POST("", sessionHandler.Create)
	sessions.POST("/default", sessionHandler.CreateDefault)
	sessions.GET("", sessionHandler.FindAllNotIdle)
	sessions.GET("/working", sessionHandler.FindWorking)
	sessions.GET("/:id", sessionHandler.FindOne)
	sessions.DELETE("/:id", sessionHandler.Delete)
	sessions.POST("/:id/start", sessionHandler.Start)
	sessions.POST("/:id/pause", sessionHandler.Pause)
	sessions.POST("/:id/resume", sessionHandler.Resume)
	sessions.POST("/:id/stop", sessionHandler.Stop)
	sessions.POST("/:id/reset", sessionHandler.Reset)
	sessions.POST("/:id/share", sessionHandler.Share)
	sessions.GET("/:id/shared", sessionHandler.Shared)
	sessions.POST("/:id/link", sessionHandler.LinkTask)
	sessions.DELETE("/:id/link", sessionHandler.UnlinkTask)

	tasks := api.Group("/tasks")
	tasks.Use(middleware.Auth(authService))
	tasks.POST("", taskHandler.Create)
	tasks.GET("", taskHandler.List)
	tasks.GET("/:id/sessions", taskHandler.Sessions)

	return engine
}
