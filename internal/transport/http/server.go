package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sourcefile/pingline-server/internal/auth"
	"github.com/sourcefile/pingline-server/internal/blob"
	"github.com/sourcefile/pingline-server/internal/config"
	"github.com/sourcefile/pingline-server/internal/core"
	"github.com/sourcefile/pingline-server/internal/store"
	"github.com/sourcefile/pingline-server/internal/tenant"
)

// NewServer builds the HTTP server with all routes mounted.
func NewServer(router *core.Router, authService *auth.Service, st store.Store, blobs *blob.Store, tenants *tenant.Resolver, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(authService, tenants, logger)
	chatHandlers := NewChatHandlers(router, st, blobs, logger)
	wsHandler := NewWSHandler(router, authService, logger)

	engine.GET("/health", healthHandler)
	engine.Static("/uploads", cfg.UploadDir)

	api := engine.Group("/api")
	open := api.Group("", RateLimitMiddleware(cfg.AuthRateLimit))
	open.POST("/register", apiHandlers.Register)
	open.POST("/login", apiHandlers.Login)

	authorized := api.Group("", AuthMiddleware(authService, logger))
	authorized.GET("/home", chatHandlers.Home)
	authorized.GET("/chat", chatHandlers.Thread)
	authorized.POST("/messages", chatHandlers.SendMessage)
	authorized.DELETE("/messages/:id", chatHandlers.DeleteMessage)
	authorized.GET("/users", chatHandlers.Users)
	authorized.PUT("/profile", chatHandlers.UpdateProfile)

	// The ws upgrade hijacks the connection, which gin's wrapped
	// ResponseWriter refuses; /ws lives on the outer mux instead.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.Handle("/", engine)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
