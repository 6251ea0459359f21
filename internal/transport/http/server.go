package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/medchat-server/internal/config"
	"github.com/vovakirdan/medchat-server/internal/core"
	"github.com/vovakirdan/medchat-server/internal/store"
)

// Deps are the collaborators the HTTP layer routes to.
type Deps struct {
	Hub      *core.Hub
	Verifier TokenVerifier
	Store    store.Store
	Auditor  core.Auditor
}

// NewServer builds the HTTP server.
func NewServer(cfg *config.Config, deps Deps, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, deps, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers /health, /ws and the /api group.
func NewRouter(cfg *config.Config, deps Deps, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/ws", gin.WrapH(NewWSHandler(deps.Hub, deps.Verifier, cfg, logger)))

	api := NewAPIHandlers(deps.Store, deps.Hub, deps.Auditor, cfg.AI.Model, logger)
	group := router.Group("/api", AuthMiddleware(deps.Verifier, logger))
	group.POST("/conversations", api.CreateConversation)
	group.GET("/conversations", api.ListConversations)
	group.GET("/conversations/:id/messages", api.ListMessages)
	group.GET("/presence/:userId", api.Presence)

	return router
}
