package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/maisumh/aisearch-openai-rag-audio/internal/pkg/logger"
	"github.com/maisumh/aisearch-openai-rag-audio/internal/realtime"
)

type IRealtimeController interface {
	RegisterRoutes(router fiber.Router, middlewares ...fiber.Handler)
}

type realtimeController struct {
	manager *realtime.Manager
	logger  logger.ILogger
}

func NewRealtimeController(manager *realtime.Manager, log logger.ILogger) IRealtimeController {
	return &realtimeController{
		manager: manager,
		logger:  log,
	}
}

func (c *realtimeController) RegisterRoutes(router fiber.Router, middlewares ...fiber.Handler) {
	handlers := append(middlewares, c.serveWs)
	router.Get("/realtime", handlers...)
}

// serveWs upgrades the request and hands the connection to the session
// manager. The request id header must be captured before the upgrade because
// the fiber context is gone once the connection is hijacked.
func (c *realtimeController) serveWs(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	requestID := ctx.Get("x-ms-client-request-id")

	return websocket.New(func(conn *websocket.Conn) {
		if err := c.manager.Accept(conn, requestID); err != nil {
			c.logger.Warn("RealtimeController", "Session ended with error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	})(ctx)
}
