package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"

	"github.com/banwatch/backend/internal/config"
	"github.com/banwatch/backend/internal/core/ports"
	"github.com/banwatch/backend/internal/core/services"
	"github.com/banwatch/backend/internal/infrastructure/db"
	"github.com/banwatch/backend/internal/infrastructure/logger"
	"github.com/banwatch/backend/internal/transport/http/dto"
	"github.com/banwatch/backend/internal/transport/http/handlers"
	httpmw "github.com/banwatch/backend/internal/transport/http/middleware"
)

type RouterConfig struct {
	DB     *gorm.DB
	Logger *logger.Logger
	Config *config.Config
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) ports.CheckService {
	taskRepo := db.NewTaskRepository(cfg.DB, cfg.Logger)

	statusClient := services.NewStatusClient(cfg.Config.Checker.StatusEndpoint, cfg.Logger)

	checkService := services.NewCheckService(services.CheckServiceConfig{
		Repository: taskRepo,
		Client:     statusClient,
		Checker:    cfg.Config.Checker,
		Logger:     cfg.Logger,
	})

	checkHandler := handlers.NewCheckHandler(checkService, cfg.Logger)
	streamHandler := handlers.NewStreamHandler(checkService, cfg.Logger)

	apiAuth := httpmw.APIKeyAuth(cfg.Config)

	// Callers are expected to poll get-task with jitter and back off on 429;
	// this limiter is what produces that 429.
	pollLimiter := limiter.New(limiter.Config{
		Max:        cfg.Config.Checker.PollLimitRequests,
		Expiration: cfg.Config.Checker.PollLimitWindow,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Error: "polling too fast, back off and retry",
			})
		},
	})

	// Websocket progress stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/checks/:id", apiAuth, websocket.New(streamHandler.Handle))

	// API v1 routes
	api := app.Group("/api/v1")

	checks := api.Group("/checks", apiAuth)
	checks.Post("/", checkHandler.SubmitChecks)
	checks.Post("/file", checkHandler.SubmitChecksFile)
	checks.Get("/", checkHandler.ListChecks)
	checks.Get("/:id", pollLimiter, checkHandler.GetCheck)

	return checkService
}
