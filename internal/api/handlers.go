package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JhonesBR/go-ledger/internal/api/account"
	"github.com/JhonesBR/go-ledger/internal/api/transfer"
	"github.com/JhonesBR/go-ledger/internal/helper"
	"github.com/JhonesBR/go-ledger/internal/ledger"
)

func InitializeRoutes(app *fiber.App, engine *ledger.Engine, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	app.Use(recover.New())

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "two_phase": engine.TwoPhase()})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/v1", requestLogger(log), helper.RequireCaller)
	account.InitializeRoutes(v1, engine)
	transfer.InitializeRoutes(v1, engine)
}

func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		err := c.Next()
		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			log.Warn("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.String("caller_id", c.Get(helper.CallerHeader)),
			)
		}
		return err
	}
}
