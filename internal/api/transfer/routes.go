package transfer

import (
	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/gofiber/fiber/v3"
)

func InitializeRoutes(router fiber.Router, engine *ledger.Engine) {
	router.Post("/transfers", CreateTransferHandler(engine))
}
