package account

import (
	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/gofiber/fiber/v3"
)

func InitializeRoutes(router fiber.Router, engine *ledger.Engine) {
	router.Post("/accounts", CreateNewAccountHandler(engine))
	router.Get("/accounts", ListAccountsByOwnerHandler(engine))
	router.Get("/accounts/:id", GetAccountByIDHandler(engine))
	router.Get("/accounts/:id/transactions", GetAccountTransactionsHandler(engine))
	router.Post("/accounts/:id/deposit", UpdateAccountBalanceHandler(engine, "deposit"))
	router.Post("/accounts/:id/withdraw", UpdateAccountBalanceHandler(engine, "withdraw"))
	router.Post("/accounts/:id/close", CloseAccountHandler(engine))
	router.Get("/accounts/:id/audit", GetAccountAuditHandler(engine))
}
