package account

import (
	"github.com/JhonesBR/go-ledger/internal/helper"
	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"
)

func CreateNewAccountHandler(engine *ledger.Engine) fiber.Handler {
	return func(c fiber.Ctx) error {
		// Parse create account schema
		var account = CreateAccountSchema{}
		if err := c.Bind().Body(&account); err != nil {
			return helper.BadRequest(c, "malformed request body")
		}
		if err := helper.ValidateInput(&account); err != nil {
			return helper.Unprocessable(c, err)
		}

		initial := decimal.Zero
		if account.InitialBalance != nil {
			initial = *account.InitialBalance
		}
		acc, err := engine.OpenAccount(c, ledger.OpenAccountRequest{
			OwnerID:        account.OwnerID,
			Type:           ledger.AccountType(account.AccountType),
			InitialBalance: initial,
			CallerID:       helper.CallerID(c),
		})
		if err != nil {
			return helper.Fail(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(newAccountShowSchema(acc, engine.Scale()))
	}
}

func GetAccountByIDHandler(engine *ledger.Engine) fiber.Handler {
	return func(c fiber.Ctx) error {
		acc, err := engine.GetAccount(c, c.Params("id"))
		if err != nil {
			return helper.Fail(c, err)
		}
		return c.JSON(newAccountShowSchema(acc, engine.Scale()))
	}
}

func ListAccountsByOwnerHandler(engine *ledger.Engine) fiber.Handler {
	return func(c fiber.Ctx) error {
		accounts, err := engine.ListAccountsByOwner(c, c.Query("owner_id"))
		if err != nil {
			return helper.Fail(c, err)
		}
		out := make([]AccountShowSchema, 0, len(accounts))
		for _, acc := range accounts {
			out = append(out, newAccountShowSchema(acc, engine.Scale()))
		}
		return c.JSON(out)
	}
}

func CloseAccountHandler(engine *ledger.Engine) fiber.Handler {
	return func(c fiber.Ctx) error {
		acc, err := engine.CloseAccount(c, ledger.CloseAccountRequest{
			AccountID: c.Params("id"),
			CallerID:  helper.CallerID(c),
		})
		if err != nil {
			return helper.Fail(c, err)
		}
		return c.JSON(newAccountShowSchema(acc, engine.Scale()))
	}
}

func GetAccountAuditHandler(engine *ledger.Engine) fiber.Handler {
	return func(c fiber.Ctx) error {
		recs, err := engine.AuditTrail(c, c.Params("id"))
		if err != nil {
			return helper.Fail(c, err)
		}
		out := make([]AuditShowSchema, 0, len(recs))
		for _, rec := range recs {
			out = append(out, newAuditShowSchema(rec))
		}
		return c.JSON(out)
	}
}

func GetAccountTransactionsHandler(engine *ledger.Engine) fiber.Handler {
	return func(c fiber.Ctx) error {
		// Get pagination
		pagination := helper.GetPagination[TransactionShowSchema](c)

		txs, total, err := engine.TransactionPage(c, c.Params("id"), pagination.Offset(), pagination.Size)
		if err != nil {
			return helper.Fail(c, err)
		}
		pagination.Total = &total

		for _, tx := range txs {
			pagination.Items = append(pagination.Items, newTransactionShowSchema(tx, engine.Scale()))
		}

		return c.JSON(pagination)
	}
}

// UpdateAccountBalanceHandler serves deposits and withdrawals; operation is
// "deposit" or "withdraw".
func UpdateAccountBalanceHandler(engine *ledger.Engine, operation string) fiber.Handler {
	return func(c fiber.Ctx) error {
		var body = UpdateBalanceSchema{}
		if err := c.Bind().Body(&body); err != nil {
			return helper.BadRequest(c, "malformed request body")
		}
		if err := helper.ValidateInput(&body); err != nil {
			return helper.Unprocessable(c, err)
		}

		var (
			balance decimal.Decimal
			err     error
		)
		switch operation {
		case "deposit":
			balance, err = engine.Deposit(c, ledger.DepositRequest{
				AccountID: c.Params("id"),
				Amount:    *body.Amount,
				CallerID:  helper.CallerID(c),
			})
		case "withdraw":
			balance, err = engine.Withdraw(c, ledger.WithdrawRequest{
				AccountID: c.Params("id"),
				Amount:    *body.Amount,
				CallerID:  helper.CallerID(c),
			})
		default:
			return fiber.ErrNotFound
		}
		if err != nil {
			return helper.Fail(c, err)
		}

		return helper.OK(c, balance, engine.Scale())
	}
}
