package transfer

import (
	"github.com/JhonesBR/go-ledger/internal/helper"
	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/gofiber/fiber/v3"
)

func CreateTransferHandler(engine *ledger.Engine) fiber.Handler {
	return func(c fiber.Ctx) error {
		var body = CreateTransferSchema{}
		if err := c.Bind().Body(&body); err != nil {
			return helper.BadRequest(c, "malformed request body")
		}
		if err := helper.ValidateInput(&body); err != nil {
			return helper.Unprocessable(c, err)
		}

		res, err := engine.Transfer(c, ledger.TransferRequest{
			FromAccountID: body.FromAccountID,
			ToAccountID:   body.ToAccountID,
			Amount:        *body.Amount,
			CallerID:      helper.CallerID(c),
		})
		if err != nil {
			return helper.Fail(c, err)
		}

		scale := engine.Scale()
		return c.JSON(TransferResultSchema{
			Status:      ledger.StatusSuccess,
			FromBalance: res.FromBalance.StringFixed(scale),
			ToBalance:   res.ToBalance.StringFixed(scale),
		})
	}
}
