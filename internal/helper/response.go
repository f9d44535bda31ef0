package helper

import (
	"strings"

	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"
)

const (
	CallerHeader = "X-Caller-ID"
	callerKey    = "caller_id"
)

// ResultSchema is the wire form of ledger.Result. Balances are rendered at
// the ledger scale so 1200 is always "1200.00".
type ResultSchema struct {
	Status     ledger.Status `json:"status"`
	NewBalance *string       `json:"new_balance,omitempty"`
	ErrorKind  ledger.Kind   `json:"error_kind,omitempty"`
	Message    string        `json:"message,omitempty"`
}

func NewResultSchema(res ledger.Result, scale int32) ResultSchema {
	out := ResultSchema{Status: res.Status, ErrorKind: res.ErrorKind, Message: res.Message}
	if res.NewBalance != nil {
		s := res.NewBalance.StringFixed(scale)
		out.NewBalance = &s
	}
	return out
}

// RequireCaller rejects requests without an upstream-authenticated caller id.
func RequireCaller(c fiber.Ctx) error {
	caller := strings.TrimSpace(c.Get(CallerHeader))
	if caller == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ResultSchema{
			Status:    ledger.StatusFailure,
			ErrorKind: ledger.KindInvalidRequest,
			Message:   "missing " + CallerHeader + " header",
		})
	}
	c.Locals(callerKey, caller)
	return c.Next()
}

func CallerID(c fiber.Ctx) string {
	caller, _ := c.Locals(callerKey).(string)
	return caller
}

func StatusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindAccountNotFound:
		return fiber.StatusNotFound
	case ledger.KindInvalidAmount, ledger.KindInvalidRequest:
		return fiber.StatusUnprocessableEntity
	case ledger.KindInsufficientFunds, ledger.KindContention:
		return fiber.StatusConflict
	case ledger.KindStorageUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func Fail(c fiber.Ctx, err error) error {
	res := ledger.Failure(err)
	return c.Status(StatusFor(res.ErrorKind)).JSON(NewResultSchema(res, 0))
}

func OK(c fiber.Ctx, balance decimal.Decimal, scale int32) error {
	return c.JSON(NewResultSchema(ledger.Success(balance), scale))
}

func BadRequest(c fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ResultSchema{
		Status:    ledger.StatusFailure,
		ErrorKind: ledger.KindInvalidRequest,
		Message:   message,
	})
}

func Unprocessable(c fiber.Ctx, err error) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(ResultSchema{
		Status:    ledger.StatusFailure,
		ErrorKind: ledger.KindInvalidRequest,
		Message:   err.Error(),
	})
}
