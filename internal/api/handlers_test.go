package api_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JhonesBR/go-ledger/internal/api"
	"github.com/JhonesBR/go-ledger/internal/ledger"
	"github.com/JhonesBR/go-ledger/internal/ledger/memory"
)

const caller = "teller-1"

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	engine, err := ledger.New(memory.New().Stores(), ledger.DefaultConfig())
	require.NoError(t, err)

	app := fiber.New()
	api.InitializeRoutes(app, engine, nil)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	status, raw := send(t, app, method, path, body)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return status, out
}

func doList(t *testing.T, app *fiber.App, path string) (int, []map[string]any) {
	t.Helper()
	status, raw := send(t, app, http.MethodGet, path, "")
	var out []map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return status, out
}

func send(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-ID", caller)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func openAccount(t *testing.T, app *fiber.App, accountType, initial string) string {
	t.Helper()
	status, body := do(t, app, http.MethodPost, "/v1/accounts",
		`{"owner_id":"alice","account_type":"`+accountType+`","initial_balance":"`+initial+`"}`)
	require.Equal(t, http.StatusCreated, status, body)
	return body["id"].(string)
}

func TestMissingCallerIsUnauthorized(t *testing.T) {
	app := newApp(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/abc", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOpenAndReadAccount(t *testing.T) {
	app := newApp(t)
	id := openAccount(t, app, "savings", "1000")

	status, body := do(t, app, http.MethodGet, "/v1/accounts/"+id, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1000.00", body["balance"])
	assert.Equal(t, "savings", body["account_type"])
	assert.EqualValues(t, 1, body["version"])
}

func TestOpenAccountRejectsUnknownType(t *testing.T) {
	app := newApp(t)

	status, body := do(t, app, http.MethodPost, "/v1/accounts", `{"owner_id":"alice","account_type":"bonds"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_request", body["error_kind"])
}

func TestDepositAndWithdraw(t *testing.T) {
	app := newApp(t)
	id := openAccount(t, app, "savings", "1000")

	status, body := do(t, app, http.MethodPost, "/v1/accounts/"+id+"/deposit", `{"amount":"200"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "1200.00", body["new_balance"])

	status, body = do(t, app, http.MethodPost, "/v1/accounts/"+id+"/withdraw", `{"amount":"2000"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "failure", body["status"])
	assert.Equal(t, "insufficient_funds", body["error_kind"])
	assert.NotContains(t, body, "new_balance")

	status, body = do(t, app, http.MethodPost, "/v1/accounts/"+id+"/withdraw", `{"amount":200.5}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "999.50", body["new_balance"])
}

func TestBalanceErrors(t *testing.T) {
	app := newApp(t)
	id := openAccount(t, app, "checking", "10")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		kind   string
	}{
		{"negative amount", "/v1/accounts/" + id + "/deposit", `{"amount":"-5"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"too precise", "/v1/accounts/" + id + "/deposit", `{"amount":"0.001"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"missing amount", "/v1/accounts/" + id + "/deposit", `{}`, http.StatusUnprocessableEntity, "invalid_request"},
		{"malformed body", "/v1/accounts/" + id + "/deposit", `{"amount":`, http.StatusBadRequest, "invalid_request"},
		{"unknown account", "/v1/accounts/missing/withdraw", `{"amount":"1"}`, http.StatusNotFound, "account_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, body["error_kind"])
		})
	}
}

func TestTransfer(t *testing.T) {
	app := newApp(t)
	a := openAccount(t, app, "savings", "500")
	b := openAccount(t, app, "checking", "500")

	status, body := do(t, app, http.MethodPost, "/v1/transfers",
		`{"from_account_id":"`+a+`","to_account_id":"`+b+`","amount":"300"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "200.00", body["from_balance"])
	assert.Equal(t, "800.00", body["to_balance"])

	status, body = do(t, app, http.MethodPost, "/v1/transfers",
		`{"from_account_id":"`+a+`","to_account_id":"`+a+`","amount":"1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_request", body["error_kind"])
}

func TestTransactionsArePaginated(t *testing.T) {
	app := newApp(t)
	id := openAccount(t, app, "savings", "0")
	for _, amount := range []string{"1", "2", "3"} {
		status, _ := do(t, app, http.MethodPost, "/v1/accounts/"+id+"/deposit", `{"amount":"`+amount+`"}`)
		require.Equal(t, http.StatusOK, status)
	}

	status, body := do(t, app, http.MethodGet, "/v1/accounts/"+id+"/transactions?page=1&size=2", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, body["total"])
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "3.00", items[0].(map[string]any)["amount"])
	assert.Equal(t, "6.00", items[0].(map[string]any)["resulting_balance"])

	status, body = do(t, app, http.MethodGet, "/v1/accounts/"+id+"/transactions?page=3&size=2", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["items"])

	status, body = do(t, app, http.MethodGet, "/v1/accounts/"+id+"/transactions?page=9223372036854775807&size=100", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 3, body["total"])
	assert.Empty(t, body["items"])

	status, body = do(t, app, http.MethodGet, "/v1/accounts/missing/transactions", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "account_not_found", body["error_kind"])
}

func TestCloseAccount(t *testing.T) {
	app := newApp(t)
	id := openAccount(t, app, "checking", "25")

	status, body := do(t, app, http.MethodPost, "/v1/accounts/"+id+"/close", "")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_request", body["error_kind"])

	status, _ = do(t, app, http.MethodPost, "/v1/accounts/"+id+"/withdraw", `{"amount":"25"}`)
	require.Equal(t, http.StatusOK, status)
	status, body = do(t, app, http.MethodPost, "/v1/accounts/"+id+"/close", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["closed_at"])
	assert.EqualValues(t, 3, body["version"])

	status, body = do(t, app, http.MethodPost, "/v1/accounts/"+id+"/deposit", `{"amount":"1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_request", body["error_kind"])

	status, body = do(t, app, http.MethodGet, "/v1/accounts/"+id+"/transactions", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, body = do(t, app, http.MethodPost, "/v1/accounts/missing/close", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "account_not_found", body["error_kind"])
}

func TestListAccountsByOwner(t *testing.T) {
	app := newApp(t)
	a := openAccount(t, app, "savings", "1")
	b := openAccount(t, app, "loan", "0")

	status, accounts := doList(t, app, "/v1/accounts?owner_id=alice")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, accounts, 2)
	assert.Equal(t, a, accounts[0]["id"])
	assert.Equal(t, b, accounts[1]["id"])

	status, accounts = doList(t, app, "/v1/accounts?owner_id=bob")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, accounts)

	status, body := do(t, app, http.MethodGet, "/v1/accounts", "")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_request", body["error_kind"])
}

func TestAccountAudit(t *testing.T) {
	app := newApp(t)
	id := openAccount(t, app, "savings", "10")
	status, _ := do(t, app, http.MethodPost, "/v1/accounts/"+id+"/withdraw", `{"amount":"50"}`)
	require.Equal(t, http.StatusConflict, status)

	status, recs := doList(t, app, "/v1/accounts/"+id+"/audit")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, recs, 2)
	assert.Equal(t, "open", recs[0]["action"])
	assert.Equal(t, "success", recs[0]["outcome"])
	assert.Equal(t, "withdrawal", recs[1]["action"])
	assert.Equal(t, "error", recs[1]["outcome"])
	assert.Equal(t, caller, recs[1]["caller_id"])
}

func TestPanicsBecomeServerErrors(t *testing.T) {
	engine, err := ledger.New(memory.New().Stores(), ledger.DefaultConfig())
	require.NoError(t, err)
	app := fiber.New()
	api.InitializeRoutes(app, engine, nil)
	app.Get("/boom", func(fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
