package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PayFox/internal/pkg/callback"
	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/gateway"
	"github.com/ManuelReschke/PayFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
	"github.com/ManuelReschke/PayFox/internal/pkg/signature"
	"github.com/ManuelReschke/PayFox/internal/pkg/transaction"
)

const testStoreKey = "store-key"

type dispatched struct {
	mu       sync.Mutex
	outcomes []transaction.Status
}

func (d *dispatched) Dispatch(rec *transaction.Record, outcome transaction.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outcomes = append(d.outcomes, outcome)
}

type testEnv struct {
	app       *fiber.App
	mr        *miniredis.Miniredis
	payments  *payment.Service
	forwarded *dispatched
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	store := transaction.NewRedisStore(client)
	payments := payment.NewService(store, config.GatewayConfig{
		StoreKey:    testStoreKey,
		ClientID:    "600000000",
		GatewayURL:  "https://testpayment.cmi.co.ma/fim/est3Dgate",
		OkURL:       "http://localhost:3000/success",
		FailURL:     "http://localhost:3000/failure",
		CallbackURL: "http://localhost:3000/api/payments/callback",
		Currency:    "504",
		Lang:        "fr",
	})
	forwarded := &dispatched{}
	pc := NewPaymentController(payments, callback.NewProcessor(store, forwarded, testStoreKey), counter.New(client))

	app := fiber.New(fiber.Config{Views: html.New("../../views", ".html")})
	app.Post("/api/payments/create", pc.HandleCreatePayment)
	app.Post("/api/payments/callback", pc.HandleCallback)
	app.Get("/api/payments/status/:transactionId", pc.HandleStatus)
	app.Get("/success", HandleSuccessPage)
	app.Get("/failure", HandleFailurePage)
	app.Get("/health", HandleHealth)
	app.Get("/metrics/callbacks", pc.HandleCallbackStats)

	return &testEnv{app: app, mr: mr, payments: payments, forwarded: forwarded}
}

func (e *testEnv) createPending(t *testing.T) string {
	t.Helper()
	created, err := e.payments.Create(context.Background(), transaction.NewInput{
		Amount: decimal.RequireFromString("100.00"),
		Email:  "a@b.com",
		Phone:  "+212600000000",
		Name:   "Ali",
	})
	require.NoError(t, err)
	return created.Record.ID
}

func signedCallback(t *testing.T, id, code string) url.Values {
	t.Helper()
	fields := map[string]string{
		"ReturnOid":      id,
		"amount":         "100.00",
		"ProcReturnCode": code,
		"Response":       "Approved",
		"clientid":       "600000000",
	}
	hash, err := signature.Sign(fields, gateway.CallbackExcluded, testStoreKey)
	require.NoError(t, err)

	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set(signature.HashField, hash)
	return form
}

func postForm(t *testing.T, app *fiber.App, path string, form url.Values) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	return do(t, app, req)
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHandleCreatePayment(t *testing.T) {
	env := newTestEnv(t)

	status, body := postJSON(t, env.app, "/api/payments/create",
		`{"amount":100.5,"email":"a@b.com","phone":"+212600000000","name":"Ali","extra":{"guest_id":"42"}}`)
	require.Equal(t, fiber.StatusOK, status, body)

	var resp struct {
		Success       bool   `json:"success"`
		TransactionID string `json:"transactionId"`
		PaymentForm   string `json:"paymentForm"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	assert.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.TransactionID, "TXN_"))
	assert.Contains(t, resp.PaymentForm, `action="https://testpayment.cmi.co.ma/fim/est3Dgate"`)
	assert.Contains(t, resp.PaymentForm, `name="oid" value="`+resp.TransactionID+`"`)
	assert.Contains(t, resp.PaymentForm, `name="amount" value="100.50"`)
	assert.Contains(t, resp.PaymentForm, `name="HASH"`)
	assert.Contains(t, resp.PaymentForm, `name="customData"`)
	assert.True(t, env.mr.Exists(transaction.Key(resp.TransactionID)))
}

func TestHandleCreatePayment_FormBody(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{}
	form.Set("amount", "25")
	form.Set("email", "a@b.com")
	form.Set("phone", "0600000000")
	form.Set("name", "Ali")
	status, body := postForm(t, env.app, "/api/payments/create", form)
	assert.Equal(t, fiber.StatusOK, status, body)
}

func TestHandleCreatePayment_Invalid(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing fields", body: `{"amount":10,"email":"a@b.com"}`},
		{name: "bad email", body: `{"amount":10,"email":"nope","phone":"1","name":"Ali"}`},
		{name: "negative amount", body: `{"amount":-5,"email":"a@b.com","phone":"1","name":"Ali"}`},
		{name: "not a number", body: `{"amount":"ten","email":"a@b.com","phone":"1","name":"Ali"}`},
		{name: "malformed", body: `{"amount":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := postJSON(t, env.app, "/api/payments/create", tt.body)
			assert.Equal(t, fiber.StatusBadRequest, status, body)
			assert.Contains(t, body, `"error"`)
		})
	}
	assert.Empty(t, env.mr.Keys())
}

func TestHandleCreatePayment_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.mr.SetError("ERR simulated outage")

	status, _ := postJSON(t, env.app, "/api/payments/create",
		`{"amount":10,"email":"a@b.com","phone":"1","name":"Ali"}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}

func TestHandleCallback_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		tamper  bool
		ack     string
		outcome transaction.Status
	}{
		{name: "approved", code: "00", ack: callback.AckPostAuth, outcome: transaction.StatusCompleted},
		{name: "declined", code: "05", ack: callback.AckApproved, outcome: transaction.StatusFailed},
		{name: "forged", code: "00", tamper: true, ack: callback.AckFailed, outcome: transaction.StatusSecurityFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			id := env.createPending(t)

			form := signedCallback(t, id, tt.code)
			if tt.tamper {
				form.Set("amount", "1.00")
			}

			status, body := postForm(t, env.app, "/api/payments/callback", form)
			assert.Equal(t, fiber.StatusOK, status)
			assert.Equal(t, tt.ack, body)

			status, body = do(t, env.app, httptest.NewRequest(http.MethodGet, "/api/payments/status/"+id, nil))
			require.Equal(t, fiber.StatusOK, status)
			var view map[string]any
			require.NoError(t, json.Unmarshal([]byte(body), &view))
			assert.Equal(t, string(tt.outcome), view["status"])

			assert.Equal(t, []transaction.Status{tt.outcome}, env.forwarded.outcomes)
		})
	}
}

func TestHandleCallback_JSONBody(t *testing.T) {
	env := newTestEnv(t)
	id := env.createPending(t)

	form := signedCallback(t, id, "00")
	payload := make(map[string]string, len(form))
	for k := range form {
		payload[k] = form.Get(k)
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	status, body := postJSON(t, env.app, "/api/payments/callback", string(raw))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, callback.AckPostAuth, body)
}

func TestHandleCallback_Replay(t *testing.T) {
	env := newTestEnv(t)
	id := env.createPending(t)
	form := signedCallback(t, id, "00")

	for i := 0; i < 3; i++ {
		status, body := postForm(t, env.app, "/api/payments/callback", form)
		assert.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, callback.AckPostAuth, body)
	}
	assert.Len(t, env.forwarded.outcomes, 1)

	status, body := do(t, env.app, httptest.NewRequest(http.MethodGet, "/metrics/callbacks", nil))
	require.Equal(t, fiber.StatusOK, status)
	var counts map[string]int64
	require.NoError(t, json.Unmarshal([]byte(body), &counts))
	assert.Equal(t, map[string]int64{"completed": 1, "replayed": 2}, counts)
}

func TestCallbackLabel(t *testing.T) {
	assert.Equal(t, "conflict", callbackLabel(callback.Ack{Conflict: true, Outcome: transaction.StatusFailed}))
	assert.Equal(t, "replayed", callbackLabel(callback.Ack{Replayed: true, Outcome: transaction.StatusCompleted}))
	assert.Equal(t, "security_failed", callbackLabel(callback.Ack{Outcome: transaction.StatusSecurityFailed}))
	assert.Equal(t, "rejected_404", callbackLabel(callback.Ack{StatusCode: fiber.StatusNotFound}))
}

func TestHandleCallback_Failures(t *testing.T) {
	env := newTestEnv(t)

	status, body := postForm(t, env.app, "/api/payments/callback", url.Values{"amount": {"1"}})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, callback.AckFailed, body)

	status, body = postForm(t, env.app, "/api/payments/callback", signedCallback(t, "TXN_unknown", "00"))
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, callback.AckFailed, body)

	status, body = postJSON(t, env.app, "/api/payments/callback", `{"ReturnOid":`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, callback.AckFailed, body)

	env.mr.SetError("ERR simulated outage")
	status, body = postForm(t, env.app, "/api/payments/callback", signedCallback(t, "TXN_any", "00"))
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, callback.AckFailed, body)
}

func TestHandleStatus_NotFound(t *testing.T) {
	env := newTestEnv(t)

	status, body := do(t, env.app, httptest.NewRequest(http.MethodGet, "/api/payments/status/TXN_missing", nil))
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Contains(t, body, "Transaction not found")
}

func TestResultPages(t *testing.T) {
	env := newTestEnv(t)

	status, body := do(t, env.app, httptest.NewRequest(http.MethodGet, "/success?oid=TXN_1_abc", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "Payment successful")
	assert.Contains(t, body, "TXN_1_abc")

	status, body = do(t, env.app, httptest.NewRequest(http.MethodGet, "/failure?oid=%3Cscript%3E", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "Payment failed")
	assert.NotContains(t, body, "<script>")
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	status, body := do(t, env.app, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, fiber.StatusOK, status)

	var resp map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "OK", resp["status"])
	assert.NotEmpty(t, resp["timestamp"])
}
