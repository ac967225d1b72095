package payment

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/transaction"
)

func newTestService(t *testing.T, gw config.GatewayConfig) (*Service, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	return NewService(transaction.NewRedisStore(client), gw), mr
}

func gatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		StoreKey:   "store-key",
		ClientID:   "600000000",
		GatewayURL: "https://testpayment.cmi.co.ma/fim/est3Dgate",
		Currency:   "504",
		Lang:       "fr",
	}
}

func input() transaction.NewInput {
	return transaction.NewInput{
		Amount: decimal.RequireFromString("100.00"),
		Email:  "a@b.com",
		Phone:  "+212600000000",
		Name:   "Ali",
	}
}

func TestService_CreateStoresPendingRecord(t *testing.T) {
	svc, mr := newTestService(t, gatewayConfig())

	created, err := svc.Create(context.Background(), input())
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusPending, created.Record.Status)
	assert.Equal(t, created.Record.ID, created.Form.Value("oid"))
	assert.True(t, mr.Exists(transaction.Key(created.Record.ID)))
	assert.Equal(t, transaction.RecordTTL, mr.TTL(transaction.Key(created.Record.ID)))

	view, err := svc.Status(context.Background(), created.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, view.Status)
	assert.True(t, view.Amount.Equal(decimal.NewFromInt(100)))
	assert.Nil(t, view.CompletedAt)
}

func TestService_CreateValidation(t *testing.T) {
	svc, mr := newTestService(t, gatewayConfig())

	in := input()
	in.Phone = ""
	_, err := svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, transaction.ErrValidation)
	assert.Empty(t, mr.Keys())
}

func TestService_CreateWithoutGatewayCredentials(t *testing.T) {
	svc, mr := newTestService(t, config.GatewayConfig{})

	_, err := svc.Create(context.Background(), input())
	assert.Error(t, err)
	assert.Empty(t, mr.Keys())
}

func TestService_CreateStoreUnavailable(t *testing.T) {
	svc, mr := newTestService(t, gatewayConfig())
	mr.SetError("ERR simulated outage")

	_, err := svc.Create(context.Background(), input())
	assert.ErrorIs(t, err, transaction.ErrStoreUnavailable)
}

func TestService_StatusNotFound(t *testing.T) {
	svc, mr := newTestService(t, gatewayConfig())

	_, err := svc.Status(context.Background(), "TXN_missing")
	assert.ErrorIs(t, err, transaction.ErrNotFound)

	created, err := svc.Create(context.Background(), input())
	require.NoError(t, err)
	mr.FastForward(transaction.RecordTTL + time.Second)

	_, err = svc.Status(context.Background(), created.Record.ID)
	assert.ErrorIs(t, err, transaction.ErrNotFound)
}
