package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/gateway"
	"github.com/ManuelReschke/PayFox/internal/pkg/transaction"
)

// Service is the payment-initiation flow and the only writer of pending records.
type Service struct {
	store   transaction.Store
	gateway config.GatewayConfig
	now     func() time.Time
}

func NewService(store transaction.Store, gw config.GatewayConfig) *Service {
	return &Service{store: store, gateway: gw, now: time.Now}
}

// Created is returned to the payer's client after initiation.
type Created struct {
	Record *transaction.Record
	Form   gateway.PaymentForm
}

// Create stores a pending transaction and signs the hosted page request for it.
func (s *Service) Create(ctx context.Context, in transaction.NewInput) (*Created, error) {
	rec, err := transaction.NewPending(in, s.now())
	if err != nil {
		return nil, err
	}

	form, err := gateway.BuildPaymentForm(s.gateway, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to build payment form: %w", err)
	}

	if err := s.store.Create(ctx, rec, transaction.RecordTTL); err != nil {
		return nil, err
	}

	log.Infof("[Payment] Created transaction %s for %s", rec.ID, rec.Amount.StringFixed(2))
	return &Created{Record: rec, Form: form}, nil
}

// Status returns the read-only view of a transaction.
func (s *Service) Status(ctx context.Context, id string) (transaction.StatusView, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return transaction.StatusView{}, err
	}
	return rec.View(), nil
}
