package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending        Status = "pending"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusSecurityFailed Status = "security_failed"
)

// DefaultDescription is used when the payer gives none.
const DefaultDescription = "Payment"

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSecurityFailed:
		return true
	}
	return false
}

// Record is the persisted transaction. It is stored as JSON under
// KeyPrefix+ID and expires after the retention window.
type Record struct {
	ID              string            `json:"id"`
	Amount          decimal.Decimal   `json:"amount"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Status          Status            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	FailedAt        *time.Time        `json:"failed_at,omitempty"`
	GatewayResponse map[string]string `json:"gateway_response,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// NewInput is what the payment-initiation flow knows about a payer.
type NewInput struct {
	Amount      decimal.Decimal
	Email       string
	Phone       string
	Name        string
	Description string
	Extra       map[string]string
}

// NewPending validates in and builds a pending record with a fresh id.
func NewPending(in NewInput, now time.Time) (*Record, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	id, err := NewID(now)
	if err != nil {
		return nil, err
	}

	description := in.Description
	if description == "" {
		description = DefaultDescription
	}

	return &Record{
		ID:          id,
		Amount:      in.Amount,
		Email:       in.Email,
		Phone:       in.Phone,
		Name:        in.Name,
		Description: description,
		Status:      StatusPending,
		CreatedAt:   now.UTC(),
		Extra:       cloneFields(in.Extra),
	}, nil
}

func (in NewInput) validate() error {
	switch {
	case !in.Amount.IsPositive():
		return validationError("amount must be positive")
	case in.Email == "":
		return validationError("email is required")
	case in.Phone == "":
		return validationError("phone is required")
	case in.Name == "":
		return validationError("name is required")
	}
	return nil
}

// StatusView is the read-only projection returned by the status endpoint.
type StatusView struct {
	ID          string          `json:"id"`
	Status      Status          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	FailedAt    *time.Time      `json:"failed_at,omitempty"`
}

func (r *Record) View() StatusView {
	return StatusView{
		ID:          r.ID,
		Status:      r.Status,
		Amount:      r.Amount,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
		FailedAt:    r.FailedAt,
	}
}

func cloneFields(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
