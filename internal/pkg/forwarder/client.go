package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/transaction"
)

const (
	// Timeout bounds a single delivery.
	Timeout   = 10 * time.Second
	userAgent = "CMI-Payment-Integration/1.0"
)

var (
	// ErrForwarding wraps every delivery failure. Callers treat it as non-fatal.
	ErrForwarding    = errors.New("outcome forwarding failed")
	ErrNotConfigured = fmt.Errorf("%w: endpoint is not configured", ErrForwarding)
)

// Notification is the fixed-shape body sent to the downstream consumer.
type Notification struct {
	TransactionID string            `json:"transactionId"`
	Amount        json.Number       `json:"amount"`
	Email         string            `json:"email"`
	Name          string            `json:"name"`
	Phone         string            `json:"phone"`
	Description   string            `json:"description"`
	Status        string            `json:"status"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	FailedAt      *time.Time        `json:"failedAt,omitempty"`
	CMIResponse   map[string]string `json:"cmiResponse"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// StatusLabel is the status vocabulary the consumer expects.
func StatusLabel(outcome transaction.Status) string {
	if outcome == transaction.StatusCompleted {
		return "success"
	}
	return string(outcome)
}

// NewNotification builds the payload for rec and its classified outcome.
func NewNotification(rec *transaction.Record, outcome transaction.Status) Notification {
	return Notification{
		TransactionID: rec.ID,
		Amount:        json.Number(rec.Amount.String()),
		Email:         rec.Email,
		Name:          rec.Name,
		Phone:         rec.Phone,
		Description:   rec.Description,
		Status:        StatusLabel(outcome),
		CompletedAt:   rec.CompletedAt,
		FailedAt:      rec.FailedAt,
		CMIResponse:   rec.GatewayResponse,
		Extra:         rec.Extra,
	}
}

// Client posts outcomes to the downstream consumer.
type Client struct {
	endpoint string
	apiKey   string
	http     *resty.Client
}

func NewClient(cfg config.ForwarderConfig) *Client {
	return &Client{
		endpoint: cfg.EndpointURL,
		apiKey:   cfg.APIKey,
		http: resty.New().
			SetTimeout(Timeout).
			SetHeader("User-Agent", userAgent),
	}
}

// Notify delivers one outcome. Any non-2xx status is an error; nothing is retried.
func (c *Client) Notify(ctx context.Context, rec *transaction.Record, outcome transaction.Status) error {
	if c.endpoint == "" {
		return ErrNotConfigured
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Delivery-ID", uuid.NewString()).
		SetBody(NewNotification(rec, outcome))
	if c.apiKey != "" {
		req.SetAuthToken(c.apiKey)
	}

	resp, err := req.Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrForwarding, rec.ID, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: %s: consumer returned %s", ErrForwarding, rec.ID, resp.Status())
	}
	return nil
}
