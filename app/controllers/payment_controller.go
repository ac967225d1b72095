package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/PayFox/internal/pkg/callback"
	"github.com/ManuelReschke/PayFox/internal/pkg/gateway"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
	"github.com/ManuelReschke/PayFox/internal/pkg/transaction"
)

const paymentFormView = "payment_form"

// CreatePaymentRequest is accepted as JSON or as a urlencoded form.
type CreatePaymentRequest struct {
	Amount      json.Number       `json:"amount" form:"amount" validate:"required"`
	Email       string            `json:"email" form:"email" validate:"required,email"`
	Phone       string            `json:"phone" form:"phone" validate:"required"`
	Name        string            `json:"name" form:"name" validate:"required"`
	Description string            `json:"description" form:"description" validate:"max=255"`
	Extra       map[string]string `json:"extra" form:"-"`
}

// CallbackCounter tallies callback results. A nil counter disables tallying.
type CallbackCounter interface {
	Add(ctx context.Context, name string) error
	Snapshot(ctx context.Context) (map[string]int64, error)
}

type PaymentController struct {
	payments  *payment.Service
	processor *callback.Processor
	counters  CallbackCounter
	validate  *validator.Validate
}

func NewPaymentController(payments *payment.Service, processor *callback.Processor, counters CallbackCounter) *PaymentController {
	return &PaymentController{
		payments:  payments,
		processor: processor,
		counters:  counters,
		validate:  validator.New(),
	}
}

// HandleCreatePayment stores a pending transaction and returns the
// auto-submitting form for the CMI hosted payment page.
func (pc *PaymentController) HandleCreatePayment(c *fiber.Ctx) error {
	var req CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Name = strings.TrimSpace(req.Name)
	if err := pc.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Missing required fields",
			"details": validationDetails(err),
		})
	}

	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid amount"})
	}

	created, err := pc.payments.Create(c.UserContext(), transaction.NewInput{
		Amount:      amount,
		Email:       req.Email,
		Phone:       req.Phone,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Extra:       req.Extra,
	})
	switch {
	case err == nil:
	case errors.Is(err, transaction.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, transaction.ErrStoreUnavailable):
		log.Errorf("[PaymentController] Store unavailable while creating payment: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Service temporarily unavailable"})
	default:
		log.Errorf("[PaymentController] Failed to create payment: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create payment"})
	}

	form, err := renderPaymentForm(c, created.Form)
	if err != nil {
		log.Errorf("[PaymentController] Failed to render payment form for %s: %v", created.Record.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create payment"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":       true,
		"transactionId": created.Record.ID,
		"paymentForm":   form,
	})
}

// HandleCallback answers the gateway with a plain-text protocol token.
func (pc *PaymentController) HandleCallback(c *fiber.Ctx) error {
	fields, err := callbackFields(c)
	if err != nil {
		log.Warnf("[PaymentController] Unreadable callback body: %v", err)
		return c.Status(fiber.StatusBadRequest).SendString(callback.AckFailed)
	}

	ack := pc.processor.Handle(c.UserContext(), fields)
	log.Infof("[PaymentController] Callback %s answered %s", ack.TransactionID, ack)
	pc.count(c.UserContext(), callbackLabel(ack))

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(ack.StatusCode).SendString(ack.Body)
}

// HandleStatus returns the read-only status of a transaction.
func (pc *PaymentController) HandleStatus(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("transactionId"))
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing transaction id"})
	}

	view, err := pc.payments.Status(c.UserContext(), id)
	switch {
	case err == nil:
		return c.JSON(view)
	case errors.Is(err, transaction.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
	case errors.Is(err, transaction.ErrStoreUnavailable):
		log.Errorf("[PaymentController] Store unavailable while reading %s: %v", id, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Service temporarily unavailable"})
	default:
		log.Errorf("[PaymentController] Failed to read %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to get payment status"})
	}
}

// HandleCallbackStats returns the callback tallies shared by all instances.
func (pc *PaymentController) HandleCallbackStats(c *fiber.Ctx) error {
	if pc.counters == nil {
		return c.JSON(fiber.Map{})
	}
	snapshot, err := pc.counters.Snapshot(c.UserContext())
	if err != nil {
		log.Errorf("[PaymentController] Failed to read callback counters: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Service temporarily unavailable"})
	}
	return c.JSON(snapshot)
}

func (pc *PaymentController) count(ctx context.Context, name string) {
	if pc.counters == nil {
		return
	}
	if err := pc.counters.Add(ctx, name); err != nil {
		log.Warnf("[PaymentController] Failed to count callback %s: %v", name, err)
	}
}

func callbackLabel(ack callback.Ack) string {
	switch {
	case ack.Conflict:
		return "conflict"
	case ack.Replayed:
		return "replayed"
	case ack.Outcome != "":
		return string(ack.Outcome)
	}
	return fmt.Sprintf("rejected_%d", ack.StatusCode)
}

func HandleSuccessPage(c *fiber.Ctx) error {
	return c.Render("success", fiber.Map{
		"Title":         "Payment successful",
		"TransactionID": c.Query("oid"),
	})
}

func HandleFailurePage(c *fiber.Ctx) error {
	return c.Render("failure", fiber.Map{
		"Title":         "Payment failed",
		"TransactionID": c.Query("oid"),
	})
}

func HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func renderPaymentForm(c *fiber.Ctx, form gateway.PaymentForm) (string, error) {
	views := c.App().Config().Views
	if views == nil {
		return "", errors.New("no view engine configured")
	}
	var buf bytes.Buffer
	if err := views.Render(&buf, paymentFormView, form); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// callbackFields flattens the callback body into a field map. The gateway
// posts urlencoded forms; JSON bodies are accepted for replays and tooling.
func callbackFields(c *fiber.Ctx) (map[string]string, error) {
	fields := make(map[string]string)

	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) {
		var raw map[string]any
		decoder := json.NewDecoder(bytes.NewReader(c.Body()))
		decoder.UseNumber()
		if err := decoder.Decode(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			switch value := v.(type) {
			case nil:
			case string:
				fields[k] = value
			case json.Number:
				fields[k] = value.String()
			case bool:
				fields[k] = fmt.Sprint(value)
			default:
				encoded, err := json.Marshal(value)
				if err != nil {
					return nil, err
				}
				fields[k] = string(encoded)
			}
		}
		return fields, nil
	}

	if form, err := c.MultipartForm(); err == nil {
		for k, values := range form.Value {
			if len(values) > 0 {
				fields[k] = values[len(values)-1]
			}
		}
		return fields, nil
	}

	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		fields[string(key)] = string(value)
	})
	return fields, nil
}

func validationDetails(err error) []string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(errs))
	for _, fe := range errs {
		details = append(details, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return details
}
