package gateway

import (
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/signature"
	"github.com/ManuelReschke/PayFox/internal/pkg/transaction"
)

const (
	storeType     = "3D_PAY_HOSTING"
	hashAlgorithm = "ver3"
	tranType      = "PreAuth"
	encoding      = "UTF-8"
)

// Field is one hidden input of the payment form.
type Field struct {
	Name  string
	Value string
}

// PaymentForm is the auto-submitting POST to the CMI hosted payment page.
type PaymentForm struct {
	Action string
	Fields []Field
}

// Value returns the value of the named field.
func (f PaymentForm) Value(name string) string {
	for _, field := range f.Fields {
		if field.Name == name {
			return field.Value
		}
	}
	return ""
}

// BuildPaymentForm signs the request fields for a pending transaction.
func BuildPaymentForm(cfg config.GatewayConfig, rec *transaction.Record) (PaymentForm, error) {
	if strings.TrimSpace(cfg.StoreKey) == "" || strings.TrimSpace(cfg.ClientID) == "" {
		return PaymentForm{}, errors.New("CMI store key and client id must be configured")
	}

	fields := map[string]string{
		"clientid":         cfg.ClientID,
		"storetype":        storeType,
		"hashAlgorithm":    hashAlgorithm,
		"TranType":         tranType,
		"amount":           rec.Amount.StringFixed(2),
		"currency":         cfg.Currency,
		"oid":              rec.ID,
		"okUrl":            cfg.OkURL,
		"failUrl":          cfg.FailURL,
		"callbackUrl":      cfg.CallbackURL,
		"shopurl":          cfg.ShopURL,
		"lang":             cfg.Lang,
		"rnd":              uuid.NewString(),
		"encoding":         encoding,
		"email":            rec.Email,
		"BillToName":       rec.Name,
		"tel":              rec.Phone,
		"CallbackResponse": "true",
		"AutoRedirect":     "true",
	}

	customData, err := EncodeCustomData(rec.Extra)
	if err != nil {
		return PaymentForm{}, err
	}
	if customData != "" {
		fields[FieldCustomData] = customData
	}

	// Outgoing values are raw, so escape % to survive the canonical decode.
	signed := make(map[string]string, len(fields))
	for k, v := range fields {
		signed[k] = strings.ReplaceAll(v, "%", "%25")
	}
	hash, err := signature.Sign(signed, nil, cfg.StoreKey)
	if err != nil {
		return PaymentForm{}, err
	}
	fields[signature.HashField] = hash

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	form := PaymentForm{Action: cfg.GatewayURL, Fields: make([]Field, 0, len(names))}
	for _, name := range names {
		form.Fields = append(form.Fields, Field{Name: name, Value: fields[name]})
	}
	return form, nil
}
