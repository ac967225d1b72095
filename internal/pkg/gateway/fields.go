// Package gateway knows the CMI field names and builds the hosted payment
// page request. Everything else about the gateway is treated as opaque.
package gateway

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

const (
	FieldReturnOid      = "ReturnOid"
	FieldOid            = "oid"
	FieldProcReturnCode = "ProcReturnCode"
	// FieldCustomData carries merchant data through the gateway. It is
	// transport metadata and excluded from the callback hash.
	FieldCustomData = "customData"
)

// CallbackExcluded lists the carrier fields left out of the callback hash in
// addition to signature.DefaultExcluded.
var CallbackExcluded = []string{FieldCustomData}

// CorrelationID returns the transaction id echoed by the gateway, preferring
// ReturnOid over oid.
func CorrelationID(fields map[string]string) (string, bool) {
	for _, name := range []string{FieldReturnOid, FieldOid} {
		if v := strings.TrimSpace(fields[name]); v != "" {
			return v, true
		}
	}
	return "", false
}

// ParseCustomData decodes the customData carrier. The gateway HTML-escapes
// quotes (&#34; / &#39;) on the way back.
func ParseCustomData(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(html.UnescapeString(raw)), &decoded); err != nil {
		return nil, fmt.Errorf("invalid customData: %w", err)
	}

	out := make(map[string]string, len(decoded))
	for k, v := range decoded {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("invalid customData value for %s: %w", k, err)
			}
			out[k] = string(b)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// EncodeCustomData is the inverse of ParseCustomData for outgoing requests.
func EncodeCustomData(extra map[string]string) (string, error) {
	if len(extra) == 0 {
		return "", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
