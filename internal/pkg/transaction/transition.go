package transaction

import (
	"fmt"
	"time"
)

// SuccessCode is the ProcReturnCode the gateway sends for an authorized payment.
const SuccessCode = "00"

// Result tells the caller what Transition did.
type Result int

const (
	// Applied means the record left pending and must be persisted.
	Applied Result = iota + 1
	// Replayed means the outcome was already recorded; nothing changed.
	Replayed
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Replayed:
		return "replayed"
	}
	return "unknown"
}

// Classify maps a verified callback onto the terminal status it demands.
// An invalid signature wins over any result code.
func Classify(signatureValid bool, resultCode string) Status {
	if !signatureValid {
		return StatusSecurityFailed
	}
	if resultCode == SuccessCode {
		return StatusCompleted
	}
	return StatusFailed
}

// Transition moves rec to outcome. rec is never modified; on Applied the
// returned record is a copy with the terminal timestamp and the raw gateway
// fields attached. A terminal record that receives its own outcome again is
// returned unchanged with Replayed; any other outcome yields
// ErrStateInconsistency together with the unchanged record.
func Transition(rec *Record, outcome Status, fields map[string]string, now time.Time) (*Record, Result, error) {
	if !outcome.IsTerminal() {
		return rec, 0, validationError(fmt.Sprintf("%q is not a terminal status", outcome))
	}

	if rec.Status.IsTerminal() {
		if rec.Status == outcome {
			return rec, Replayed, nil
		}
		return rec, 0, fmt.Errorf("%w: %s is %s, callback says %s", ErrStateInconsistency, rec.ID, rec.Status, outcome)
	}
	if rec.Status != StatusPending {
		return rec, 0, fmt.Errorf("%w: %s has unknown status %q", ErrStateInconsistency, rec.ID, rec.Status)
	}

	next := *rec
	next.Status = outcome
	next.GatewayResponse = cloneFields(fields)
	next.Extra = cloneFields(rec.Extra)

	stamp := now.UTC()
	if outcome == StatusCompleted {
		next.CompletedAt = &stamp
		next.FailedAt = nil
	} else {
		next.FailedAt = &stamp
		next.CompletedAt = nil
	}

	return &next, Applied, nil
}
