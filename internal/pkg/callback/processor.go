// Package callback turns an inbound CMI server-to-server notification into
// exactly one terminal transition and the acknowledgment the gateway expects.
package callback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/gateway"
	"github.com/ManuelReschke/PayFox/internal/pkg/signature"
	"github.com/ManuelReschke/PayFox/internal/pkg/transaction"
)

// Acknowledgment bodies required by the gateway protocol. APPROVED means
// "callback processed" for a declined payment, not an approval.
const (
	AckPostAuth = "ACTION=POSTAUTH"
	AckApproved = "APPROVED"
	AckFailed   = "FAILED"
)

// Ack is the response handed back to the gateway.
type Ack struct {
	StatusCode    int
	Body          string
	TransactionID string
	// Outcome is the recorded terminal status, empty when no record was resolved.
	Outcome  transaction.Status
	Replayed bool
	// Conflict marks a callback whose outcome disagreed with the recorded one.
	Conflict bool
}

// Forwarder receives every freshly recorded outcome. It must not block.
type Forwarder interface {
	Dispatch(rec *transaction.Record, outcome transaction.Status)
}

type Processor struct {
	store     transaction.Store
	forwarder Forwarder
	storeKey  string
	excluded  []string
	ttl       time.Duration
	now       func() time.Time
}

func NewProcessor(store transaction.Store, forwarder Forwarder, storeKey string) *Processor {
	return &Processor{
		store:     store,
		forwarder: forwarder,
		storeKey:  storeKey,
		excluded:  gateway.CallbackExcluded,
		ttl:       transaction.RecordTTL,
		now:       time.Now,
	}
}

// AckFor maps a terminal status to its acknowledgment body.
func AckFor(status transaction.Status) string {
	switch status {
	case transaction.StatusCompleted:
		return AckPostAuth
	case transaction.StatusFailed:
		return AckApproved
	}
	return AckFailed
}

// Handle processes one callback. It never panics and always returns one of
// the protocol tokens.
func (p *Processor) Handle(ctx context.Context, fields map[string]string) (ack Ack) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Callback] Panic while handling callback: %v", r)
			ack = Ack{StatusCode: http.StatusInternalServerError, Body: AckFailed, TransactionID: ack.TransactionID}
		}
	}()

	id, ok := gateway.CorrelationID(fields)
	if !ok {
		log.Warnf("[Callback] Missing transaction id (%d fields received)", len(fields))
		return Ack{StatusCode: http.StatusBadRequest, Body: AckFailed}
	}
	ack.TransactionID = id

	current, err := p.store.Get(ctx, id)
	if err != nil {
		return p.lookupFailure(id, err)
	}

	valid, verr := signature.Check(fields, p.storeKey, p.excluded...)
	if !valid {
		log.Warnf("[Callback] Hash verification failed for %s: %v", id, verr)
	}
	outcome := transaction.Classify(valid, fields[gateway.FieldProcReturnCode])

	var result transaction.Result
	now := p.now()
	stored, err := p.store.Apply(ctx, id, p.ttl, func(rec *transaction.Record) (*transaction.Record, error) {
		next, res, err := transaction.Transition(rec, outcome, fields, now)
		if err != nil {
			return nil, err
		}
		result = res
		if res == transaction.Replayed {
			return nil, nil
		}
		if valid {
			mergeCustomData(next, fields)
		}
		return next, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, transaction.ErrStateInconsistency):
		if stored == nil {
			stored = current
		}
		return conflictAck(stored, err)
	case errors.Is(err, transaction.ErrNotFound):
		// Expired between lookup and write.
		return p.lookupFailure(id, err)
	default:
		// The outcome is already decided; the gateway still gets its answer.
		log.Errorf("[Callback] Failed to persist %s for %s: %v", outcome, id, err)
		stored, result, err = transitionUnpersisted(current, outcome, valid, fields, now)
		if err != nil {
			return conflictAck(stored, err)
		}
	}

	if result == transaction.Replayed {
		log.Infof("[Callback] Duplicate callback for %s (%s), nothing to apply", id, stored.Status)
		return Ack{StatusCode: http.StatusOK, Body: AckFor(stored.Status), TransactionID: id, Outcome: stored.Status, Replayed: true}
	}

	log.Infof("[Callback] Transaction %s is now %s", id, stored.Status)
	p.forwarder.Dispatch(stored, outcome)

	return Ack{StatusCode: http.StatusOK, Body: AckFor(outcome), TransactionID: id, Outcome: outcome}
}

// transitionUnpersisted computes the transition on the record read before
// the failed write, so the consumer still hears about the outcome.
func transitionUnpersisted(current *transaction.Record, outcome transaction.Status, valid bool, fields map[string]string, now time.Time) (*transaction.Record, transaction.Result, error) {
	next, res, err := transaction.Transition(current, outcome, fields, now)
	if err != nil {
		return next, res, err
	}
	if res == transaction.Applied && valid {
		mergeCustomData(next, fields)
	}
	return next, res, nil
}

// conflictAck answers with the recorded outcome, never the new one.
func conflictAck(recorded *transaction.Record, err error) Ack {
	log.Errorf("[Callback] ALERT %v; acknowledging recorded outcome", err)
	return Ack{
		StatusCode:    http.StatusOK,
		Body:          AckFor(recorded.Status),
		TransactionID: recorded.ID,
		Outcome:       recorded.Status,
		Conflict:      true,
	}
}

func (p *Processor) lookupFailure(id string, err error) Ack {
	if errors.Is(err, transaction.ErrNotFound) {
		log.Warnf("[Callback] Transaction %s not found or expired", id)
		return Ack{StatusCode: http.StatusNotFound, Body: AckFailed, TransactionID: id}
	}
	log.Errorf("[Callback] Failed to load transaction %s: %v", id, err)
	return Ack{StatusCode: http.StatusServiceUnavailable, Body: AckFailed, TransactionID: id}
}

// mergeCustomData fills Extra from the customData carrier when the
// initiation flow stored none.
func mergeCustomData(rec *transaction.Record, fields map[string]string) {
	if len(rec.Extra) > 0 {
		return
	}
	raw, ok := fields[gateway.FieldCustomData]
	if !ok {
		return
	}
	extra, err := gateway.ParseCustomData(raw)
	if err != nil {
		log.Warnf("[Callback] Ignoring customData for %s: %v", rec.ID, err)
		return
	}
	rec.Extra = extra
}

// String is used in log lines.
func (a Ack) String() string {
	return fmt.Sprintf("%d %s", a.StatusCode, a.Body)
}
