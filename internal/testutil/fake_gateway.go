package testutil

import (
	"context"
	"sync"

	"github.com/stack21app-sketch/stack21-sub003/internal/domain/payment"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// FakeGateway is a deterministic payment.Gateway for tests. Outcomes are
// scripted ahead of time and consumed in order; when the script runs out it
// keeps settling. It also records every charge request so tests can assert
// on idempotency keys and amounts.
type FakeGateway struct {
	mu       sync.Mutex
	script   []FakeOutcome
	requests []payment.ChargeRequest

	// settled tracks idempotency keys that already settled, so a retried
	// charge under the same key reports settled without a second charge.
	settled map[string]string
}

// FakeOutcome is one scripted gateway response.
type FakeOutcome struct {
	// Decline answers the charge with a business decline.
	Decline bool

	// Err simulates an infrastructure fault; the charge outcome is unknown.
	Err error

	// Hold, when non-nil, parks the charge inside the gateway until the
	// channel is closed. Tests use it to observe what the caller does
	// while a charge is in flight.
	Hold chan struct{}
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		settled: make(map[string]string),
	}
}

// Script queues outcomes consumed by subsequent charges, first in first out.
func (g *FakeGateway) Script(outcomes ...FakeOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script = append(g.script, outcomes...)
}

// Requests returns a copy of every charge request seen so far.
func (g *FakeGateway) Requests() []payment.ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]payment.ChargeRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// ChargeCount returns how many charges reached the gateway.
func (g *FakeGateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *FakeGateway) Charge(ctx context.Context, req *payment.ChargeRequest) (*payment.ChargeResult, error) {
	g.mu.Lock()
	g.requests = append(g.requests, *req)

	if ref, ok := g.settled[req.IdempotencyKey]; ok {
		g.mu.Unlock()
		return &payment.ChargeResult{
			Outcome:    types.SettlementOutcomeSettled,
			GatewayRef: ref,
		}, nil
	}

	var outcome FakeOutcome
	if len(g.script) > 0 {
		outcome = g.script[0]
		g.script = g.script[1:]
	}
	g.mu.Unlock()

	// Released the mutex first so ChargeCount stays callable while a
	// charge is parked.
	if outcome.Hold != nil {
		select {
		case <-outcome.Hold:
		case <-ctx.Done():
			return nil, ierr.WithError(ctx.Err()).
				WithHint("Unable to reach the payment gateway").
				Mark(ierr.ErrGateway)
		}
	}

	if outcome.Err != nil {
		return nil, ierr.WithError(outcome.Err).
			WithHint("Unable to reach the payment gateway").
			Mark(ierr.ErrGateway)
	}
	if outcome.Decline {
		return &payment.ChargeResult{
			Outcome:       types.SettlementOutcomeDeclined,
			FailureReason: "card_declined",
		}, nil
	}

	ref := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SETTLEMENT)
	g.mu.Lock()
	g.settled[req.IdempotencyKey] = ref
	g.mu.Unlock()
	return &payment.ChargeResult{
		Outcome:    types.SettlementOutcomeSettled,
		GatewayRef: ref,
	}, nil
}
