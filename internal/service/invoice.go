package service

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/dto"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/invoice"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// InvoiceService manages the append-only invoice ledger. Invoices are only
// ever created and moved forward through their status machine; nothing here
// deletes or rewrites an issued invoice.
type InvoiceService interface {
	// Issue creates an open invoice snapshotting the plan price for one
	// billing period. When an idempotency key is supplied and an invoice
	// already exists under it, that invoice is returned instead of a new one.
	Issue(ctx context.Context, req *IssueInvoiceRequest) (*dto.InvoiceResponse, error)

	GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter types.Filter) (*dto.ListInvoicesResponse, error)

	// MarkPaid transitions an open invoice to paid and stamps PaidAt.
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (*dto.InvoiceResponse, error)

	// MarkFailed transitions an open invoice to uncollectible after a
	// declined settlement.
	MarkFailed(ctx context.Context, id string) (*dto.InvoiceResponse, error)

	// MarkVoid voids an open invoice that should never be collected.
	MarkVoid(ctx context.Context, id string) (*dto.InvoiceResponse, error)
}

// IssueInvoiceRequest carries everything needed to write one ledger entry.
type IssueInvoiceRequest struct {
	SubscriptionID string
	PlanID         string
	AmountMinor    int64
	Currency       string
	Description    string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	IdempotencyKey string
}

type invoiceService struct {
	ServiceParams
}

func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{ServiceParams: params}
}

func (s *invoiceService) Issue(ctx context.Context, req *IssueInvoiceRequest) (*dto.InvoiceResponse, error) {
	if req.AmountMinor < 0 {
		return nil, ierr.NewError("invoice amount cannot be negative").
			WithHint("Invoice amounts must be non negative").
			WithReportableDetails(map[string]any{
				"amount_minor": req.AmountMinor,
			}).
			Mark(ierr.ErrValidation)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.InvoiceRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			s.Logger.Infow("invoice already issued under idempotency key",
				"invoice_id", existing.ID,
				"idempotency_key", req.IdempotencyKey)
			return dto.NewInvoiceResponse(existing), nil
		}
		if !ierr.IsNotFound(err) {
			return nil, err
		}
	}

	inv := &invoice.Invoice{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		SubscriptionID: req.SubscriptionID,
		PlanID:         req.PlanID,
		InvoiceNumber:  types.GenerateInvoiceNumber(),
		AmountMinor:    req.AmountMinor,
		Currency:       req.Currency,
		InvoiceStatus:  types.InvoiceStatusOpen,
		Description:    req.Description,
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		DueDate:        req.PeriodEnd,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	if req.IdempotencyKey != "" {
		inv.IdempotencyKey = lo.ToPtr(req.IdempotencyKey)
	}

	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("issued invoice",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"subscription_id", inv.SubscriptionID,
		"amount_minor", inv.AmountMinor)
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter types.Filter) (*dto.ListInvoicesResponse, error) {
	tenantID := types.GetTenantID(ctx)
	invoices, err := s.InvoiceRepo.ListByTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	return &dto.ListInvoicesResponse{
		Items: lo.Map(invoices, func(inv *invoice.Invoice, _ int) *dto.InvoiceResponse {
			return dto.NewInvoiceResponse(inv)
		}),
		Total: len(invoices),
	}, nil
}

func (s *invoiceService) MarkPaid(ctx context.Context, id string, paidAt time.Time) (*dto.InvoiceResponse, error) {
	return s.transition(ctx, id, types.InvoiceStatusPaid, func(inv *invoice.Invoice) {
		inv.PaidAt = lo.ToPtr(paidAt.UTC())
	})
}

func (s *invoiceService) MarkFailed(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	return s.transition(ctx, id, types.InvoiceStatusUncollectible, nil)
}

func (s *invoiceService) MarkVoid(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	return s.transition(ctx, id, types.InvoiceStatusVoid, func(inv *invoice.Invoice) {
		inv.VoidedAt = lo.ToPtr(time.Now().UTC())
	})
}

func (s *invoiceService) transition(ctx context.Context, id string, to types.InvoiceStatus, apply func(*invoice.Invoice)) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !inv.InvoiceStatus.CanTransitionTo(to) {
		return nil, ierr.NewError("invalid invoice status transition").
			WithHint("The invoice cannot move to the requested status").
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
				"from":       inv.InvoiceStatus,
				"to":         to,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	inv.InvoiceStatus = to
	if apply != nil {
		apply(inv)
	}
	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("invoice status changed",
		"invoice_id", inv.ID,
		"status", inv.InvoiceStatus)
	return dto.NewInvoiceResponse(inv), nil
}
