package service

import (
	"context"

	"github.com/samber/lo"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/dto"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/payment"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// PaymentMethodService manages the stored payment methods settlements
// charge against. The card itself lives at the gateway; only the token and
// display fields are stored here.
type PaymentMethodService interface {
	// AddPaymentMethod stores a tokenized method. The tenant's first
	// method becomes the default automatically.
	AddPaymentMethod(ctx context.Context, req dto.CreatePaymentMethodRequest) (*dto.PaymentMethodResponse, error)

	GetPaymentMethod(ctx context.Context, id string) (*dto.PaymentMethodResponse, error)
	ListPaymentMethods(ctx context.Context, filter types.Filter) (*dto.ListPaymentMethodsResponse, error)

	// SetDefault promotes the method to the tenant's default, demoting any
	// previous default.
	SetDefault(ctx context.Context, id string) (*dto.PaymentMethodResponse, error)
}

type paymentMethodService struct {
	ServiceParams
}

func NewPaymentMethodService(params ServiceParams) PaymentMethodService {
	return &paymentMethodService{ServiceParams: params}
}

func (s *paymentMethodService) AddPaymentMethod(ctx context.Context, req dto.CreatePaymentMethodRequest) (*dto.PaymentMethodResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tenantID := types.GetTenantID(ctx)
	pm := req.ToPaymentMethod(ctx)

	if !pm.IsDefault {
		if _, err := s.PaymentMethodRepo.GetDefaultByTenant(ctx, tenantID); err != nil {
			if !ierr.IsNotFound(err) {
				return nil, err
			}
			pm.IsDefault = true
		}
	}

	if pm.IsDefault {
		if err := s.PaymentMethodRepo.ClearDefault(ctx, tenantID); err != nil {
			return nil, err
		}
	}

	if err := s.PaymentMethodRepo.Create(ctx, pm); err != nil {
		return nil, err
	}

	s.Logger.Infow("added payment method",
		"payment_method_id", pm.ID,
		"tenant_id", tenantID,
		"brand", pm.Brand,
		"last4", pm.Last4,
		"is_default", pm.IsDefault)
	return &dto.PaymentMethodResponse{PaymentMethod: pm}, nil
}

func (s *paymentMethodService) GetPaymentMethod(ctx context.Context, id string) (*dto.PaymentMethodResponse, error) {
	pm, err := s.getTenantMethod(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.PaymentMethodResponse{PaymentMethod: pm}, nil
}

func (s *paymentMethodService) ListPaymentMethods(ctx context.Context, filter types.Filter) (*dto.ListPaymentMethodsResponse, error) {
	methods, err := s.PaymentMethodRepo.ListByTenant(ctx, types.GetTenantID(ctx), filter)
	if err != nil {
		return nil, err
	}
	return &dto.ListPaymentMethodsResponse{
		Items: lo.Map(methods, func(pm *payment.PaymentMethod, _ int) *dto.PaymentMethodResponse {
			return &dto.PaymentMethodResponse{PaymentMethod: pm}
		}),
		Total: len(methods),
	}, nil
}

func (s *paymentMethodService) SetDefault(ctx context.Context, id string) (*dto.PaymentMethodResponse, error) {
	pm, err := s.getTenantMethod(ctx, id)
	if err != nil {
		return nil, err
	}
	if pm.IsDefault {
		return &dto.PaymentMethodResponse{PaymentMethod: pm}, nil
	}

	if err := s.PaymentMethodRepo.ClearDefault(ctx, pm.TenantID); err != nil {
		return nil, err
	}
	pm.IsDefault = true
	if err := s.PaymentMethodRepo.Update(ctx, pm); err != nil {
		return nil, err
	}
	return &dto.PaymentMethodResponse{PaymentMethod: pm}, nil
}

func (s *paymentMethodService) getTenantMethod(ctx context.Context, id string) (*payment.PaymentMethod, error) {
	pm, err := s.PaymentMethodRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if pm.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("payment method not found").
			WithHint("Payment method not found").
			WithReportableDetails(map[string]any{
				"payment_method_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}
	return pm, nil
}
