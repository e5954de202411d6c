package postgres

import (
	"context"
	"time"

	"github.com/stack21app-sketch/stack21-sub003/internal/domain/payment"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/logger"
	"github.com/stack21app-sketch/stack21-sub003/internal/postgres"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

type paymentMethodRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentMethodRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return &paymentMethodRepository{db: db, logger: logger}
}

func (r *paymentMethodRepository) Create(ctx context.Context, pm *payment.PaymentMethod) error {
	query := `
		INSERT INTO payment_methods (
			id,
			tenant_id,
			gateway_token,
			brand,
			last4,
			exp_month,
			exp_year,
			is_default,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		)
		VALUES (
			:id,
			:tenant_id,
			:gateway_token,
			:brand,
			:last4,
			:exp_month,
			:exp_year,
			:is_default,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, pm)
	if err != nil {
		r.logger.Errorw("failed to create payment method", "error", err)
		return ierr.WithError(err).
			WithHint("Failed to save payment method").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *paymentMethodRepository) Get(ctx context.Context, id string) (*payment.PaymentMethod, error) {
	query := `
		SELECT * FROM payment_methods
		WHERE id = :id
		AND status = :status
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"id":     id,
		"status": types.StatusPublished,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment method").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("payment method not found").
			WithHint("The requested payment method does not exist").
			WithReportableDetails(map[string]any{
				"payment_method_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}

	var pm payment.PaymentMethod
	if err := rows.StructScan(&pm); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read payment method").
			Mark(ierr.ErrDatabase)
	}

	return &pm, nil
}

func (r *paymentMethodRepository) Update(ctx context.Context, pm *payment.PaymentMethod) error {
	query := `
		UPDATE payment_methods SET
			is_default = :is_default,
			status = :status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id
	`

	pm.UpdatedAt = time.Now().UTC()
	pm.UpdatedBy = types.GetUserID(ctx)

	_, err := r.db.NamedExecContext(ctx, query, pm)
	if err != nil {
		r.logger.Errorw("failed to update payment method", "error", err)
		return ierr.WithError(err).
			WithHint("Failed to update payment method").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *paymentMethodRepository) ListByTenant(ctx context.Context, tenantID string, filter types.Filter) ([]*payment.PaymentMethod, error) {
	query := `
		SELECT * FROM payment_methods
		WHERE tenant_id = :tenant_id
		AND status = :status
		ORDER BY created_at DESC
		LIMIT :limit OFFSET :offset
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"tenant_id": tenantID,
		"status":    types.StatusPublished,
		"limit":     filter.GetLimit(),
		"offset":    filter.GetOffset(),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list payment methods").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var methods []*payment.PaymentMethod
	for rows.Next() {
		var pm payment.PaymentMethod
		if err := rows.StructScan(&pm); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to read payment method").
				Mark(ierr.ErrDatabase)
		}
		methods = append(methods, &pm)
	}

	return methods, nil
}

func (r *paymentMethodRepository) GetDefaultByTenant(ctx context.Context, tenantID string) (*payment.PaymentMethod, error) {
	query := `
		SELECT * FROM payment_methods
		WHERE tenant_id = :tenant_id
		AND is_default = true
		AND status = :status
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"tenant_id": tenantID,
		"status":    types.StatusPublished,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get default payment method").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("no default payment method").
			WithHint("The tenant has no default payment method").
			WithReportableDetails(map[string]any{
				"tenant_id": tenantID,
			}).
			Mark(ierr.ErrNotFound)
	}

	var pm payment.PaymentMethod
	if err := rows.StructScan(&pm); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read payment method").
			Mark(ierr.ErrDatabase)
	}

	return &pm, nil
}

func (r *paymentMethodRepository) ClearDefault(ctx context.Context, tenantID string) error {
	query := `
		UPDATE payment_methods SET
			is_default = false,
			updated_at = :updated_at
		WHERE tenant_id = :tenant_id
		AND is_default = true
	`

	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"tenant_id":  tenantID,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to clear default payment method").
			Mark(ierr.ErrDatabase)
	}

	return nil
}
