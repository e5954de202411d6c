package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/stack21app-sketch/stack21-sub003/internal/domain/usage"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/logger"
	"github.com/stack21app-sketch/stack21-sub003/internal/postgres"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

type usageRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return &usageRepository{db: db, logger: logger}
}

// counterColumn maps a metered resource to its counter column. The resource
// is a validated closed enum, never caller input, so interpolating the
// column name is safe.
func counterColumn(resource types.MeteredResource) (string, error) {
	switch resource {
	case types.MeteredResourceAPICalls:
		return "api_calls", nil
	case types.MeteredResourceWorkflows:
		return "workflows", nil
	case types.MeteredResourceExecutions:
		return "executions", nil
	case types.MeteredResourceStorageMB:
		return "storage_mb", nil
	case types.MeteredResourceMembers:
		return "members", nil
	case types.MeteredResourceAICredits:
		return "ai_credits", nil
	}
	return "", ierr.NewError("unknown metered resource").
		WithHint("Unknown metered resource").
		WithReportableDetails(map[string]any{
			"resource": resource,
		}).
		Mark(ierr.ErrValidation)
}

func (r *usageRepository) Create(ctx context.Context, rec *usage.Record) error {
	query := `
		INSERT INTO usage_records (
			id,
			tenant_id,
			period_label,
			api_calls,
			workflows,
			executions,
			storage_mb,
			members,
			ai_credits,
			last_updated_at,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		)
		VALUES (
			:id,
			:tenant_id,
			:period_label,
			:api_calls,
			:workflows,
			:executions,
			:storage_mb,
			:members,
			:ai_credits,
			:last_updated_at,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		r.logger.Errorw("failed to create usage record", "error", err)
		return ierr.WithError(err).
			WithHint("Failed to create usage record").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *usageRepository) Update(ctx context.Context, rec *usage.Record) error {
	query := `
		UPDATE usage_records SET
			api_calls = :api_calls,
			workflows = :workflows,
			executions = :executions,
			storage_mb = :storage_mb,
			members = :members,
			ai_credits = :ai_credits,
			last_updated_at = :last_updated_at,
			updated_at = :updated_at
		WHERE tenant_id = :tenant_id
		AND period_label = :period_label
	`

	rec.UpdatedAt = time.Now().UTC()
	rec.LastUpdatedAt = rec.UpdatedAt

	_, err := r.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		r.logger.Errorw("failed to update usage record", "error", err)
		return ierr.WithError(err).
			WithHint("Failed to update usage record").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *usageRepository) GetByTenantAndPeriod(ctx context.Context, tenantID string, label types.PeriodLabel) (*usage.Record, error) {
	query := `
		SELECT * FROM usage_records
		WHERE tenant_id = :tenant_id
		AND period_label = :period_label
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"tenant_id":    tenantID,
		"period_label": label,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get usage record").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("usage record not found").
			WithHint("No usage has been recorded for this period").
			WithReportableDetails(map[string]any{
				"tenant_id":    tenantID,
				"period_label": label,
			}).
			Mark(ierr.ErrNotFound)
	}

	var rec usage.Record
	if err := rows.StructScan(&rec); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read usage record").
			Mark(ierr.ErrDatabase)
	}

	return &rec, nil
}

// IncrementWithinLimit performs the quota check and the counter increment in
// one conditional upsert so concurrent callers cannot jointly overrun the
// limit. Rows affected 0 means the bound would have been exceeded.
func (r *usageRepository) IncrementWithinLimit(ctx context.Context, tenantID string, label types.PeriodLabel, resource types.MeteredResource, amount int64, limit int64) (bool, error) {
	col, err := counterColumn(resource)
	if err != nil {
		return false, err
	}

	// A brand new record starts at zero, so a bounded amount larger than
	// the limit can be rejected before touching the database.
	if limit != types.UnlimitedQuota && amount > limit {
		return false, nil
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`
		INSERT INTO usage_records (
			id, tenant_id, period_label, %s, last_updated_at,
			status, created_at, updated_at, created_by, updated_by
		)
		VALUES (
			:id, :tenant_id, :period_label, :amount, :now,
			:row_status, :now, :now, :user_id, :user_id
		)
		ON CONFLICT (tenant_id, period_label) DO UPDATE SET
			%s = usage_records.%s + :amount,
			last_updated_at = :now,
			updated_at = :now
		WHERE CAST(:limit AS BIGINT) < 0
		OR usage_records.%s + :amount <= :limit
	`, col, col, col, col)

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_RECORD),
		"tenant_id":    tenantID,
		"period_label": label,
		"amount":       amount,
		"limit":        limit,
		"now":          now,
		"row_status":   types.StatusPublished,
		"user_id":      types.GetUserID(ctx),
	})
	if err != nil {
		r.logger.Errorw("failed to increment usage",
			"error", err,
			"tenant_id", tenantID,
			"resource", resource,
		)
		return false, ierr.WithError(err).
			WithHint("Failed to record usage").
			Mark(ierr.ErrDatabase)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to record usage").
			Mark(ierr.ErrDatabase)
	}

	return affected == 1, nil
}

func (r *usageRepository) ListByTenant(ctx context.Context, tenantID string, filter types.Filter) ([]*usage.Record, error) {
	query := `
		SELECT * FROM usage_records
		WHERE tenant_id = :tenant_id
		ORDER BY period_label DESC
		LIMIT :limit OFFSET :offset
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"tenant_id": tenantID,
		"limit":     filter.GetLimit(),
		"offset":    filter.GetOffset(),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list usage records").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var records []*usage.Record
	for rows.Next() {
		var rec usage.Record
		if err := rows.StructScan(&rec); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to read usage record").
				Mark(ierr.ErrDatabase)
		}
		records = append(records, &rec)
	}

	return records, nil
}
