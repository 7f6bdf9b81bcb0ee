package brandoverride

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// Repository handles brand lineage override persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new brand override repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const overrideColumns = "strain_id, tenant_id, brand, lineage, created_at, updated_at"

// Get retrieves the override for a (strain, brand) pair. Returns nil when
// no override exists.
func (r *Repository) Get(ctx context.Context, tenantID, strainID, brand string) (*models.BrandLineageOverride, error) {
	ctx, span := tracing.StartSpan(ctx, "brandoverride.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(overrideColumns)
	sb.From("brand_lineage_overrides")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("strain_id", strainID),
		sb.Equal("brand", brand),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var override models.BrandLineageOverride
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.GetContext(ctx, &override, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID, "brand": brand}).Error("Failed to get brand override")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get brand override")
	}
	return &override, nil
}

// ListByStrain returns every override for the strain.
func (r *Repository) ListByStrain(ctx context.Context, tenantID, strainID string) ([]models.BrandLineageOverride, error) {
	ctx, span := tracing.StartSpan(ctx, "brandoverride.Repository.ListByStrain")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(overrideColumns)
	sb.From("brand_lineage_overrides")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("strain_id", strainID),
	)
	sb.OrderBy("brand ASC")

	query, args := sb.Build()
	var overrides []models.BrandLineageOverride
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.SelectContext(ctx, &overrides, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID}).Error("Failed to list brand overrides")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list brand overrides")
	}
	return overrides, nil
}

// Upsert creates or replaces the override for a (strain, brand) pair.
// Idempotent.
func (r *Repository) Upsert(ctx context.Context, tenantID, strainID, brand string, lineage models.Lineage) error {
	ctx, span := tracing.StartSpan(ctx, "brandoverride.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()

	ib := database.NewInsertBuilder()
	ib.InsertInto("brand_lineage_overrides")
	ib.Cols("strain_id", "tenant_id", "brand", "lineage", "created_at", "updated_at")
	ib.Values(strainID, tenantID, brand, lineage, now, now)
	ub := ib.OnConflict("strain_id", "brand")
	ub.Set(
		ub.Assign("lineage", database.Excluded("lineage")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := ib.Build()
	exec := database.ExecutorFromContext(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID, "brand": brand}).Error("Failed to upsert brand override")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert brand override")
	}
	return nil
}

// Delete removes the override for a (strain, brand) pair. Returns true when
// a row was deleted.
func (r *Repository) Delete(ctx context.Context, tenantID, strainID, brand string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "brandoverride.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("brand_lineage_overrides")
	db.Where(
		db.Equal("tenant_id", tenantID),
		db.Equal("strain_id", strainID),
		db.Equal("brand", brand),
	)

	query, args := db.Build()
	exec := database.ExecutorFromContext(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID, "brand": brand}).Error("Failed to delete brand override")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete brand override")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, nil
	}
	return affected > 0, nil
}
