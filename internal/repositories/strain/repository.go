package strain

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// Repository handles strain persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new strain repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database for transaction control
func (r *Repository) DB() database.DB {
	return r.db
}

const strainColumns = "id, tenant_id, normalized_name, display_name, canonical_lineage, sovereign_lineage, total_occurrences, created_at, updated_at"

// GetByNormalizedName retrieves a strain by its unique normalized name.
// Returns nil when the strain does not exist.
func (r *Repository) GetByNormalizedName(ctx context.Context, tenantID, normalizedName string) (*models.Strain, error) {
	ctx, span := tracing.StartSpan(ctx, "strain.Repository.GetByNormalizedName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(strainColumns)
	sb.From("strains")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("normalized_name", normalizedName),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var strain models.Strain
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.GetContext(ctx, &strain, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "normalized_name": normalizedName}).Error("Failed to get strain by normalized name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get strain")
	}
	return &strain, nil
}

// GetByID retrieves a strain by ID. Returns nil when not found.
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.Strain, error) {
	ctx, span := tracing.StartSpan(ctx, "strain.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(strainColumns)
	sb.From("strains")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var strain models.Strain
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.GetContext(ctx, &strain, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "id": id}).Error("Failed to get strain by id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get strain")
	}
	return &strain, nil
}

// List returns strains ordered by normalized name with the total count.
func (r *Repository) List(ctx context.Context, tenantID string, page, pageSize int) ([]models.Strain, int, error) {
	ctx, span := tracing.StartSpan(ctx, "strain.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(strainColumns)
	sb.From("strains")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("normalized_name ASC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var strains []models.Strain
	if err := r.db.SelectContext(ctx, &strains, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list strains")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list strains")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("strains")
	cb.Where(cb.Equal("tenant_id", tenantID))

	query, args = cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to count strains")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count strains")
	}

	return strains, total, nil
}

// Upsert creates the strain row if missing, otherwise refreshes its display
// name. Canonical lineage and occurrence counts are maintained separately.
func (r *Repository) Upsert(ctx context.Context, tenantID, normalizedName, displayName string, canonical models.Lineage) (*models.Strain, error) {
	ctx, span := tracing.StartSpan(ctx, "strain.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	ib := database.NewInsertBuilder()
	ib.InsertInto("strains")
	ib.Cols("id", "tenant_id", "normalized_name", "display_name", "canonical_lineage", "total_occurrences", "created_at", "updated_at")
	ib.Values(id, tenantID, normalizedName, displayName, canonical, 0, now, now)
	ub := ib.OnConflict("tenant_id", "normalized_name")
	ub.Set(
		ub.Assign("display_name", database.Excluded("display_name")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)
	ib.Returning(strainColumns)

	query, args := ib.Build()
	var strain models.Strain
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.GetContext(ctx, &strain, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "normalized_name": normalizedName}).Error("Failed to upsert strain")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert strain")
	}
	return &strain, nil
}

// SetSovereignLineage writes the sovereign value. Pass nil to clear it.
func (r *Repository) SetSovereignLineage(ctx context.Context, tenantID, strainID string, lineage *models.Lineage) error {
	ctx, span := tracing.StartSpan(ctx, "strain.Repository.SetSovereignLineage")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("strains")
	ub.Set(
		ub.Assign("sovereign_lineage", lineage),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", strainID),
	)

	query, args := ub.Build()
	exec := database.ExecutorFromContext(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID}).Error("Failed to set sovereign lineage")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set sovereign lineage")
	}
	return nil
}

// SetCanonicalLineage updates the computed canonical value. No history row
// is written for canonical changes.
func (r *Repository) SetCanonicalLineage(ctx context.Context, tenantID, strainID string, lineage models.Lineage) error {
	ctx, span := tracing.StartSpan(ctx, "strain.Repository.SetCanonicalLineage")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("strains")
	ub.Set(
		ub.Assign("canonical_lineage", lineage),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("id", strainID),
	)

	query, args := ub.Build()
	exec := database.ExecutorFromContext(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID}).Error("Failed to set canonical lineage")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set canonical lineage")
	}
	return nil
}

// RefreshOccurrences recomputes total_occurrences from the products table
// for every strain of the tenant.
func (r *Repository) RefreshOccurrences(ctx context.Context, tenantID string) error {
	ctx, span := tracing.StartSpan(ctx, "strain.Repository.RefreshOccurrences")
	defer span.End()

	// Scalar subquery so strains orphaned by a catalog replacement drop to
	// zero instead of keeping a stale count.
	query := `
		UPDATE strains s
		SET total_occurrences = (
			SELECT COUNT(*)
			FROM products p
			WHERE p.tenant_id = s.tenant_id
			  AND p.strain_id = s.id
		),
		    updated_at = NOW()
		WHERE s.tenant_id = $1
	`

	exec := database.ExecutorFromContext(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, tenantID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to refresh strain occurrences")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to refresh strain occurrences")
	}
	return nil
}
