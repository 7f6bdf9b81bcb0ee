package lineagehistory

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

// Repository handles the append-only lineage history log. Rows are never
// updated or deleted.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new lineage history repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const historyColumns = "id, tenant_id, strain_id, scope, brand, old_lineage, new_lineage, reason, changed_by, changed_at"

// AppendRow is the input for one history entry.
type AppendRow struct {
	StrainID   string
	Scope      string
	Brand      *string
	OldLineage *models.Lineage
	NewLineage *models.Lineage
	Reason     string
	ChangedBy  string
}

// Append writes one history row. Joins the caller's transaction so the row
// lands atomically with the lineage change it records.
func (r *Repository) Append(ctx context.Context, tenantID string, row AppendRow) error {
	ctx, span := tracing.StartSpan(ctx, "lineagehistory.Repository.Append")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("lineage_history")
	ib.Cols("id", "tenant_id", "strain_id", "scope", "brand", "old_lineage", "new_lineage", "reason", "changed_by", "changed_at")
	ib.Values(uuid.New().String(), tenantID, row.StrainID, row.Scope, row.Brand, row.OldLineage, row.NewLineage, row.Reason, row.ChangedBy, time.Now().UTC())

	query, args := ib.Build()
	exec := database.ExecutorFromContext(ctx, r.db)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": row.StrainID, "scope": row.Scope}).Error("Failed to append lineage history")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append lineage history")
	}
	return nil
}

// ListByStrain returns the strain's history, newest first, with the total
// count.
func (r *Repository) ListByStrain(ctx context.Context, tenantID, strainID string, page, pageSize int) ([]models.LineageHistory, int, error) {
	ctx, span := tracing.StartSpan(ctx, "lineagehistory.Repository.ListByStrain")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(historyColumns)
	sb.From("lineage_history")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("strain_id", strainID),
	)
	sb.OrderBy("changed_at DESC", "id DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var rows []models.LineageHistory
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID}).Error("Failed to list lineage history")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list lineage history")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("lineage_history")
	cb.Where(
		cb.Equal("tenant_id", tenantID),
		cb.Equal("strain_id", strainID),
	)

	query, args = cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID}).Error("Failed to count lineage history")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count lineage history")
	}

	return rows, total, nil
}
