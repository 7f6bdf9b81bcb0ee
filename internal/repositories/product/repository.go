package product

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

// Repository handles product persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new product repository
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

const productColumns = "id, tenant_id, normalized_name, display_name, vendor, brand, product_type, strain_id, lineage, lineage_snapshot, created_at, updated_at"

// InsertRow is one product to write during catalog ingestion.
type InsertRow struct {
	NormalizedName  string
	DisplayName     string
	Vendor          string
	Brand           string
	ProductType     string
	StrainID        string
	Lineage         models.Lineage
	LineageSnapshot models.Lineage
}

// ListAll returns every product for the tenant. Used to build the match
// index; the catalog is bounded by ingestion, not paged here.
func (r *Repository) ListAll(ctx context.Context, tenantID string) ([]models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(productColumns)
	sb.From("products")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("normalized_name ASC", "id ASC")

	query, args := sb.Build()
	var products []models.Product
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list products")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list products")
	}
	return products, nil
}

// ListByStrain returns all products referencing a strain.
func (r *Repository) ListByStrain(ctx context.Context, tenantID, strainID string) ([]models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.ListByStrain")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(productColumns)
	sb.From("products")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("strain_id", strainID),
	)
	sb.OrderBy("normalized_name ASC")

	query, args := sb.Build()
	var products []models.Product
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.SelectContext(ctx, &products, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID}).Error("Failed to list products by strain")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list products by strain")
	}
	return products, nil
}

// ReplaceForTenant deletes the tenant's catalog and bulk-inserts the new
// rows. Must run inside the caller's transaction so readers never observe a
// half-replaced catalog.
func (r *Repository) ReplaceForTenant(ctx context.Context, tenantID string, rows []InsertRow) error {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.ReplaceForTenant")
	defer span.End()

	exec := database.ExecutorFromContext(ctx, r.db)

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("products")
	db.Where(db.Equal("tenant_id", tenantID))
	query, args := db.Build()
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to delete existing products")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete existing products")
	}

	if len(rows) == 0 {
		return nil
	}

	now := time.Now().UTC()

	// bulk insert in batches
	const batchSize = 500
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto("products")
		ib.Cols("id", "tenant_id", "normalized_name", "display_name", "vendor", "brand", "product_type", "strain_id", "lineage", "lineage_snapshot", "created_at", "updated_at")
		for _, row := range rows[i:end] {
			ib.Values(uuid.New().String(), tenantID, row.NormalizedName, row.DisplayName, row.Vendor, row.Brand, row.ProductType, row.StrainID, row.Lineage, row.LineageSnapshot, now, now)
		}
		query, args := ib.Build()
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "batch_start": i}).Error("Failed to insert products")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert products")
		}
	}

	return nil
}

// PropagateSnapshot updates lineage_snapshot on every product of the strain
// except those whose (strain, brand) pair carries a brand override. Returns
// the number of rows changed.
func (r *Repository) PropagateSnapshot(ctx context.Context, tenantID, strainID string, lineage models.Lineage) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.PropagateSnapshot")
	defer span.End()

	query := `
		UPDATE products p
		SET lineage_snapshot = $1,
		    updated_at = NOW()
		WHERE p.tenant_id = $2
		  AND p.strain_id = $3
		  AND NOT EXISTS (
			SELECT 1 FROM brand_lineage_overrides o
			WHERE o.tenant_id = p.tenant_id
			  AND o.strain_id = p.strain_id
			  AND o.brand = p.brand
		  )
	`

	exec := database.ExecutorFromContext(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, lineage, tenantID, strainID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID}).Error("Failed to propagate lineage snapshot")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to propagate lineage snapshot")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID}).Error("Failed to read affected row count")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to propagate lineage snapshot")
	}
	return int(affected), nil
}

// UpdateSnapshotForBrand sets lineage_snapshot on exactly the products
// matching the (strain, brand) pair. Returns the number of rows changed.
func (r *Repository) UpdateSnapshotForBrand(ctx context.Context, tenantID, strainID, brand string, lineage models.Lineage) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.UpdateSnapshotForBrand")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("products")
	ub.Set(
		ub.Assign("lineage_snapshot", lineage),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("tenant_id", tenantID),
		ub.Equal("strain_id", strainID),
		ub.Equal("brand", brand),
	)

	query, args := ub.Build()
	exec := database.ExecutorFromContext(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID, "brand": brand}).Error("Failed to update brand lineage snapshot")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update brand lineage snapshot")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID, "brand": brand}).Error("Failed to read affected row count")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update brand lineage snapshot")
	}
	return int(affected), nil
}

// MajorityLineage returns the most common ingested lineage among a strain's
// products. Ties break toward the most recently updated value. Returns ok
// false when the strain has no products.
func (r *Repository) MajorityLineage(ctx context.Context, tenantID, strainID string) (models.Lineage, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.MajorityLineage")
	defer span.End()

	query := `
		SELECT lineage
		FROM products
		WHERE tenant_id = $1
		  AND strain_id = $2
		GROUP BY lineage
		ORDER BY COUNT(*) DESC, MAX(updated_at) DESC
		LIMIT 1
	`

	var lineage models.Lineage
	exec := database.ExecutorFromContext(ctx, r.db)
	if err := exec.GetContext(ctx, &lineage, query, tenantID, strainID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return "", false, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "strain_id": strainID}).Error("Failed to compute majority lineage")
		return "", false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to compute majority lineage")
	}
	return lineage, true, nil
}
