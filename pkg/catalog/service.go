// Package catalog implements the catalog ingestion boundary. Upstream
// spreadsheet parsing hands over plain rows; this service owns turning them
// into strains and products with resolved lineage snapshots.
package catalog

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/trellis/internal/repositories/brandoverride"
	"github.com/Ramsey-B/trellis/internal/repositories/product"
	"github.com/Ramsey-B/trellis/internal/repositories/strain"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/lineage"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/normalizers"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// Service replaces a tenant's catalog in one transaction.
type Service struct {
	db        database.DB
	strains   *strain.Repository
	products  *product.Repository
	overrides *brandoverride.Repository
	lineage   *lineage.Service
	logger    ectologger.Logger
}

// NewService creates a new catalog service
func NewService(
	db database.DB,
	strains *strain.Repository,
	products *product.Repository,
	overrides *brandoverride.Repository,
	lineageService *lineage.Service,
	logger ectologger.Logger,
) *Service {
	return &Service{
		db:        db,
		strains:   strains,
		products:  products,
		overrides: overrides,
		lineage:   lineageService,
		logger:    logger,
	}
}

// ReplaceCatalog swaps the tenant's product catalog for the given rows.
// Rows without a usable product name are skipped and counted, never fatal.
// Strains are created as needed, canonical lineages are recomputed
// synchronously, and snapshots end up consistent with the precedence order
// before the transaction commits.
func (s *Service) ReplaceCatalog(ctx context.Context, tenantID string, rows []models.CatalogRow) (*models.ReplaceCatalogResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.ReplaceCatalog")
	defer span.End()

	type strainInput struct {
		displayName string
		lineage     models.Lineage
	}

	skipped := 0
	inserts := make([]insertCandidate, 0, len(rows))
	strainInputs := make(map[string]strainInput)

	for _, row := range rows {
		name := strings.TrimSpace(row.ProductName)
		if name == "" {
			skipped++
			continue
		}

		normalized := normalizers.Normalize(name)
		if normalized.Key == "" {
			skipped++
			continue
		}

		// A row without an explicit strain falls back to its own product
		// name as the strain key.
		strainName := strings.TrimSpace(row.Strain)
		if strainName == "" {
			strainName = name
		}
		strainKey := normalizers.Normalize(strainName).Key
		if strainKey == "" {
			skipped++
			continue
		}

		rowLineage, ok := models.ParseLineage(row.Lineage)
		if !ok {
			rowLineage = models.DefaultLineageForProductType(row.ProductType)
		}

		if _, seen := strainInputs[strainKey]; !seen {
			strainInputs[strainKey] = strainInput{displayName: strainName, lineage: rowLineage}
		}

		inserts = append(inserts, insertCandidate{
			strainKey: strainKey,
			row: product.InsertRow{
				NormalizedName:  normalized.Key,
				DisplayName:     name,
				Vendor:          strings.TrimSpace(row.Vendor),
				Brand:           strings.TrimSpace(row.Brand),
				ProductType:     strings.TrimSpace(row.ProductType),
				Lineage:         rowLineage,
				LineageSnapshot: rowLineage,
			},
		})
	}

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	// Upsert strains first so product rows can reference them.
	strainsByKey := make(map[string]*models.Strain, len(strainInputs))
	for key, input := range strainInputs {
		st, err := s.strains.Upsert(ctxTx, tenantID, key, input.displayName, input.lineage)
		if err != nil {
			return nil, err
		}
		strainsByKey[key] = st
	}

	productRows := make([]product.InsertRow, 0, len(inserts))
	for _, candidate := range inserts {
		row := candidate.row
		row.StrainID = strainsByKey[candidate.strainKey].ID
		productRows = append(productRows, row)
	}

	if err := s.products.ReplaceForTenant(ctxTx, tenantID, productRows); err != nil {
		return nil, err
	}

	if err := s.strains.RefreshOccurrences(ctxTx, tenantID); err != nil {
		return nil, err
	}

	// Bring snapshots in line with the precedence order: sovereign values
	// propagate as-is, everything else takes the freshly recomputed
	// canonical value, and brand overrides win for their exact pairs.
	for _, st := range strainsByKey {
		if st.SovereignLineage != nil {
			if _, err := s.products.PropagateSnapshot(ctxTx, tenantID, st.ID, *st.SovereignLineage); err != nil {
				return nil, err
			}
		} else {
			if _, err := s.lineage.RecomputeCanonical(ctxTx, tenantID, st); err != nil {
				return nil, err
			}
		}

		overrides, err := s.overrides.ListByStrain(ctxTx, tenantID, st.ID)
		if err != nil {
			return nil, err
		}
		for _, override := range overrides {
			if _, err := s.products.UpdateSnapshotForBrand(ctxTx, tenantID, st.ID, override.Brand, override.Lineage); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit catalog replacement")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"ingested":  len(productRows),
		"skipped":   skipped,
		"strains":   len(strainsByKey),
	}).Info("Replaced catalog")

	return &models.ReplaceCatalogResponse{
		IngestedCount: len(productRows),
		SkippedCount:  skipped,
		StrainCount:   len(strainsByKey),
	}, nil
}

type insertCandidate struct {
	strainKey string
	row       product.InsertRow
}
