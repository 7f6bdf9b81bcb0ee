// Package lineage implements effective-lineage resolution and the audited
// sovereign/override write paths.
package lineage

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/trellis/internal/repositories/lineagehistory"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/locks"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/normalizers"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// Source identifies which rung of the precedence order produced an
// effective lineage.
type Source string

const (
	SourceBrandOverride Source = "brand_override"
	SourceSovereign     Source = "sovereign"
	SourceCanonical     Source = "canonical"
	SourceTypeDefault   Source = "type_default"
)

// Effective resolves the lineage for a (strain, brand) pair. Precedence:
// brand override, then sovereign, then canonical, then the product-type
// default. Pure; both strain and override may be nil.
func Effective(st *models.Strain, override *models.BrandLineageOverride, productType string) (models.Lineage, Source) {
	if override != nil {
		return override.Lineage, SourceBrandOverride
	}
	if st != nil {
		if st.SovereignLineage != nil {
			return *st.SovereignLineage, SourceSovereign
		}
		if st.CanonicalLineage.IsValid() {
			return st.CanonicalLineage, SourceCanonical
		}
	}
	return models.DefaultLineageForProductType(productType), SourceTypeDefault
}

// Service owns the lineage write paths. All bulk snapshot propagation for a
// strain runs under that strain's lock with a bounded acquisition budget.
type Service struct {
	db          TxStarter
	strains     StrainStore
	products    ProductStore
	overrides   OverrideStore
	history     HistoryStore
	locker      locks.StrainLocker
	emitter     events.Emitter
	logger      ectologger.Logger
	lockTimeout time.Duration
}

// TxStarter is the slice of the database surface the write paths need.
type TxStarter interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// StrainStore is the strain repository surface used by lineage resolution.
type StrainStore interface {
	GetByNormalizedName(ctx context.Context, tenantID, normalizedName string) (*models.Strain, error)
	SetSovereignLineage(ctx context.Context, tenantID, strainID string, lineage *models.Lineage) error
	SetCanonicalLineage(ctx context.Context, tenantID, strainID string, lineage models.Lineage) error
}

// ProductStore is the product repository surface used by snapshot
// propagation and the canonical majority vote.
type ProductStore interface {
	PropagateSnapshot(ctx context.Context, tenantID, strainID string, lineage models.Lineage) (int, error)
	UpdateSnapshotForBrand(ctx context.Context, tenantID, strainID, brand string, lineage models.Lineage) (int, error)
	MajorityLineage(ctx context.Context, tenantID, strainID string) (models.Lineage, bool, error)
}

// OverrideStore is the brand override repository surface.
type OverrideStore interface {
	Get(ctx context.Context, tenantID, strainID, brand string) (*models.BrandLineageOverride, error)
	Upsert(ctx context.Context, tenantID, strainID, brand string, lineage models.Lineage) error
	Delete(ctx context.Context, tenantID, strainID, brand string) (bool, error)
}

// HistoryStore is the append-only audit log surface.
type HistoryStore interface {
	Append(ctx context.Context, tenantID string, row lineagehistory.AppendRow) error
	ListByStrain(ctx context.Context, tenantID, strainID string, page, pageSize int) ([]models.LineageHistory, int, error)
}

// NewService creates a new lineage service
func NewService(
	db TxStarter,
	strains StrainStore,
	products ProductStore,
	overrides OverrideStore,
	history HistoryStore,
	locker locks.StrainLocker,
	emitter events.Emitter,
	logger ectologger.Logger,
	lockTimeout time.Duration,
) *Service {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &Service{
		db:          db,
		strains:     strains,
		products:    products,
		overrides:   overrides,
		history:     history,
		locker:      locker,
		emitter:     emitter,
		logger:      logger,
		lockTimeout: lockTimeout,
	}
}

func lockKey(tenantID, normalizedName string) string {
	return tenantID + ":" + normalizedName
}

// getStrain loads a strain by raw name, normalizing first. Returns a 404
// httperror when the strain does not exist.
func (s *Service) getStrain(ctx context.Context, tenantID, strainName string) (*models.Strain, error) {
	normalized := normalizers.Normalize(strainName).Key
	st, err := s.strains.GetByNormalizedName(ctx, tenantID, normalized)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "strain %q not found", strainName)
	}
	return st, nil
}

// ResolveEffective returns the effective lineage for a (strain, brand)
// pair. Pure read; brand may be empty.
func (s *Service) ResolveEffective(ctx context.Context, tenantID, strainName, brand string) (models.Lineage, Source, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Service.ResolveEffective")
	defer span.End()

	st, err := s.getStrain(ctx, tenantID, strainName)
	if err != nil {
		return "", "", err
	}

	var override *models.BrandLineageOverride
	if brand != "" {
		override, err = s.overrides.Get(ctx, tenantID, st.ID, brand)
		if err != nil {
			return "", "", err
		}
	}

	lin, source := Effective(st, override, "")
	return lin, source, nil
}

func (s *Service) acquireLock(ctx context.Context, tenantID, normalizedName, operation string) (locks.ReleaseFunc, error) {
	release, err := s.locker.TryAcquire(ctx, lockKey(tenantID, normalizedName), s.lockTimeout)
	if err != nil {
		if errors.Is(err, locks.ErrLockTimeout) {
			metrics.LockTimeoutsTotal.WithLabelValues(operation).Inc()
			s.logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": tenantID, "strain": normalizedName, "operation": operation}).Warn("Strain lock acquisition timed out")
			return nil, httperror.NewHTTPError(http.StatusConflict, "strain is locked by another operation, retry")
		}
		return nil, err
	}
	return release, nil
}

// SetSovereign writes the human-asserted lineage for a strain, appends a
// history row and propagates the new value to every product of the strain
// that has no brand override. Returns the count of products changed.
func (s *Service) SetSovereign(ctx context.Context, tenantID, strainName string, newLineage models.Lineage, reason, changedBy string) (*models.LineageUpdateResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Service.SetSovereign")
	defer span.End()

	if !newLineage.IsValid() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown lineage %q", newLineage)
	}

	st, err := s.getStrain(ctx, tenantID, strainName)
	if err != nil {
		return nil, err
	}

	release, err := s.acquireLock(ctx, tenantID, st.NormalizedName, "set_sovereign")
	if err != nil {
		return nil, err
	}
	defer release()

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	old := st.SovereignLineage

	if err := s.strains.SetSovereignLineage(ctxTx, tenantID, st.ID, &newLineage); err != nil {
		return nil, err
	}

	if err := s.history.Append(ctxTx, tenantID, lineagehistory.AppendRow{
		StrainID:   st.ID,
		Scope:      models.HistoryScopeStrain,
		OldLineage: old,
		NewLineage: &newLineage,
		Reason:     reason,
		ChangedBy:  changedBy,
	}); err != nil {
		return nil, err
	}

	affected, err := s.products.PropagateSnapshot(ctxTx, tenantID, st.ID, newLineage)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit lineage change")
	}

	metrics.LineageChangesTotal.WithLabelValues(models.HistoryScopeStrain).Inc()
	s.emitter.EmitLineageChanged(ctx, events.EventSovereignSet, st, "", old, &newLineage)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"strain":      st.NormalizedName,
		"new_lineage": newLineage,
		"affected":    affected,
	}).Info("Set sovereign lineage")

	previous := old
	if previous == nil && st.CanonicalLineage.IsValid() {
		previous = &st.CanonicalLineage
	}

	return &models.LineageUpdateResponse{
		AffectedProductCount: affected,
		PreviousLineage:      previous,
		NewLineage:           newLineage,
	}, nil
}

// ClearSovereign removes the sovereign value so the strain falls back to
// its canonical lineage. Appends a history row and re-propagates snapshots.
func (s *Service) ClearSovereign(ctx context.Context, tenantID, strainName, reason, changedBy string) (*models.LineageUpdateResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Service.ClearSovereign")
	defer span.End()

	st, err := s.getStrain(ctx, tenantID, strainName)
	if err != nil {
		return nil, err
	}
	if st.SovereignLineage == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "strain %q has no sovereign lineage", strainName)
	}

	release, err := s.acquireLock(ctx, tenantID, st.NormalizedName, "clear_sovereign")
	if err != nil {
		return nil, err
	}
	defer release()

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	old := st.SovereignLineage

	if err := s.strains.SetSovereignLineage(ctxTx, tenantID, st.ID, nil); err != nil {
		return nil, err
	}

	if err := s.history.Append(ctxTx, tenantID, lineagehistory.AppendRow{
		StrainID:   st.ID,
		Scope:      models.HistoryScopeStrain,
		OldLineage: old,
		NewLineage: nil,
		Reason:     reason,
		ChangedBy:  changedBy,
	}); err != nil {
		return nil, err
	}

	affected, err := s.products.PropagateSnapshot(ctxTx, tenantID, st.ID, st.CanonicalLineage)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit lineage change")
	}

	metrics.LineageChangesTotal.WithLabelValues(models.HistoryScopeStrain).Inc()
	s.emitter.EmitLineageChanged(ctx, events.EventSovereignCleared, st, "", old, nil)

	return &models.LineageUpdateResponse{
		AffectedProductCount: affected,
		PreviousLineage:      old,
		NewLineage:           st.CanonicalLineage,
	}, nil
}

// SetBrandOverride upserts the (strain, brand) exception and updates the
// snapshot of exactly the products matching that pair. Idempotent.
func (s *Service) SetBrandOverride(ctx context.Context, tenantID, strainName, brand string, newLineage models.Lineage, reason, changedBy string) (*models.LineageUpdateResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Service.SetBrandOverride")
	defer span.End()

	if !newLineage.IsValid() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown lineage %q", newLineage)
	}
	if brand == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "brand is required for brand-scoped updates")
	}

	st, err := s.getStrain(ctx, tenantID, strainName)
	if err != nil {
		return nil, err
	}

	release, err := s.acquireLock(ctx, tenantID, st.NormalizedName, "set_brand_override")
	if err != nil {
		return nil, err
	}
	defer release()

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	existing, err := s.overrides.Get(ctxTx, tenantID, st.ID, brand)
	if err != nil {
		return nil, err
	}

	var old *models.Lineage
	if existing != nil {
		old = &existing.Lineage
	}

	if err := s.overrides.Upsert(ctxTx, tenantID, st.ID, brand, newLineage); err != nil {
		return nil, err
	}

	if err := s.history.Append(ctxTx, tenantID, lineagehistory.AppendRow{
		StrainID:   st.ID,
		Scope:      models.HistoryScopeBrand,
		Brand:      &brand,
		OldLineage: old,
		NewLineage: &newLineage,
		Reason:     reason,
		ChangedBy:  changedBy,
	}); err != nil {
		return nil, err
	}

	affected, err := s.products.UpdateSnapshotForBrand(ctxTx, tenantID, st.ID, brand, newLineage)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit brand override")
	}

	metrics.LineageChangesTotal.WithLabelValues(models.HistoryScopeBrand).Inc()
	s.emitter.EmitLineageChanged(ctx, events.EventOverrideSet, st, brand, old, &newLineage)

	return &models.LineageUpdateResponse{
		AffectedProductCount: affected,
		PreviousLineage:      old,
		NewLineage:           newLineage,
	}, nil
}

// ClearBrandOverride removes the (strain, brand) exception; affected
// products revert to the strain's sovereign/canonical value.
func (s *Service) ClearBrandOverride(ctx context.Context, tenantID, strainName, brand, reason, changedBy string) (*models.LineageUpdateResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Service.ClearBrandOverride")
	defer span.End()

	st, err := s.getStrain(ctx, tenantID, strainName)
	if err != nil {
		return nil, err
	}

	release, err := s.acquireLock(ctx, tenantID, st.NormalizedName, "clear_brand_override")
	if err != nil {
		return nil, err
	}
	defer release()

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	existing, err := s.overrides.Get(ctxTx, tenantID, st.ID, brand)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "no override for strain %q and brand %q", strainName, brand)
	}

	if _, err := s.overrides.Delete(ctxTx, tenantID, st.ID, brand); err != nil {
		return nil, err
	}

	revert, _ := Effective(st, nil, "")

	if err := s.history.Append(ctxTx, tenantID, lineagehistory.AppendRow{
		StrainID:   st.ID,
		Scope:      models.HistoryScopeBrand,
		Brand:      &brand,
		OldLineage: &existing.Lineage,
		NewLineage: nil,
		Reason:     reason,
		ChangedBy:  changedBy,
	}); err != nil {
		return nil, err
	}

	affected, err := s.products.UpdateSnapshotForBrand(ctxTx, tenantID, st.ID, brand, revert)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit override removal")
	}

	metrics.LineageChangesTotal.WithLabelValues(models.HistoryScopeBrand).Inc()
	s.emitter.EmitLineageChanged(ctx, events.EventOverrideCleared, st, brand, &existing.Lineage, nil)

	return &models.LineageUpdateResponse{
		AffectedProductCount: affected,
		PreviousLineage:      &existing.Lineage,
		NewLineage:           revert,
	}, nil
}

// RecomputeCanonical recomputes the canonical value by majority vote over
// the strain's ingested product lineages and propagates snapshots when no
// sovereign value is set. Writes no history; canonical changes are silent.
// Joins the caller's transaction.
func (s *Service) RecomputeCanonical(ctx context.Context, tenantID string, st *models.Strain) (models.Lineage, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Service.RecomputeCanonical")
	defer span.End()

	majority, ok, err := s.products.MajorityLineage(ctx, tenantID, st.ID)
	if err != nil {
		return "", err
	}
	if !ok {
		return st.CanonicalLineage, nil
	}

	if majority != st.CanonicalLineage {
		if err := s.strains.SetCanonicalLineage(ctx, tenantID, st.ID, majority); err != nil {
			return "", err
		}
	}

	if st.SovereignLineage == nil {
		if _, err := s.products.PropagateSnapshot(ctx, tenantID, st.ID, majority); err != nil {
			return "", err
		}
	}

	return majority, nil
}

// History returns the strain's audit log, newest first.
func (s *Service) History(ctx context.Context, tenantID, strainName string, page, pageSize int) (*models.LineageHistoryListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Service.History")
	defer span.End()

	st, err := s.getStrain(ctx, tenantID, strainName)
	if err != nil {
		return nil, err
	}

	rows, total, err := s.history.ListByStrain(ctx, tenantID, st.ID, page, pageSize)
	if err != nil {
		return nil, err
	}

	return &models.LineageHistoryListResponse{
		Items:      rows,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
