package lineage

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/trellis/internal/repositories/lineagehistory"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/locks"
	"github.com/Ramsey-B/trellis/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type memTx struct {
	commits   int
	rollbacks int
}

func (t *memTx) IsOpen() bool                    { return t.commits == 0 && t.rollbacks == 0 }
func (t *memTx) Commit(ctx context.Context) error { t.commits++; return nil }
func (t *memTx) Rollback(ctx context.Context) error {
	if t.commits == 0 {
		t.rollbacks++
	}
	return nil
}
func (t *memTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (t *memTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *memTx) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return nil, nil
}
func (t *memTx) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (t *memTx) Rebind(query string) string { return query }
func (t *memTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

type memDB struct {
	txs []*memTx
}

func (d *memDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	tx := &memTx{}
	d.txs = append(d.txs, tx)
	return ctx, tx, nil
}

type memStrains struct {
	byKey map[string]*models.Strain
}

func (m *memStrains) GetByNormalizedName(ctx context.Context, tenantID, normalizedName string) (*models.Strain, error) {
	st, ok := m.byKey[normalizedName]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (m *memStrains) byID(strainID string) *models.Strain {
	for _, st := range m.byKey {
		if st.ID == strainID {
			return st
		}
	}
	return nil
}

func (m *memStrains) SetSovereignLineage(ctx context.Context, tenantID, strainID string, lineage *models.Lineage) error {
	if st := m.byID(strainID); st != nil {
		st.SovereignLineage = lineage
	}
	return nil
}

func (m *memStrains) SetCanonicalLineage(ctx context.Context, tenantID, strainID string, lineage models.Lineage) error {
	if st := m.byID(strainID); st != nil {
		st.CanonicalLineage = lineage
	}
	return nil
}

type snapshotWrite struct {
	strainID string
	brand    string
	lineage  models.Lineage
}

type memProducts struct {
	majority    models.Lineage
	hasMajority bool
	propagated  []snapshotWrite
	brandWrites []snapshotWrite
}

func (m *memProducts) PropagateSnapshot(ctx context.Context, tenantID, strainID string, lineage models.Lineage) (int, error) {
	m.propagated = append(m.propagated, snapshotWrite{strainID: strainID, lineage: lineage})
	return 3, nil
}

func (m *memProducts) UpdateSnapshotForBrand(ctx context.Context, tenantID, strainID, brand string, lineage models.Lineage) (int, error) {
	m.brandWrites = append(m.brandWrites, snapshotWrite{strainID: strainID, brand: brand, lineage: lineage})
	return 2, nil
}

func (m *memProducts) MajorityLineage(ctx context.Context, tenantID, strainID string) (models.Lineage, bool, error) {
	return m.majority, m.hasMajority, nil
}

type memOverrides struct {
	rows map[string]*models.BrandLineageOverride
}

func overrideKey(strainID, brand string) string { return strainID + "|" + brand }

func (m *memOverrides) Get(ctx context.Context, tenantID, strainID, brand string) (*models.BrandLineageOverride, error) {
	return m.rows[overrideKey(strainID, brand)], nil
}

func (m *memOverrides) Upsert(ctx context.Context, tenantID, strainID, brand string, lineage models.Lineage) error {
	m.rows[overrideKey(strainID, brand)] = &models.BrandLineageOverride{
		StrainID: strainID,
		TenantID: tenantID,
		Brand:    brand,
		Lineage:  lineage,
	}
	return nil
}

func (m *memOverrides) Delete(ctx context.Context, tenantID, strainID, brand string) (bool, error) {
	key := overrideKey(strainID, brand)
	_, ok := m.rows[key]
	delete(m.rows, key)
	return ok, nil
}

type memHistory struct {
	rows []lineagehistory.AppendRow
}

func (m *memHistory) Append(ctx context.Context, tenantID string, row lineagehistory.AppendRow) error {
	m.rows = append(m.rows, row)
	return nil
}

func (m *memHistory) ListByStrain(ctx context.Context, tenantID, strainID string, page, pageSize int) ([]models.LineageHistory, int, error) {
	count := 0
	for _, row := range m.rows {
		if row.StrainID == strainID {
			count++
		}
	}
	return nil, count, nil
}

type serviceFixture struct {
	db        *memDB
	strains   *memStrains
	products  *memProducts
	overrides *memOverrides
	history   *memHistory
	locker    *locks.KeyedLocker
	svc       *Service
}

func newServiceFixture(strains ...*models.Strain) *serviceFixture {
	f := &serviceFixture{
		db:        &memDB{},
		strains:   &memStrains{byKey: make(map[string]*models.Strain)},
		products:  &memProducts{},
		overrides: &memOverrides{rows: make(map[string]*models.BrandLineageOverride)},
		history:   &memHistory{},
		locker:    locks.NewKeyedLocker(),
	}
	for _, st := range strains {
		f.strains.byKey[st.NormalizedName] = st
	}
	f.svc = NewService(f.db, f.strains, f.products, f.overrides, f.history, f.locker, events.NopEmitter{}, testLogger(), 50*time.Millisecond)
	return f
}

func hybridStrain() *models.Strain {
	return &models.Strain{
		ID:               "s-blue-dream",
		TenantID:         "t1",
		NormalizedName:   "blue dream",
		DisplayName:      "Blue Dream",
		CanonicalLineage: models.LineageHybrid,
	}
}

func TestService_SetSovereign(t *testing.T) {
	t.Run("appends exactly one history row and propagates", func(t *testing.T) {
		f := newServiceFixture(hybridStrain())

		resp, err := f.svc.SetSovereign(context.Background(), "t1", "Blue Dream", models.LineageSativa, "curator review", "alice")
		require.NoError(t, err)

		require.Len(t, f.history.rows, 1)
		row := f.history.rows[0]
		assert.Equal(t, "s-blue-dream", row.StrainID)
		assert.Equal(t, models.HistoryScopeStrain, row.Scope)
		assert.Nil(t, row.Brand)
		assert.Nil(t, row.OldLineage)
		require.NotNil(t, row.NewLineage)
		assert.Equal(t, models.LineageSativa, *row.NewLineage)
		assert.Equal(t, "curator review", row.Reason)
		assert.Equal(t, "alice", row.ChangedBy)

		require.Len(t, f.products.propagated, 1)
		assert.Equal(t, models.LineageSativa, f.products.propagated[0].lineage)

		assert.Equal(t, 3, resp.AffectedProductCount)
		require.NotNil(t, resp.PreviousLineage)
		assert.Equal(t, models.LineageHybrid, *resp.PreviousLineage)
		assert.Equal(t, models.LineageSativa, resp.NewLineage)

		require.Len(t, f.db.txs, 1)
		assert.Equal(t, 1, f.db.txs[0].commits)
		assert.Equal(t, 0, f.db.txs[0].rollbacks)
	})

	t.Run("replacing an existing sovereign records the old value", func(t *testing.T) {
		st := hybridStrain()
		sativa := models.LineageSativa
		st.SovereignLineage = &sativa
		f := newServiceFixture(st)

		resp, err := f.svc.SetSovereign(context.Background(), "t1", "Blue Dream", models.LineageIndica, "correction", "bob")
		require.NoError(t, err)

		require.Len(t, f.history.rows, 1)
		require.NotNil(t, f.history.rows[0].OldLineage)
		assert.Equal(t, models.LineageSativa, *f.history.rows[0].OldLineage)
		require.NotNil(t, resp.PreviousLineage)
		assert.Equal(t, models.LineageSativa, *resp.PreviousLineage)
	})

	t.Run("invalid lineage is rejected before any write", func(t *testing.T) {
		f := newServiceFixture(hybridStrain())

		_, err := f.svc.SetSovereign(context.Background(), "t1", "Blue Dream", "PURPLE", "", "alice")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
		assert.Empty(t, f.history.rows)
		assert.Empty(t, f.db.txs)
	})

	t.Run("unknown strain returns 404", func(t *testing.T) {
		f := newServiceFixture(hybridStrain())

		_, err := f.svc.SetSovereign(context.Background(), "t1", "Ghost Train", models.LineageSativa, "", "alice")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("held lock returns retryable conflict", func(t *testing.T) {
		f := newServiceFixture(hybridStrain())

		release, err := f.locker.TryAcquire(context.Background(), "t1:blue dream", time.Second)
		require.NoError(t, err)
		defer release()

		_, err = f.svc.SetSovereign(context.Background(), "t1", "Blue Dream", models.LineageSativa, "", "alice")
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
		assert.Empty(t, f.history.rows)
	})
}

func TestService_ClearSovereign(t *testing.T) {
	t.Run("records the removal and reverts snapshots to canonical", func(t *testing.T) {
		st := hybridStrain()
		sativa := models.LineageSativa
		st.SovereignLineage = &sativa
		f := newServiceFixture(st)

		resp, err := f.svc.ClearSovereign(context.Background(), "t1", "Blue Dream", "bad data", "carol")
		require.NoError(t, err)

		require.Len(t, f.history.rows, 1)
		row := f.history.rows[0]
		assert.Equal(t, models.HistoryScopeStrain, row.Scope)
		require.NotNil(t, row.OldLineage)
		assert.Equal(t, models.LineageSativa, *row.OldLineage)
		assert.Nil(t, row.NewLineage)

		require.Len(t, f.products.propagated, 1)
		assert.Equal(t, models.LineageHybrid, f.products.propagated[0].lineage)
		assert.Equal(t, models.LineageHybrid, resp.NewLineage)

		assert.Nil(t, f.strains.byID("s-blue-dream").SovereignLineage)
	})

	t.Run("no sovereign set returns 404", func(t *testing.T) {
		f := newServiceFixture(hybridStrain())

		_, err := f.svc.ClearSovereign(context.Background(), "t1", "Blue Dream", "", "carol")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
		assert.Empty(t, f.history.rows)
	})
}

func TestService_SetBrandOverride(t *testing.T) {
	t.Run("appends one brand-scoped row and updates only that brand", func(t *testing.T) {
		f := newServiceFixture(hybridStrain())

		resp, err := f.svc.SetBrandOverride(context.Background(), "t1", "Blue Dream", "Acme", models.LineageIndica, "label mismatch", "dave")
		require.NoError(t, err)

		require.Len(t, f.history.rows, 1)
		row := f.history.rows[0]
		assert.Equal(t, models.HistoryScopeBrand, row.Scope)
		require.NotNil(t, row.Brand)
		assert.Equal(t, "Acme", *row.Brand)
		assert.Nil(t, row.OldLineage)
		require.NotNil(t, row.NewLineage)
		assert.Equal(t, models.LineageIndica, *row.NewLineage)

		assert.Empty(t, f.products.propagated)
		require.Len(t, f.products.brandWrites, 1)
		assert.Equal(t, "Acme", f.products.brandWrites[0].brand)
		assert.Equal(t, models.LineageIndica, f.products.brandWrites[0].lineage)

		assert.Equal(t, 2, resp.AffectedProductCount)
		assert.Nil(t, resp.PreviousLineage)
	})

	t.Run("re-setting records the prior override as old", func(t *testing.T) {
		f := newServiceFixture(hybridStrain())

		_, err := f.svc.SetBrandOverride(context.Background(), "t1", "Blue Dream", "Acme", models.LineageIndica, "", "dave")
		require.NoError(t, err)
		_, err = f.svc.SetBrandOverride(context.Background(), "t1", "Blue Dream", "Acme", models.LineageSativa, "", "dave")
		require.NoError(t, err)

		require.Len(t, f.history.rows, 2)
		second := f.history.rows[1]
		require.NotNil(t, second.OldLineage)
		assert.Equal(t, models.LineageIndica, *second.OldLineage)
		require.NotNil(t, second.NewLineage)
		assert.Equal(t, models.LineageSativa, *second.NewLineage)
	})

	t.Run("empty brand is rejected", func(t *testing.T) {
		f := newServiceFixture(hybridStrain())

		_, err := f.svc.SetBrandOverride(context.Background(), "t1", "Blue Dream", "", models.LineageIndica, "", "dave")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})
}

func TestService_ClearBrandOverride(t *testing.T) {
	t.Run("reverts the brand to the strain-level value", func(t *testing.T) {
		st := hybridStrain()
		sativa := models.LineageSativa
		st.SovereignLineage = &sativa
		f := newServiceFixture(st)

		_, err := f.svc.SetBrandOverride(context.Background(), "t1", "Blue Dream", "Acme", models.LineageIndica, "", "dave")
		require.NoError(t, err)

		resp, err := f.svc.ClearBrandOverride(context.Background(), "t1", "Blue Dream", "Acme", "resolved upstream", "dave")
		require.NoError(t, err)

		require.Len(t, f.history.rows, 2)
		row := f.history.rows[1]
		assert.Equal(t, models.HistoryScopeBrand, row.Scope)
		require.NotNil(t, row.OldLineage)
		assert.Equal(t, models.LineageIndica, *row.OldLineage)
		assert.Nil(t, row.NewLineage)

		// sovereign outranks canonical, so the revert lands on SATIVA
		require.Len(t, f.products.brandWrites, 2)
		assert.Equal(t, models.LineageSativa, f.products.brandWrites[1].lineage)
		assert.Equal(t, models.LineageSativa, resp.NewLineage)

		assert.Empty(t, f.overrides.rows)
	})

	t.Run("no override returns 404 without history", func(t *testing.T) {
		f := newServiceFixture(hybridStrain())

		_, err := f.svc.ClearBrandOverride(context.Background(), "t1", "Blue Dream", "Acme", "", "dave")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
		assert.Empty(t, f.history.rows)
	})
}

func TestService_RecomputeCanonical(t *testing.T) {
	t.Run("writes no history and propagates when no sovereign", func(t *testing.T) {
		f := newServiceFixture(hybridStrain())
		f.products.majority = models.LineageSativa
		f.products.hasMajority = true

		st, err := f.strains.GetByNormalizedName(context.Background(), "t1", "blue dream")
		require.NoError(t, err)

		got, err := f.svc.RecomputeCanonical(context.Background(), "t1", st)
		require.NoError(t, err)
		assert.Equal(t, models.LineageSativa, got)

		assert.Empty(t, f.history.rows)
		assert.Equal(t, models.LineageSativa, f.strains.byID("s-blue-dream").CanonicalLineage)
		require.Len(t, f.products.propagated, 1)
		assert.Equal(t, models.LineageSativa, f.products.propagated[0].lineage)
	})

	t.Run("sovereign suppresses snapshot propagation", func(t *testing.T) {
		st := hybridStrain()
		indica := models.LineageIndica
		st.SovereignLineage = &indica
		f := newServiceFixture(st)
		f.products.majority = models.LineageSativa
		f.products.hasMajority = true

		loaded, err := f.strains.GetByNormalizedName(context.Background(), "t1", "blue dream")
		require.NoError(t, err)

		got, err := f.svc.RecomputeCanonical(context.Background(), "t1", loaded)
		require.NoError(t, err)
		assert.Equal(t, models.LineageSativa, got)

		assert.Empty(t, f.history.rows)
		assert.Empty(t, f.products.propagated)
		assert.Equal(t, models.LineageSativa, f.strains.byID("s-blue-dream").CanonicalLineage)
	})

	t.Run("no products keeps the existing canonical", func(t *testing.T) {
		f := newServiceFixture(hybridStrain())

		st, err := f.strains.GetByNormalizedName(context.Background(), "t1", "blue dream")
		require.NoError(t, err)

		got, err := f.svc.RecomputeCanonical(context.Background(), "t1", st)
		require.NoError(t, err)
		assert.Equal(t, models.LineageHybrid, got)
		assert.Empty(t, f.history.rows)
		assert.Empty(t, f.products.propagated)
	})
}
