package strain

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	strainrepo "github.com/Ramsey-B/trellis/internal/repositories/strain"
	ctxmiddleware "github.com/Ramsey-B/trellis/pkg/context"
	"github.com/Ramsey-B/trellis/pkg/lineage"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/normalizers"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

var validate = validator.New()

// Register registers strain and lineage routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/:name", Get)
	g.GET("/:name/lineage", Resolve)
	g.GET("/:name/history", History)
	g.PUT("/lineage", Update)
	g.DELETE("/:name/lineage", ClearSovereign)
	g.DELETE("/:name/overrides/:brand", ClearOverride)
}

// List returns all strains for the tenant
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "strain_handler.List")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	ctx, repo, err := ectoinject.GetContext[*strainrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, totalCount, err := repo.List(ctx, tenantID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.StrainListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get returns one strain by name
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "strain_handler.Get")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	name := normalizers.Normalize(c.Param("name")).Key
	if name == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "strain name is required")
	}

	ctx, repo, err := ectoinject.GetContext[*strainrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	st, err := repo.GetByNormalizedName(ctx, tenantID, name)
	if err != nil {
		return err
	}
	if st == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "strain %q not found", c.Param("name"))
	}

	return c.JSON(http.StatusOK, st)
}

// ResolveResponse is the effective-lineage read response
type ResolveResponse struct {
	StrainName string         `json:"strain_name"`
	Brand      string         `json:"brand,omitempty"`
	Lineage    models.Lineage `json:"lineage"`
	Source     string         `json:"source"`
}

// Resolve returns the effective lineage for a (strain, brand) pair
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "strain_handler.Resolve")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	name := c.Param("name")
	brand := c.QueryParam("brand")

	ctx, service, err := ectoinject.GetContext[*lineage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lineage service")
	}

	lin, source, err := service.ResolveEffective(ctx, tenantID, name, brand)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ResolveResponse{
		StrainName: name,
		Brand:      brand,
		Lineage:    lin,
		Source:     string(source),
	})
}

// History returns the strain's audit log
func History(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "strain_handler.History")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	name := c.Param("name")
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	ctx, service, err := ectoinject.GetContext[*lineage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lineage service")
	}

	resp, err := service.History(ctx, tenantID, name, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Update applies a sovereign or brand-scoped lineage change
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "strain_handler.Update")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	changedBy := ctxmiddleware.GetUserID(ctx)

	var req models.LineageUpdateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	newLineage, ok := models.ParseLineage(req.NewLineage)
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown lineage %q", req.NewLineage)
	}

	ctx, service, err := ectoinject.GetContext[*lineage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lineage service")
	}

	var resp *models.LineageUpdateResponse
	switch req.Scope {
	case models.HistoryScopeStrain:
		resp, err = service.SetSovereign(ctx, tenantID, req.StrainName, newLineage, req.Reason, changedBy)
	case models.HistoryScopeBrand:
		resp, err = service.SetBrandOverride(ctx, tenantID, req.StrainName, req.Brand, newLineage, req.Reason, changedBy)
	default:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown scope %q", req.Scope)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// ClearSovereign removes a strain's sovereign lineage
func ClearSovereign(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "strain_handler.ClearSovereign")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	changedBy := ctxmiddleware.GetUserID(ctx)

	name := c.Param("name")
	reason := c.QueryParam("reason")

	ctx, service, err := ectoinject.GetContext[*lineage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lineage service")
	}

	resp, err := service.ClearSovereign(ctx, tenantID, name, reason, changedBy)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// ClearOverride removes a (strain, brand) override
func ClearOverride(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "strain_handler.ClearOverride")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	changedBy := ctxmiddleware.GetUserID(ctx)

	name := c.Param("name")
	brand := c.Param("brand")
	reason := c.QueryParam("reason")

	ctx, service, err := ectoinject.GetContext[*lineage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lineage service")
	}

	resp, err := service.ClearBrandOverride(ctx, tenantID, name, brand, reason, changedBy)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}
