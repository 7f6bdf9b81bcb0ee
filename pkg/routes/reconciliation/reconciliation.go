package reconciliation

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/Ramsey-B/trellis/pkg/context"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/reconcile"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

var validate = validator.New()

// Register registers reconciliation routes
func Register(g *echo.Group) {
	g.POST("", Run)
	g.GET("/:handle", Get)
	g.DELETE("/:handle", Clear)
}

// Run executes a reconciliation against the caller-supplied inventory URL
func Run(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reconciliation_handler.Run")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.ReconcileRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*reconcile.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get reconciliation service")
	}

	resp, err := service.Reconcile(ctx, tenantID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// RunPageResponse is one page of a cached match set
type RunPageResponse struct {
	CacheHandle    string               `json:"cache_handle"`
	MatchedCount   int                  `json:"matched_count"`
	UnmatchedCount int                  `json:"unmatched_count"`
	SkippedCount   int                  `json:"skipped_count"`
	TotalResults   int                  `json:"total_results"`
	Page           int                  `json:"page"`
	PageSize       int                  `json:"page_size"`
	Results        []models.MatchResult `json:"results"`
}

// Get returns a page of the cached match set for a handle
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reconciliation_handler.Get")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	handle := c.Param("handle")
	if handle == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "handle is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}

	ctx, service, err := ectoinject.GetContext[*reconcile.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get reconciliation service")
	}

	entry, err := service.GetRun(ctx, tenantID, handle)
	if err != nil {
		return err
	}

	run := entry.Run
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(run.Results) {
		start = len(run.Results)
	}
	if end > len(run.Results) {
		end = len(run.Results)
	}

	return c.JSON(http.StatusOK, RunPageResponse{
		CacheHandle:    entry.Handle,
		MatchedCount:   run.MatchedCount,
		UnmatchedCount: run.UnmatchedCount,
		SkippedCount:   run.SkippedCount,
		TotalResults:   len(run.Results),
		Page:           page,
		PageSize:       pageSize,
		Results:        run.Results[start:end],
	})
}

// Clear evicts a cached match set
func Clear(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reconciliation_handler.Clear")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	handle := c.Param("handle")
	if handle == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "handle is required")
	}

	ctx, service, err := ectoinject.GetContext[*reconcile.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get reconciliation service")
	}

	if err := service.ClearRun(ctx, tenantID, handle); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
