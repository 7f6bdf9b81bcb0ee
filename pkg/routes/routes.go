package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/trellis/pkg/middleware"
	"github.com/Ramsey-B/trellis/pkg/routes/catalog"
	"github.com/Ramsey-B/trellis/pkg/routes/health"
	"github.com/Ramsey-B/trellis/pkg/routes/reconciliation"
	"github.com/Ramsey-B/trellis/pkg/routes/strain"
)

// RegisterAll wires middleware and all resource routes onto the echo instance.
func RegisterAll(e *echo.Echo, logger ectologger.Logger, checker *health.Checker) {
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware("trellis"))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	checker.RegisterRoutes(e)

	v1 := e.Group("/api/v1")
	catalog.Register(v1.Group("/catalog"))
	strain.Register(v1.Group("/strains"))
	reconciliation.Register(v1.Group("/reconciliations"))
}
