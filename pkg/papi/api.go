// Package papi is a development server for the portal API: the login,
// refresh, logout and user endpoints the SDK talks to.
package papi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yfschool/portal/pkg/papi/routes"
	"github.com/yfschool/portal/pkg/papi/services"
)

type Api struct {
	Api    huma.API
	Router *chi.Mux
}

func NewApi(logger *slog.Logger) *Api {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	config := huma.DefaultConfig("Portal API", "1.0.0")

	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Access token from /api/login/ or /api/token/refresh/",
		},
	}

	api := humachi.New(router, config)

	return &Api{Api: api, Router: router}
}

// New builds the API with every route registered against svcs.
func New(svcs *services.Services, logger *slog.Logger) *Api {
	a := NewApi(logger)
	a.Api.UseMiddleware(svcs.IAM.Middleware())
	routes.RegisterRoutes(a.Api, svcs)
	return a
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
