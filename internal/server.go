package internal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tms-provisioning-api/internal/audit"
	"tms-provisioning-api/internal/auth"
	"tms-provisioning-api/internal/config"
	"tms-provisioning-api/internal/handlers"
	"tms-provisioning-api/internal/provision"
	"tms-provisioning-api/internal/reply"
	"tms-provisioning-api/internal/resolver"
	"tms-provisioning-api/internal/tms"
	"tms-provisioning-api/internal/tracking"
)

//go:embed openapi
var openapiFS embed.FS

type Server struct {
	DB         *sql.DB
	Router     *chi.Mux
	JWTManager *auth.JWTManager
	Metrics    *Metrics
	Workflow   *provision.Workflow
	logger     *zap.Logger
}

// NewServer wires the TMS client, resolver, audit store and workflow behind the HTTP routes
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	profile, err := tms.LoadProfile(cfg.TMS.ProfilePath)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()

	client, err := tms.NewClient(tms.Config{
		BaseURL: cfg.TMS.BaseURL,
		Timeout: cfg.TMS.Timeout,
		Profile: profile,
	}, tms.WithObserver(metrics), tms.WithLogger(logger.Named("tms")))
	if err != nil {
		return nil, fmt.Errorf("failed to create tms client: %w", err)
	}

	creds := tms.Credentials{
		Username:       cfg.TMS.Username,
		PasswordBase64: cfg.TMS.PasswordBase64,
	}

	deps := resolver.Deps{Orders: client, Credentials: creds}
	trackingClient, err := tracking.NewClient(cfg.Tracking.URL, cfg.Tracking.Token, cfg.TMS.Timeout)
	switch {
	case err == nil:
		deps.Tracking = trackingClient
	case !errors.Is(err, tracking.ErrNotConfigured):
		return nil, fmt.Errorf("failed to create tracking client: %w", err)
	}

	res, err := resolver.New(resolver.Policy(cfg.ResolverPolicy), deps)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Router:  chi.NewRouter(),
		Metrics: metrics,
		logger:  logger,
	}

	var recorder audit.Recorder = audit.Nop{}
	if cfg.DatabaseURL != "" {
		db, err := audit.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.DB = db
		recorder = audit.NewPostgres(db)
	}

	s.Workflow = provision.New(client, res, provision.Config{
		Credentials:         creds,
		WarehouseLocationID: cfg.WarehouseLocationID,
	},
		provision.WithRecorder(recorder),
		provision.WithObserver(metrics),
		provision.WithLogger(logger),
	)

	if cfg.AuthEnabled {
		s.JWTManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, 24*time.Hour)
		if err := s.JWTManager.ValidateConfig(); err != nil {
			s.Close(context.Background())
			return nil, fmt.Errorf("JWT configuration validation failed: %w", err)
		}
	}

	s.routes(cfg)

	logger.Info("server configured",
		zap.String("tms_base_url", cfg.TMS.BaseURL),
		zap.String("resolver_policy", cfg.ResolverPolicy),
		zap.Bool("tracking", deps.Tracking != nil),
		zap.Bool("audit", s.DB != nil),
		zap.Bool("auth", cfg.AuthEnabled),
	)
	return s, nil
}

func (s *Server) routes(cfg *config.Config) {
	provisionHandler := handlers.NewProvisionHandler(s.Workflow, reply.New(cfg.TMS.LoginURL), s.logger)
	importsHandler := handlers.NewImportsHandler(s.Workflow, s.logger)
	importsHandler.Timeout = cfg.ImportTimeout

	// chi requires middleware before any route
	s.Router.Use(RequestLogger(s.logger))
	if cfg.EnableMetrics {
		s.Router.Use(s.Metrics.Middleware())
	}
	s.Router.Use(provisionHandler.Recoverer)

	s.Router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	if cfg.EnableMetrics {
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}
	if cfg.EnableSwagger {
		s.mountDocs(s.Router)
	}

	s.Router.Route("/api", func(r chi.Router) {
		if s.JWTManager != nil {
			r.Use(auth.AuthMiddleware(s.JWTManager))
			r.Use(auth.MustRole(auth.RoleProvisioner))
		}
		r.Post("/tms", provisionHandler.Reply)
		r.Post("/v1/provision", provisionHandler.Provision)
		r.Post("/v1/imports/excel", importsHandler.UploadExcel)
	})
}

// mountDocs serves the OpenAPI document and a Swagger UI page
func (s *Server) mountDocs(mux *chi.Mux) {
	mux.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openapiFS.ReadFile("openapi/openapi.yaml")
		if err != nil {
			http.Error(w, "Failed to read OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		if _, err := w.Write(data); err != nil {
			s.logger.Warn("failed to write openapi document", zap.Error(err))
		}
	})

	mux.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(docsPage))
	})
}

const docsPage = `<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>TMS Provisioning API - Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
    <style>
        body { margin: 0; background: #f7f7f7; }
        .swagger-ui .topbar { background: #1f2937; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: '/openapi.yaml',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis],
                tryItOutEnabled: true
            });
        };
    </script>
</body>
</html>`

// Close properly shuts down the server and cleans up resources
func (s *Server) Close(ctx context.Context) error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
