package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/internal/telemetry"
	"github.com/eecworkbench/eec/pkg/api/auth"
	"github.com/eecworkbench/eec/pkg/api/handlers"
	apiMiddleware "github.com/eecworkbench/eec/pkg/api/middleware"
	"github.com/eecworkbench/eec/pkg/clustering"
	"github.com/eecworkbench/eec/pkg/guard"
	"github.com/eecworkbench/eec/pkg/metrics"
	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/workspace"
)

// Deps are the collaborators shared by the service routers.
type Deps struct {
	Workspace *workspace.Workspace

	// Verifier checks bearer tokens in every service but auth, which
	// always verifies locally with JWT.
	Verifier auth.Verifier

	// JWT issues tokens. Required by the auth service.
	JWT *auth.JWTService

	// Embedder computes mention vectors on entity creation. Optional.
	Embedder handlers.Embedder

	// Clustering ranks candidate clusters in the mention service. Defaults
	// to cosine similarity with the default top-N.
	Clustering clustering.Method

	// Recorder receives HTTP metrics. Optional.
	Recorder metrics.Recorder

	// RequestTimeout bounds each request. Default: 30s
	RequestTimeout time.Duration
}

// NewRouter creates the chi router of one service.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Request logging, tracing and metrics
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Every API route authenticates, checks scopes and then runs its handler
// through the request guard of the snapshots the service touches:
//   - auth, user: users
//   - entity: entities
//   - cluster, mention: entities and clusters
func NewRouter(svc Service, deps Deps) (http.Handler, error) {
	if deps.Workspace == nil {
		return nil, errors.New("router: workspace is required")
	}
	verifier := deps.Verifier
	if svc == ServiceAuth {
		if deps.JWT == nil {
			return nil, errors.New("router: auth service requires a JWT service")
		}
		verifier = auth.NewLocalVerifier(deps.JWT)
	}
	if verifier == nil {
		return nil, errors.New("router: token verifier is required")
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(svc, deps.Recorder))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	healthHandler := handlers.NewHealthHandler(string(svc), deps.Workspace)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	ws := deps.Workspace
	authenticate := apiMiddleware.Authenticate(verifier)

	r.Route(svc.BasePath(), func(r chi.Router) {
		switch svc {
		case ServiceAuth:
			g := guard.Middleware(ws.UserGuard(), handlers.WriteGuardError)
			authHandler := handlers.NewAuthHandler(ws.Users, deps.JWT)

			r.With(g).Post("/login", authHandler.Login)
			r.With(authenticate, g).Get("/verify", authHandler.Verify)

		case ServiceEntity:
			r.Use(authenticate)
			g := guard.Middleware(ws.EntityGuard(), handlers.WriteGuardError)
			h := handlers.NewEntityHandler(ws.Entities, deps.Embedder)

			read := r.With(apiMiddleware.RequireScopes(), g)
			read.Get("/entity", h.List)
			read.Get("/entity/", h.List)
			read.Get("/entity/{entityID}", h.Get)
			read.Get("/entity/source/{source}", h.ListBySource)
			read.Get("/entity/source/{source}/{sourceID}", h.GetBySource)
			read.Get("/next-entity", h.Next)

			admin := r.With(apiMiddleware.RequireAdmin(), g)
			admin.Post("/entity/create", h.Create)
			admin.Post("/entities/create", h.CreateBulk)
			admin.Post("/entity/{entityID}/update", h.Update)
			admin.Delete("/entity/{entityID}/delete", h.Delete)
			admin.Delete("/entities/delete", h.DeleteBulk)

			r.With(apiMiddleware.RequireScopes(models.ScopeExport), g).Get("/export/csv", h.ExportCSV)

		case ServiceCluster:
			r.Use(authenticate)
			g := guard.Middleware(ws.DataGuard(), handlers.WriteGuardError)
			h := handlers.NewClusterHandler(ws.Clusters)

			read := r.With(apiMiddleware.RequireScopes(), g)
			read.Get("/", h.List)
			read.Get("/cluster/{clusterID}", h.Get)

			edit := r.With(apiMiddleware.RequireScopes(models.ScopeEditor), g)
			edit.Post("/cluster/create", h.Create)
			edit.Post("/cluster/{clusterID}/add-entity", h.AddEntity)
			edit.Post("/cluster/{clusterID}/add-entities", h.AddEntities)
			edit.Post("/cluster/{clusterID}/remove-entity", h.RemoveEntity)

			admin := r.With(apiMiddleware.RequireAdmin(), g)
			admin.Delete("/cluster/{clusterID}", h.Delete)
			admin.Delete("/delete", h.DeleteBulk)
			admin.Delete("/delete/all", h.DeleteAll)

			r.With(apiMiddleware.RequireScopes(models.ScopeExport), g).Get("/export/csv", h.ExportCSV)

		case ServiceUser:
			r.Use(authenticate)
			g := guard.Middleware(ws.UserGuard(), handlers.WriteGuardError)
			h := handlers.NewUserHandler(ws.Users)

			// self-service routes authorize inside the handler
			read := r.With(apiMiddleware.RequireScopes(), g)
			read.Get("/", h.List)
			read.Get("/me", h.Me)
			read.Get("/user/{userID}", h.Get)
			read.Get("/user/username/{username}", h.GetByUsername)
			read.Put("/user/{userID}/update/username", h.UpdateUsername)
			read.Put("/user/{userID}/update/password", h.UpdatePassword)

			admin := r.With(apiMiddleware.RequireAdmin(), g)
			admin.Post("/user/create", h.Create)
			admin.Put("/user/{userID}/update/scopes", h.UpdateScopes)
			admin.Delete("/user/{userID}/delete", h.Delete)

		case ServiceMention:
			r.Use(authenticate)
			g := guard.Middleware(ws.DataGuard(), handlers.WriteGuardError)
			method := deps.Clustering
			if method == nil {
				method = clustering.NewCosine(ws.Clusters, clustering.DefaultTopN)
			}
			h := handlers.NewMentionHandler(ws.Entities, method)

			r.With(apiMiddleware.RequireScopes(), g).Get("/", h.Next)
		}
	})

	return r, nil
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs, traces and measures every request.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//   - Healthcheck requests are logged at DEBUG level to reduce noise
func requestLogger(svc Service, rec metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx, span := telemetry.StartSpan(r.Context(), telemetry.SpanRequest,
				telemetry.Service(string(svc)),
				telemetry.ClientIP(r.RemoteAddr),
			)
			defer span.End()

			lc := logger.NewLogContext(string(svc), r.Method, r.URL.Path, r.RemoteAddr)
			lc.RequestID = middleware.GetReqID(ctx)
			lc.TraceID = telemetry.TraceID(ctx)
			ctx = logger.WithContext(ctx, lc)

			logger.DebugCtx(ctx, "API request started")

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if rec != nil {
				rec.ObserveRequest(string(svc), r.Method, route, status, time.Since(start))
			}

			logArgs := []any{
				logger.KeyStatus, status,
				logger.KeyBytes, ww.BytesWritten(),
				logger.DurationMs(logger.Duration(start)),
			}

			// Log healthcheck requests at DEBUG to avoid polluting logs in k8s
			if isHealthPath(r.URL.Path) {
				logger.DebugCtx(ctx, "API request completed", logArgs...)
			} else {
				logger.InfoCtx(ctx, "API request completed", logArgs...)
			}
		})
	}
}
