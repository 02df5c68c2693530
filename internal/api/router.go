package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/refinery/internal/api/handlers"
	mw "github.com/Harshitk-cp/refinery/internal/api/middleware"
	"github.com/Harshitk-cp/refinery/internal/buildconfig"
	"github.com/Harshitk-cp/refinery/internal/config"
	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/knowledge"
	"github.com/Harshitk-cp/refinery/internal/layer"
	"github.com/Harshitk-cp/refinery/internal/notify"
	"github.com/Harshitk-cp/refinery/internal/persona"
	"github.com/Harshitk-cp/refinery/internal/service"
	"github.com/Harshitk-cp/refinery/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router     *chi.Mux
	Refinement *service.RefinementService
	Expirer    *service.ExpirerService
	AnchorSync *service.AnchorSync
	Entries    domain.MemoryEntryStore
	startTime  time.Time

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewApp wires the refinement service and its HTTP surface. A nil db keeps
// every store in process; a nil nc disables alert publishing.
func NewApp(db *pgxpool.Pool, nc *nats.Conn, logger *zap.Logger) (*App, error) {
	// Stores
	var (
		entries  domain.MemoryEntryStore
		sessions domain.SessionStore
		anchors  domain.AnchorStore
	)
	if db != nil {
		entries = store.NewMemoryEntryStore(db)
		sessions = store.NewSessionStore(db)
		anchors = store.NewAnchorStore(db)
	} else {
		logger.Warn("no database configured, using in-memory stores")
		entries = store.NewInMemoryEntryLog()
		sessions = store.NewInMemorySessionStore()
		anchors = store.NewInMemoryAnchorStore()
	}

	var publisher domain.AlertPublisher = notify.NopPublisher{}
	if nc != nil {
		publisher = notify.NewNATSPublisher(nc, config.NATSSubjectPrefix(), logger)
	}

	provider := config.PersonaProvider()
	personas, err := persona.NewSource(provider, config.PersonaAPIKey())
	if err != nil {
		logger.Warn("persona source initialization failed, falling back to catalog",
			zap.String("provider", provider), zap.Error(err))
		personas = persona.NewCatalog()
	} else {
		logger.Info("persona source initialized", zap.String("provider", provider))
	}

	policy, err := service.LoadGatekeeperPolicy(config.GatekeeperPolicyPath())
	if err != nil {
		return nil, fmt.Errorf("load gatekeeper policy: %w", err)
	}

	cfg := service.DefaultRefinementConfig()
	cfg.MaxPasses = config.MaxPasses()
	cfg.TargetConfidence = config.TargetConfidence()
	cfg.Seed = config.Seed()
	cfg.RunTimeout = config.RunTimeout()
	cfg.Policy = policy

	anchorSet := layer.NewAnchorSet(config.AnchorCapacity())
	anchorSync := service.NewAnchorSync(anchors, anchorSet, logger)
	anchorSync.SetInterval(config.AnchorFlushInterval())

	// Services
	refinementSvc, err := service.NewRefinementService(service.Deps{
		Personas:   personas,
		Knowledge:  knowledge.NewDefaultRegistry(logger),
		Audit:      entries,
		Sessions:   sessions,
		Anchors:    anchorSet,
		AnchorSync: anchorSync,
		Publisher:  publisher,
		Estimator:  persona.LexicalEstimator{},
	}, cfg, logger)
	if err != nil {
		return nil, err
	}

	expirerSvc := service.NewExpirerService(refinementSvc, logger)
	expirerSvc.SetInterval(config.ExpirerInterval())
	expirerSvc.SetRetention(config.SessionRetention())

	// Handlers
	refinementHandler := handlers.NewRefinementHandler(refinementSvc, entries)
	containmentHandler := handlers.NewContainmentHandler(refinementSvc.Containment(), refinementSvc.Gatekeeper())
	anchorHandler := handlers.NewAnchorHandler(anchorSync)

	r := chi.NewRouter()

	app := &App{
		Router:     r,
		Refinement: refinementSvc,
		Expirer:    expirerSvc,
		AnchorSync: anchorSync,
		Entries:    entries,
		startTime:  time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(db, nc))
	r.Get("/stats", app.statsHandler())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/version", versionHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/simulate", refinementHandler.Simulate)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", refinementHandler.List)
			r.Post("/", refinementHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", refinementHandler.Get)
				r.Post("/run", refinementHandler.Run)
				r.Get("/entries", refinementHandler.Entries)
			})
		})

		r.Route("/containment", func(r chi.Router) {
			r.Get("/events", containmentHandler.Events)
			r.Get("/alerts", containmentHandler.Alerts)
		})
		r.Get("/gatekeeper/decisions", containmentHandler.Decisions)

		r.Get("/anchors/similar", anchorHandler.Similar)
	})

	return app, nil
}

func healthHandler(db *pgxpool.Pool, nc *nats.Conn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		resp := map[string]string{"status": "ok", "storage": "memory", "alerts": "disabled"}
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
			resp["storage"] = "postgres"
		}
		if nc != nil {
			resp["alerts"] = nc.Status().String()
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(buildconfig.VersionInfo())
}

func (app *App) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds":  uptime.Seconds(),
			"uptime_human":    uptime.Round(time.Second).String(),
			"request_count":   app.requestCount.Load(),
			"error_count":     app.errorCount.Load(),
			"goroutines":      runtime.NumGoroutine(),
			"pending_anchors": app.AnchorSync.Pending(),
			"dropped_anchors": app.AnchorSync.Dropped(),
			"refinement":      app.Refinement.Stats(),
			"memory": map[string]any{
				"alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
				"sys_mb":   float64(memStats.Sys) / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
