// Package api serves the lead management HTTP API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/audio"
	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/intake"
	"github.com/sells-group/lead-engine/internal/pipeline"
	"github.com/sells-group/lead-engine/internal/stats"
	"github.com/sells-group/lead-engine/internal/store"
	"github.com/sells-group/lead-engine/internal/worker"
)

// OverflowHeader lists the statuses that fell into the Other column.
const OverflowHeader = "X-Pipeline-Overflow"

// UserHeader carries the acting user's id.
const UserHeader = "X-User-Id"

// Deps are the services the API routes to.
type Deps struct {
	Store      store.Store
	Reconciler *intake.Reconciler
	Audio      *audio.Processor
	Stats      *stats.Service
	Classifier *pipeline.Classifier
	Pool       *worker.Pool
	Display    *Display
	Server     config.ServerConfig
	Upload     config.AudioConfig

	// Now defaults to time.Now.
	Now func() time.Time
}

type handler struct {
	Deps
}

// NewRouter builds the API routes.
func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Display == nil {
		d.Display = NewDisplay("")
	}
	origins := d.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h := &handler{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{OverflowHeader},
		AllowCredentials: true,
	}))

	r.Get("/", h.root)
	r.Get("/health", h.health)
	r.Post("/sync", h.sync)
	r.Post("/process-audio", h.processAudio)
	r.Get("/stats", h.stats)
	r.Get("/overdue-leads", h.overdue)
	r.Get("/conference-roi/{id}", h.conferenceROI)
	r.Get("/pipeline", h.pipeline)
	r.Get("/leads", h.leads)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
