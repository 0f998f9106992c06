package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"cvpolish-core/internal/handlers"
	"cvpolish-core/internal/metrics"
	"cvpolish-core/internal/middleware"
)

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, resumes *handlers.ResumeHandler, preview *handlers.PreviewHandler) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())               // panic recovery
	r.Use(middleware.Timeout(90 * time.Second)) // analysis can be slow upstream
	r.Use(middleware.MaxBodySize(4 << 20))      // 4 MB max body, PDFs included

	// routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/resumes", resumes.Upload)
		r.Route("/resumes/{id}", func(r chi.Router) {
			r.Post("/analyze", resumes.Analyze)
			r.Post("/sections/{section}/edit", resumes.EditSection)
			r.Post("/sections/{section}/chat", resumes.Chat)
			r.Get("/sections/{section}/chat", resumes.ChatHistory)
			r.Post("/pdf", resumes.GeneratePDF)
			r.Get("/pdf/download", resumes.DownloadPDF)
		})

		r.Route("/preview", func(r chi.Router) {
			r.Post("/", preview.Open)
			r.Delete("/", preview.Close)
			r.Get("/pages/{page}", preview.Page)
			r.Post("/scroll", preview.Scroll)
			r.Post("/zoom", preview.Zoom)
			r.Get("/stats", preview.Stats)
		})

		r.Get("/cache/stats", resumes.CacheStats)
		r.Delete("/cache", resumes.ClearCache)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
