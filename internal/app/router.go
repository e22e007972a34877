package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tellquote/tellquote/internal/observability"
	pipelinehttp "github.com/tellquote/tellquote/internal/pipeline/http"
	quotehttp "github.com/tellquote/tellquote/internal/quote/http"
	ratecardhttp "github.com/tellquote/tellquote/internal/ratecard/http"
	rateshttp "github.com/tellquote/tellquote/internal/rates/http"
	"github.com/tellquote/tellquote/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	RatesHandler    *rateshttp.Handler
	RateCardHandler *ratecardhttp.Handler
	QuoteHandler    *quotehttp.Handler
	PipelineHandler *pipelinehttp.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with tellquote defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.RatesHandler != nil {
		params.RatesHandler.MountRoutes(r)
	}
	if params.RateCardHandler != nil {
		params.RateCardHandler.MountRoutes(r)
	}
	if params.QuoteHandler != nil {
		params.QuoteHandler.MountRoutes(r)
	}
	if params.PipelineHandler != nil {
		params.PipelineHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
