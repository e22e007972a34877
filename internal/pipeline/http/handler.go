package pipelinehttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tellquote/tellquote/internal/pipeline"
	"github.com/tellquote/tellquote/internal/platform/httpx"
)

// Handler exposes the pipeline dashboard.
type Handler struct {
	logger    *slog.Logger
	service   *pipeline.Service
	validator *validator.Validate
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *pipeline.Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pipeline", h.dashboard)
}

type dashboardQuery struct {
	Currency string `json:"currency" validate:"omitempty,len=3,alpha"`
	Year     string `json:"year" validate:"omitempty,numeric,len=4"`
	Month    string `json:"month" validate:"omitempty,oneof=all 1 2 3 4 5 6 7 8 9 10 11 12"`
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := dashboardQuery{
		Currency: strings.ToUpper(strings.TrimSpace(q.Get("currency"))),
		Year:     strings.TrimSpace(q.Get("year")),
		Month:    strings.ToLower(strings.TrimSpace(q.Get("month"))),
	}
	if !httpx.Validate(w, h.validator, &query) {
		return
	}
	filter := pipeline.Filter{Currency: query.Currency}
	if query.Year != "" {
		filter.Year, _ = strconv.Atoi(query.Year)
	}
	if query.Month != "" && query.Month != "all" {
		filter.Month, _ = strconv.Atoi(query.Month)
	}
	board, err := h.service.Dashboard(r.Context(), filter)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("pipeline dashboard", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, board)
}
